package mobilemoney

import (
	"regexp"
	"strings"
)

var (
	orangeNumberRegex = regexp.MustCompile(`^(\+225|225)?0[57]\d{8}$`)
	mtnNumberRegex    = regexp.MustCompile(`^(\+225|225)?0[46]\d{8}$`)
	waveNumberRegex   = regexp.MustCompile(`^(\+225|225)?\d{8,10}$`)

	orangePrefixRegex = regexp.MustCompile(`^(225)?0[57]`)
	mtnPrefixRegex    = regexp.MustCompile(`^(225)?0[46]`)
)

var separatorReplacer = strings.NewReplacer(" ", "", "-", "", ".", "")

func stripSeparators(phone string) string {
	return separatorReplacer.Replace(strings.TrimSpace(phone))
}

// NormalizePhoneNumber returns the international form without "+" (225XXXXXXXXXX).
// The ten-digit local number keeps its leading zero.
func NormalizePhoneNumber(phone string) string {
	cleaned := strings.TrimPrefix(stripSeparators(phone), "+")
	if len(cleaned) == 10 && strings.HasPrefix(cleaned, "0") {
		return "225" + cleaned
	}
	return cleaned
}

// LocalNumber returns the ten-digit national form.
func LocalNumber(phone string) string {
	cleaned := strings.TrimPrefix(stripSeparators(phone), "+")
	if len(cleaned) == 13 && strings.HasPrefix(cleaned, "225") {
		return cleaned[3:]
	}
	return cleaned
}

// DetectOperator guesses the operator from the number prefix. Wave numbers
// are prefix agnostic, so anything else falls back to Wave.
func DetectOperator(phone string) Operator {
	cleaned := strings.TrimPrefix(stripSeparators(phone), "+")
	switch {
	case orangePrefixRegex.MatchString(cleaned):
		return OperatorOrange
	case mtnPrefixRegex.MatchString(cleaned):
		return OperatorMTN
	default:
		return OperatorWave
	}
}

func validateWith(re *regexp.Regexp, phone string) bool {
	return re.MatchString(stripSeparators(phone))
}

// ValidNumberFor reports whether phone is a valid wallet number for op.
func ValidNumberFor(op Operator, phone string) bool {
	switch op {
	case OperatorOrange:
		return validateWith(orangeNumberRegex, phone)
	case OperatorMTN:
		return validateWith(mtnNumberRegex, phone)
	case OperatorWave:
		return validateWith(waveNumberRegex, phone)
	}
	return false
}
