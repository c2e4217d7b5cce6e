package mobilemoney

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectOperator(t *testing.T) {
	cases := []struct {
		phone string
		want  Operator
	}{
		{"0712345678", OperatorOrange},
		{"0512345678", OperatorOrange},
		{"+225 07 12 34 56 78", OperatorOrange},
		{"2250512345678", OperatorOrange},
		{"0412345678", OperatorMTN},
		{"06-12-34-56-78", OperatorMTN},
		{"+2250612345678", OperatorMTN},
		{"0112345678", OperatorWave},
		{"12345678", OperatorWave},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DetectOperator(c.phone), "DetectOperator(%q)", c.phone)
	}
}

func TestNormalizePhoneNumber(t *testing.T) {
	cases := map[string]string{
		"0712345678":          "2250712345678",
		"07 12 34 56 78":      "2250712345678",
		"+225 07-12-34-56-78": "2250712345678",
		"2250512345678":       "2250512345678",
		"12345678":            "12345678",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePhoneNumber(in), "NormalizePhoneNumber(%q)", in)
	}
	assert.Equal(t, "0712345678", LocalNumber("+2250712345678"))
}

func TestValidatePhoneNumber_PerOperator(t *testing.T) {
	orange := &OrangeMoney{}
	mtn := &MTNMoMo{}
	wave := &Wave{}

	assert.True(t, orange.ValidatePhoneNumber("0712345678"))
	assert.True(t, orange.ValidatePhoneNumber("+225 05 12 34 56 78"))
	assert.False(t, orange.ValidatePhoneNumber("0412345678"), "MTN prefix is not Orange")
	assert.False(t, orange.ValidatePhoneNumber("071234567"))

	assert.True(t, mtn.ValidatePhoneNumber("0412345678"))
	assert.True(t, mtn.ValidatePhoneNumber("2250612345678"))
	assert.False(t, mtn.ValidatePhoneNumber("0712345678"))

	assert.True(t, wave.ValidatePhoneNumber("0112345678"))
	assert.True(t, wave.ValidatePhoneNumber("12345678"))
	assert.False(t, wave.ValidatePhoneNumber("1234567"))
	assert.False(t, wave.ValidatePhoneNumber("07123456789"))
}

func TestParseOperator(t *testing.T) {
	op, err := ParseOperator("Orange")
	assert.NoError(t, err)
	assert.Equal(t, OperatorOrange, op)

	op, err = ParseOperator("mtn_momo")
	assert.NoError(t, err)
	assert.Equal(t, OperatorMTN, op)

	_, err = ParseOperator("moov")
	assert.Error(t, err)
}

func TestValidNumberFor(t *testing.T) {
	assert.True(t, ValidNumberFor(OperatorOrange, "07 12 34 56 78"))
	assert.False(t, ValidNumberFor(OperatorOrange, "0412345678"))
	assert.True(t, ValidNumberFor(OperatorMTN, "+2250412345678"))
	assert.True(t, ValidNumberFor(OperatorWave, "0112345678"))
	assert.False(t, ValidNumberFor(Operator("moov"), "0112345678"))
}
