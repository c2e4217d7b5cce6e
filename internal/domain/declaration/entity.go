package declaration

import (
	"time"

	"github.com/shopspring/decimal"
)

// FilingStatus - CNPS declaration workflow
type FilingStatus string

const (
	FilingStatusDraft     FilingStatus = "DRAFT"
	FilingStatusValidated FilingStatus = "VALIDATED"
	FilingStatusFiled     FilingStatus = "FILED"
)

func (s FilingStatus) CanTransitionTo(next FilingStatus) bool {
	switch s {
	case FilingStatusDraft:
		return next == FilingStatusValidated
	case FilingStatusValidated:
		return next == FilingStatusFiled
	}
	return false
}

// Predecessor is the only status a filing can reach s from.
func (s FilingStatus) Predecessor() (FilingStatus, bool) {
	switch s {
	case FilingStatusValidated:
		return FilingStatusDraft, true
	case FilingStatusFiled:
		return FilingStatusValidated, true
	}
	return "", false
}

// Filing - monthly social security declaration for one company. Totals and
// lines are copied from the payslips when the filing is created and are
// never recomputed.
type Filing struct {
	ID                         string
	CompanyID                  string
	PeriodMonth                int
	PeriodYear                 int
	PeriodLabel                string
	Status                     FilingStatus
	EmployeeCount              int
	TotalGrossPay              decimal.Decimal
	TotalContributionBase      decimal.Decimal
	TotalEmployeeContributions decimal.Decimal
	TotalEmployerContributions decimal.Decimal
	TotalContributions         decimal.Decimal
	CreatedBy                  *string
	ValidatedAt                *time.Time
	ValidatedBy                *string
	FiledAt                    *time.Time
	FiledBy                    *string
	CreatedAt                  time.Time
	UpdatedAt                  time.Time

	Lines []FilingLine
}

// FilingLine - one employee's contribution snapshot inside a filing.
type FilingLine struct {
	ID                   string
	FilingID             string
	PayslipID            string
	EmployeeID           string
	EmployeeCode         string
	EmployeeName         string
	CNPSNumber           *string
	GrossPay             decimal.Decimal
	ContributionBase     decimal.Decimal
	EmployeeContribution decimal.Decimal
	EmployerContribution decimal.Decimal
}

// StatusChange - the fields a workflow step writes.
type StatusChange struct {
	ID      string
	Status  FilingStatus
	At      time.Time
	ActorID *string
}
