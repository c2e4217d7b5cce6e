package disbursement

import (
	"github.com/SialouWebServices/Saas/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

type PreviewRequest struct {
	PayslipIDs []string `json:"payslip_ids"`
}

func (r *PreviewRequest) Validate() error {
	var errs validator.ValidationErrors

	if len(r.PayslipIDs) == 0 {
		errs = append(errs, validator.ValidationError{Field: "payslip_ids", Message: "at least one payslip is required"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type ConfirmRequest struct {
	PayslipIDs      []string `json:"payslip_ids"`
	NotifyEmployees bool     `json:"notify_employees"`
}

func (r *ConfirmRequest) Validate() error {
	preview := PreviewRequest{PayslipIDs: r.PayslipIDs}
	return preview.Validate()
}

type Partition struct {
	Channel       string          `json:"channel"`
	Label         string          `json:"label"`
	Count         int             `json:"count"`
	Amount        decimal.Decimal `json:"amount"`
	EstimatedFees decimal.Decimal `json:"estimated_fees"`
	PayslipIDs    []string        `json:"payslip_ids"`
}

// PreviewResponse keeps the French field names the payroll UI already reads.
type PreviewResponse struct {
	TotalBulletins   int             `json:"total_bulletins"`
	MontantTotal     decimal.Decimal `json:"montant_total"`
	FraisEstimes     decimal.Decimal `json:"frais_estimes"`
	Partitions       []Partition     `json:"partitions"`
	ValidationErrors []Issue         `json:"validation_errors"`
	Exclus           []string        `json:"exclus"`
	PeutValider      bool            `json:"peut_valider"`
}

type ChannelOutcome struct {
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Amount    decimal.Decimal `json:"amount"`
}

type PaymentFailure struct {
	PayslipID    string `json:"payslip_id"`
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Channel      string `json:"channel"`
	Reason       string `json:"reason"`
}

type ConfirmResponse struct {
	TotalProcessed  int                       `json:"total_processed"`
	Succeeded       int                       `json:"succeeded"`
	Failed          int                       `json:"failed"`
	AmountDisbursed decimal.Decimal           `json:"amount_disbursed"`
	SuccessRate     decimal.Decimal           `json:"success_rate"` // percentage, two decimals
	ByChannel       map[string]ChannelOutcome `json:"by_channel"`
	Failures        []PaymentFailure          `json:"failures"`
	Skipped         []string                  `json:"skipped"` // claimed by another batch, left untouched
}

type ReconcileResponse struct {
	Checked      int              `json:"checked"`
	Confirmed    int              `json:"confirmed"`
	Failed       int              `json:"failed"`
	StillPending int              `json:"still_pending"`
	Errors       []PaymentFailure `json:"errors"`
}

type BalanceResponse struct {
	Operator    string           `json:"operator"`
	DisplayName string           `json:"display_name"`
	Supported   bool             `json:"supported"`
	Available   *decimal.Decimal `json:"available,omitempty"`
	Currency    string           `json:"currency,omitempty"`
	Error       string           `json:"error,omitempty"`
}
