package disbursement

import (
	"context"
	"fmt"
	"sort"

	"github.com/SialouWebServices/Saas/internal/domain/disbursement"
	"github.com/SialouWebServices/Saas/internal/domain/employee"
	"github.com/SialouWebServices/Saas/internal/domain/payroll"
	"github.com/SialouWebServices/Saas/internal/pkg/apperror"
	"github.com/SialouWebServices/Saas/internal/pkg/mobilemoney"
	"github.com/shopspring/decimal"
)

// buildPlan loads the selection and runs every payment check against the
// current employee profiles. Payslips that are not VALIDATED with a PENDING
// payment are excluded, not reported as issues.
func (s *DisbursementServiceImpl) buildPlan(ctx context.Context, companyID string, ids []string) (disbursement.Plan, error) {
	payslips, err := s.payrollRepo.GetPayslipsByIDs(ctx, companyID, ids)
	if err != nil {
		return disbursement.Plan{}, fmt.Errorf("failed to load payslips: %w", err)
	}
	if missing := missingPayslipIDs(ids, payslips); len(missing) > 0 {
		return disbursement.Plan{}, &apperror.AppError{Kind: apperror.ErrNotFound, Message: "payslip not found", IDs: missing}
	}

	var plan disbursement.Plan
	eligible := make([]payroll.Payslip, 0, len(payslips))
	employeeIDs := make([]string, 0, len(payslips))
	for _, p := range payslips {
		if p.Status != payroll.PayslipStatusValidated || p.PaymentStatus != payroll.PaymentStatusPending {
			plan.Excluded = append(plan.Excluded, p.ID)
			continue
		}
		eligible = append(eligible, p)
		employeeIDs = append(employeeIDs, p.EmployeeID)
	}
	if len(eligible) == 0 {
		return disbursement.Plan{}, disbursement.ErrNoPayableSlips
	}

	employees, err := s.employeeRepo.GetByIDs(ctx, companyID, employeeIDs)
	if err != nil {
		return disbursement.Plan{}, fmt.Errorf("failed to load employees: %w", err)
	}
	byID := make(map[string]employee.Employee, len(employees))
	for _, e := range employees {
		byID[e.ID] = e
	}

	for _, p := range eligible {
		emp, ok := byID[p.EmployeeID]
		if !ok {
			plan.Issues = append(plan.Issues, disbursement.Issue{
				PayslipID: p.ID, EmployeeID: p.EmployeeID, Field: "employee_id", Message: "employee not found",
			})
			continue
		}
		member, issues := s.checkMember(p, emp)
		if len(issues) > 0 {
			plan.Issues = append(plan.Issues, issues...)
			continue
		}
		plan.Members = append(plan.Members, member)
	}

	return plan, nil
}

func (s *DisbursementServiceImpl) checkMember(p payroll.Payslip, emp employee.Employee) (disbursement.Member, []disbursement.Issue) {
	member := disbursement.Member{Payslip: p, Employee: emp, Fee: decimal.Zero}
	var issues []disbursement.Issue
	issue := func(field, message string) {
		issues = append(issues, disbursement.Issue{
			PayslipID:    p.ID,
			EmployeeID:   emp.ID,
			EmployeeName: emp.FullName,
			Field:        field,
			Message:      message,
		})
	}

	if !member.Amount().IsPositive() {
		issue("net_pay", "net pay must be greater than 0")
	}

	if emp.PaymentMethod == nil || !emp.PaymentMethod.IsValid() {
		issue("payment_method", "no payment method configured")
		return member, issues
	}

	switch *emp.PaymentMethod {
	case employee.PaymentMethodMobileMoney:
		if emp.MobileMoneyNumber == nil || *emp.MobileMoneyNumber == "" {
			issue("mobile_money_number", "no mobile money number registered")
		}
		if emp.MobileMoneyOperator == nil || *emp.MobileMoneyOperator == "" {
			issue("mobile_money_operator", "no mobile money operator registered")
		}
		if len(issues) > 0 {
			return member, issues
		}

		op, err := mobilemoney.ParseOperator(*emp.MobileMoneyOperator)
		if err != nil {
			issue("mobile_money_operator", err.Error())
			return member, issues
		}
		member.Channel = disbursement.Channel(op)

		provider, err := s.providers.Create(op)
		if err != nil {
			issue("mobile_money_operator", err.Error())
			return member, issues
		}
		if !provider.ValidatePhoneNumber(*emp.MobileMoneyNumber) {
			issue("mobile_money_number", fmt.Sprintf("%s is not a valid %s number", *emp.MobileMoneyNumber, op.DisplayName()))
		}
		fees := provider.Fees()
		if err := fees.CheckLimits(member.Amount()); err != nil {
			issue("net_pay", err.Error())
		}
		member.Fee = fees.Fee(member.Amount())

	case employee.PaymentMethodBankTransfer:
		member.Channel = disbursement.ChannelBankTransfer
		if emp.BankAccountNumber == nil || *emp.BankAccountNumber == "" {
			issue("bank_account_number", "no bank account registered")
		}
	case employee.PaymentMethodCash:
		member.Channel = disbursement.ChannelCash
	case employee.PaymentMethodCheck:
		member.Channel = disbursement.ChannelCheck
	}

	return member, issues
}

var channelOrder = []disbursement.Channel{
	disbursement.ChannelOrange,
	disbursement.ChannelWave,
	disbursement.ChannelMTN,
	disbursement.ChannelBankTransfer,
	disbursement.ChannelCash,
	disbursement.ChannelCheck,
}

func channelLabel(c disbursement.Channel) string {
	switch c {
	case disbursement.ChannelBankTransfer:
		return "Virement bancaire"
	case disbursement.ChannelCash:
		return "Espèces"
	case disbursement.ChannelCheck:
		return "Chèque"
	}
	return mobilemoney.Operator(c).DisplayName()
}

// partition groups the members by channel in a stable order.
func partition(members []disbursement.Member) []disbursement.Partition {
	byChannel := make(map[disbursement.Channel]*disbursement.Partition)
	for _, m := range members {
		part, ok := byChannel[m.Channel]
		if !ok {
			part = &disbursement.Partition{
				Channel:       string(m.Channel),
				Label:         channelLabel(m.Channel),
				Amount:        decimal.Zero,
				EstimatedFees: decimal.Zero,
			}
			byChannel[m.Channel] = part
		}
		part.Count++
		part.Amount = part.Amount.Add(m.Amount())
		part.EstimatedFees = part.EstimatedFees.Add(m.Fee)
		part.PayslipIDs = append(part.PayslipIDs, m.Payslip.ID)
	}

	partitions := make([]disbursement.Partition, 0, len(byChannel))
	for _, c := range channelOrder {
		if part, ok := byChannel[c]; ok {
			partitions = append(partitions, *part)
		}
	}
	return partitions
}

func issueDetails(issues []disbursement.Issue) map[string]string {
	details := make(map[string]string, len(issues))
	for _, i := range issues {
		key := i.PayslipID + "." + i.Field
		if prev, ok := details[key]; ok {
			details[key] = prev + "; " + i.Message
			continue
		}
		details[key] = i.Message
	}
	return details
}

func missingPayslipIDs(requested []string, found []payroll.Payslip) []string {
	seen := make(map[string]bool, len(found))
	for _, p := range found {
		seen[p.ID] = true
	}
	var missing []string
	for _, id := range requested {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}
