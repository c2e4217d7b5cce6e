package disbursement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SialouWebServices/Saas/internal/domain/disbursement"
	"github.com/SialouWebServices/Saas/internal/domain/employee"
	"github.com/SialouWebServices/Saas/internal/domain/payroll"
	"github.com/SialouWebServices/Saas/internal/pkg/apperror"
	"github.com/SialouWebServices/Saas/internal/pkg/lock"
	"github.com/SialouWebServices/Saas/internal/pkg/mobilemoney"
	"github.com/SialouWebServices/Saas/internal/pkg/notification"
	"github.com/go-chi/jwtauth/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCompanyID = "company-1"

func authContext(t *testing.T) context.Context {
	t.Helper()
	tokenAuth := jwtauth.New("HS256", []byte("test-secret"), nil)
	token, _, err := tokenAuth.Encode(map[string]interface{}{
		"user_id":    "user-1",
		"company_id": testCompanyID,
		"role":       "accountant",
	})
	require.NoError(t, err)
	return jwtauth.NewContext(context.Background(), token, nil)
}

type noopTransactor struct{}

func (noopTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// ===== FAKES =====

type memoryPayrollRepo struct {
	payroll.PayrollRepository

	mu       sync.Mutex
	payslips map[string]*payroll.Payslip
	history  map[string][]payroll.PaymentStatus
}

func newMemoryPayrollRepo(payslips ...payroll.Payslip) *memoryPayrollRepo {
	r := &memoryPayrollRepo{payslips: make(map[string]*payroll.Payslip), history: make(map[string][]payroll.PaymentStatus)}
	for i := range payslips {
		p := payslips[i]
		r.payslips[p.ID] = &p
	}
	return r
}

func (r *memoryPayrollRepo) GetPayslipsByIDs(ctx context.Context, companyID string, ids []string) ([]payroll.Payslip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []payroll.Payslip
	for _, id := range ids {
		if p, ok := r.payslips[id]; ok && p.CompanyID == companyID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryPayrollRepo) ListByPaymentStatus(ctx context.Context, companyID string, status payroll.PaymentStatus) ([]payroll.Payslip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []payroll.Payslip
	for _, p := range r.payslips {
		if p.PaymentStatus == status {
			out = append(out, *p)
		}
	}
	return out, nil
}

// UpdatePayslipStatus fails on a finished context the way a pgx query does.
func (r *memoryPayrollRepo) UpdatePayslipStatus(ctx context.Context, companyID string, u payroll.StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payslips[u.ID]
	if !ok {
		return payroll.ErrPayslipNotFound
	}
	if (u.FromStatus != nil && p.Status != *u.FromStatus) ||
		(u.FromPaymentStatus != nil && p.PaymentStatus != *u.FromPaymentStatus) {
		return payroll.ErrInvalidTransition
	}
	if u.Status != nil {
		p.Status = *u.Status
	}
	if u.PaymentStatus != nil {
		p.PaymentStatus = *u.PaymentStatus
		r.history[u.ID] = append(r.history[u.ID], *u.PaymentStatus)
	}
	if u.PaymentChannel != nil {
		p.PaymentChannel = u.PaymentChannel
	}
	if u.PaymentOperator != nil {
		p.PaymentOperator = u.PaymentOperator
	}
	if u.TransactionReference != nil {
		p.TransactionReference = u.TransactionReference
	}
	if u.PaymentError != nil {
		p.PaymentError = u.PaymentError
	}
	return nil
}

func (r *memoryPayrollRepo) get(id string) payroll.Payslip {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.payslips[id]
}

type memoryEmployeeRepo struct {
	employee.EmployeeRepository
	employees map[string]employee.Employee
}

func (r *memoryEmployeeRepo) GetByIDs(ctx context.Context, companyID string, ids []string) ([]employee.Employee, error) {
	var out []employee.Employee
	for _, id := range ids {
		if e, ok := r.employees[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeProvider accepts ten-digit numbers and lets tests script each payment.
type fakeProvider struct {
	op      mobilemoney.Operator
	mu      sync.Mutex
	calls   []mobilemoney.PaymentRequest
	pay     func(ctx context.Context, req mobilemoney.PaymentRequest) (mobilemoney.PaymentResult, error)
	status  func(ref string) (mobilemoney.TransactionStatus, error)
	balance func() (mobilemoney.Balance, error)
}

func (p *fakeProvider) Operator() mobilemoney.Operator { return p.op }

func (p *fakeProvider) InitiatePayment(ctx context.Context, req mobilemoney.PaymentRequest) (mobilemoney.PaymentResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()
	if p.pay != nil {
		return p.pay(ctx, req)
	}
	return mobilemoney.PaymentResult{Success: true, Status: mobilemoney.StatusSuccess, TransactionReference: "TX-" + req.InternalReference}, nil
}

func (p *fakeProvider) CheckTransactionStatus(ctx context.Context, ref string) (mobilemoney.TransactionStatus, error) {
	if p.status != nil {
		return p.status(ref)
	}
	return mobilemoney.TransactionStatus{TransactionReference: ref, Status: mobilemoney.StatusPending}, nil
}

func (p *fakeProvider) GetBalance(ctx context.Context) (mobilemoney.Balance, error) {
	if p.balance != nil {
		return p.balance()
	}
	return mobilemoney.Balance{}, mobilemoney.ErrBalanceUnsupported
}

func (p *fakeProvider) ValidatePhoneNumber(phone string) bool {
	return len(mobilemoney.LocalNumber(phone)) == 10
}

func (p *fakeProvider) Fees() mobilemoney.FeeSchedule {
	return mobilemoney.FeesFor(p.op)
}

type fakeResolver struct {
	providers map[mobilemoney.Operator]*fakeProvider
}

func (r *fakeResolver) Create(op mobilemoney.Operator) (mobilemoney.Provider, error) {
	if p, ok := r.providers[op]; ok {
		return p, nil
	}
	return nil, apperror.New(apperror.ErrUnsupportedOperation, op.DisplayName()+" is not configured")
}

func (r *fakeResolver) Configured() []mobilemoney.Operator {
	var ops []mobilemoney.Operator
	for _, op := range mobilemoney.Operators {
		if _, ok := r.providers[op]; ok {
			ops = append(ops, op)
		}
	}
	return ops
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notification.Event
	err    error
}

func (p *recordingPublisher) Notify(ctx context.Context, event notification.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

// ===== HELPERS =====

func strPtr(s string) *string { return &s }

func methodPtr(m employee.PaymentMethod) *employee.PaymentMethod { return &m }

func mobileEmployee(id, number, operator string) employee.Employee {
	e := employee.Employee{
		ID:                  id,
		CompanyID:           testCompanyID,
		FullName:            "Employee " + id,
		EmploymentStatus:    employee.EmploymentStatusActive,
		PaymentMethod:       methodPtr(employee.PaymentMethodMobileMoney),
		MobileMoneyOperator: strPtr(operator),
	}
	if number != "" {
		e.MobileMoneyNumber = strPtr(number)
	}
	return e
}

func validatedPayslip(id, employeeID string, net int64) payroll.Payslip {
	return payroll.Payslip{
		ID:            id,
		CompanyID:     testCompanyID,
		EmployeeID:    employeeID,
		PeriodMonth:   1,
		PeriodYear:    2024,
		Status:        payroll.PayslipStatusValidated,
		PaymentStatus: payroll.PaymentStatusPending,
		Calculation:   payroll.PayslipCalculation{NetPay: decimal.NewFromInt(net)},
	}
}

type fixture struct {
	svc       *DisbursementServiceImpl
	payrolls  *memoryPayrollRepo
	resolver  *fakeResolver
	locker    lock.Locker
	publisher *recordingPublisher
}

func newFixture(payslips []payroll.Payslip, employees []employee.Employee) *fixture {
	emps := make(map[string]employee.Employee, len(employees))
	for _, e := range employees {
		emps[e.ID] = e
	}
	f := &fixture{
		payrolls: newMemoryPayrollRepo(payslips...),
		resolver: &fakeResolver{providers: map[mobilemoney.Operator]*fakeProvider{
			mobilemoney.OperatorOrange: {op: mobilemoney.OperatorOrange},
			mobilemoney.OperatorWave:   {op: mobilemoney.OperatorWave},
			mobilemoney.OperatorMTN:    {op: mobilemoney.OperatorMTN},
		}},
		locker:    lock.NewLocalLocker(),
		publisher: &recordingPublisher{},
	}
	f.svc = NewDisbursementService(noopTransactor{}, f.payrolls, &memoryEmployeeRepo{employees: emps},
		f.resolver, f.locker, time.Minute, f.publisher, nil).(*DisbursementServiceImpl)
	return f
}

// ===== PREVIEW TESTS =====

func TestDisbursementService_Preview_MissingNumberBlocksBatch(t *testing.T) {
	ctx := authContext(t)
	f := newFixture(
		[]payroll.Payslip{
			validatedPayslip("p1", "e1", 300000),
			validatedPayslip("p2", "e2", 250000),
			validatedPayslip("p3", "e3", 200000),
		},
		[]employee.Employee{
			mobileEmployee("e1", "0707123456", "orange_money"),
			mobileEmployee("e2", "", "orange_money"),
			mobileEmployee("e3", "0505123456", "orange_money"),
		},
	)
	ids := []string{"p1", "p2", "p3"}

	// Act
	preview, err := f.svc.Preview(ctx, disbursement.PreviewRequest{PayslipIDs: ids})

	// Assert
	require.NoError(t, err)
	assert.False(t, preview.PeutValider)
	require.Len(t, preview.ValidationErrors, 1)
	assert.Equal(t, "p2", preview.ValidationErrors[0].PayslipID)
	assert.Equal(t, "mobile_money_number", preview.ValidationErrors[0].Field)
	assert.Equal(t, 3, preview.TotalBulletins)

	// Confirm is rejected and nothing moves
	_, err = f.svc.Confirm(ctx, disbursement.ConfirmRequest{PayslipIDs: ids})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Empty(t, f.resolver.providers[mobilemoney.OperatorOrange].calls)
	assert.Equal(t, payroll.PaymentStatusPending, f.payrolls.get("p1").PaymentStatus)
}

func TestDisbursementService_Preview_PartitionsAndFees(t *testing.T) {
	ctx := authContext(t)
	bank := employee.Employee{
		ID:            "e4", CompanyID: testCompanyID, FullName: "Employee e4",
		PaymentMethod: methodPtr(employee.PaymentMethodBankTransfer), BankAccountNumber: strPtr("CI0010010001"),
	}
	cash := employee.Employee{ID: "e5", CompanyID: testCompanyID, FullName: "Employee e5", PaymentMethod: methodPtr(employee.PaymentMethodCash)}
	f := newFixture(
		[]payroll.Payslip{
			validatedPayslip("p1", "e1", 300000),
			validatedPayslip("p2", "e2", 5000),
			validatedPayslip("p3", "e3", 200000),
			validatedPayslip("p4", "e4", 400000),
			validatedPayslip("p5", "e5", 100000),
		},
		[]employee.Employee{
			mobileEmployee("e1", "0707123456", "orange_money"),
			mobileEmployee("e2", "0505123456", "orange"),
			mobileEmployee("e3", "0101123456", "wave"),
			bank,
			cash,
		},
	)

	preview, err := f.svc.Preview(ctx, disbursement.PreviewRequest{PayslipIDs: []string{"p1", "p2", "p3", "p4", "p5"}})

	require.NoError(t, err)
	assert.True(t, preview.PeutValider)
	assert.Empty(t, preview.ValidationErrors)
	assert.Equal(t, 5, preview.TotalBulletins)
	assert.True(t, preview.MontantTotal.Equal(decimal.NewFromInt(1005000)))

	require.Len(t, preview.Partitions, 4)
	assert.Equal(t, "orange_money", preview.Partitions[0].Channel)
	assert.Equal(t, 2, preview.Partitions[0].Count)
	// 300000 at 2% plus the 5000 tier fee
	assert.True(t, preview.Partitions[0].EstimatedFees.Equal(decimal.NewFromInt(6000+mobilemoney.OrangeFees().Fee(decimal.NewFromInt(5000)).IntPart())))
	assert.Equal(t, "wave", preview.Partitions[1].Channel)
	assert.True(t, preview.Partitions[1].EstimatedFees.IsZero())
	assert.Equal(t, "BANK_TRANSFER", preview.Partitions[2].Channel)
	assert.Equal(t, "CASH", preview.Partitions[3].Channel)
}

func TestDisbursementService_Preview_Issues(t *testing.T) {
	ctx := authContext(t)
	noAccount := employee.Employee{ID: "e3", CompanyID: testCompanyID, PaymentMethod: methodPtr(employee.PaymentMethodBankTransfer)}
	noMethod := employee.Employee{ID: "e4", CompanyID: testCompanyID}
	f := newFixture(
		[]payroll.Payslip{
			validatedPayslip("p1", "e1", 300000),
			validatedPayslip("p2", "e2", 2000000),
			validatedPayslip("p3", "e3", 300000),
			validatedPayslip("p4", "e4", 300000),
			validatedPayslip("p5", "e5", 300000),
		},
		[]employee.Employee{
			mobileEmployee("e1", "0707", "orange_money"),
			mobileEmployee("e2", "0707123456", "orange_money"),
			noAccount,
			noMethod,
			mobileEmployee("e5", "0707123456", "moov"),
		},
	)

	preview, err := f.svc.Preview(ctx, disbursement.PreviewRequest{PayslipIDs: []string{"p1", "p2", "p3", "p4", "p5"}})

	require.NoError(t, err)
	assert.False(t, preview.PeutValider)
	fields := map[string]string{}
	for _, issue := range preview.ValidationErrors {
		fields[issue.PayslipID] = issue.Field
	}
	assert.Equal(t, map[string]string{
		"p1": "mobile_money_number",
		"p2": "net_pay",
		"p3": "bank_account_number",
		"p4": "payment_method",
		"p5": "mobile_money_operator",
	}, fields)
}

func TestDisbursementService_Preview_ExcludesNonPending(t *testing.T) {
	ctx := authContext(t)
	sent := validatedPayslip("p2", "e1", 300000)
	sent.PaymentStatus = payroll.PaymentStatusFailed
	f := newFixture(
		[]payroll.Payslip{validatedPayslip("p1", "e1", 300000), sent},
		[]employee.Employee{mobileEmployee("e1", "0707123456", "orange_money")},
	)

	preview, err := f.svc.Preview(ctx, disbursement.PreviewRequest{PayslipIDs: []string{"p1", "p2"}})

	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, preview.Exclus)
	assert.Equal(t, 1, preview.TotalBulletins)
}

func TestDisbursementService_Preview_EmptyBatch(t *testing.T) {
	ctx := authContext(t)
	draft := validatedPayslip("p1", "e1", 300000)
	draft.Status = payroll.PayslipStatusDraft
	f := newFixture([]payroll.Payslip{draft}, []employee.Employee{mobileEmployee("e1", "0707123456", "orange_money")})

	_, err := f.svc.Preview(ctx, disbursement.PreviewRequest{PayslipIDs: []string{"p1"}})

	assert.ErrorIs(t, err, apperror.ErrEmptyBatch)
}

func TestDisbursementService_Preview_UnknownPayslip(t *testing.T) {
	ctx := authContext(t)
	f := newFixture(nil, nil)

	_, err := f.svc.Preview(ctx, disbursement.PreviewRequest{PayslipIDs: []string{"ghost"}})

	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// ===== CONFIRM TESTS =====

func TestDisbursementService_Confirm_PartialFailure(t *testing.T) {
	ctx := authContext(t)
	f := newFixture(
		[]payroll.Payslip{
			validatedPayslip("p1", "e1", 300000),
			validatedPayslip("p2", "e2", 250000),
			validatedPayslip("p3", "e3", 200000),
			validatedPayslip("p4", "e4", 150000),
			validatedPayslip("p5", "e5", 100000),
		},
		[]employee.Employee{
			mobileEmployee("e1", "0707123456", "orange_money"),
			mobileEmployee("e2", "0707000000", "orange_money"),
			mobileEmployee("e3", "0101123456", "wave"),
			mobileEmployee("e4", "0505000000", "orange_money"),
			mobileEmployee("e5", "0505123456", "mtn_momo"),
		},
	)
	// The operator rejects numbers it does not know and one call times out.
	f.resolver.providers[mobilemoney.OperatorOrange].pay = func(ctx context.Context, req mobilemoney.PaymentRequest) (mobilemoney.PaymentResult, error) {
		switch req.PhoneNumber {
		case "2250707000000":
			return mobilemoney.PaymentResult{Success: false, Status: mobilemoney.StatusFailed, ErrorMessage: "unknown subscriber"}, nil
		case "2250505000000":
			return mobilemoney.PaymentResult{}, &mobilemoney.TechnicalError{Operator: mobilemoney.OperatorOrange, Operation: "pay", Err: errors.New("timeout")}
		}
		return mobilemoney.PaymentResult{Success: true, Status: mobilemoney.StatusSuccess, TransactionReference: "OM-" + req.InternalReference}, nil
	}

	// Act
	resp, err := f.svc.Confirm(ctx, disbursement.ConfirmRequest{PayslipIDs: []string{"p1", "p2", "p3", "p4", "p5"}, NotifyEmployees: true})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 5, resp.TotalProcessed)
	assert.Equal(t, 3, resp.Succeeded)
	assert.Equal(t, 2, resp.Failed)
	assert.True(t, resp.AmountDisbursed.Equal(decimal.NewFromInt(600000)))
	assert.True(t, resp.SuccessRate.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, 1, resp.ByChannel["orange_money"].Succeeded)
	assert.Equal(t, 2, resp.ByChannel["orange_money"].Failed)

	failed := map[string]string{}
	for _, fl := range resp.Failures {
		failed[fl.PayslipID] = fl.Reason
	}
	assert.Equal(t, "unknown subscriber", failed["p2"])
	assert.Contains(t, failed["p4"], "timeout")

	p1 := f.payrolls.get("p1")
	assert.Equal(t, payroll.PayslipStatusSent, p1.Status)
	assert.Equal(t, payroll.PaymentStatusSent, p1.PaymentStatus)
	require.NotNil(t, p1.TransactionReference)
	assert.Equal(t, "OM-SAL-p1", *p1.TransactionReference)
	assert.Equal(t, []payroll.PaymentStatus{payroll.PaymentStatusInProgress, payroll.PaymentStatusSent}, f.payrolls.history["p1"])

	p2 := f.payrolls.get("p2")
	assert.Equal(t, payroll.PayslipStatusValidated, p2.Status, "a failed payment never reverts the payslip")
	assert.Equal(t, payroll.PaymentStatusFailed, p2.PaymentStatus)
	require.NotNil(t, p2.PaymentError)

	orangeCalls := f.resolver.providers[mobilemoney.OperatorOrange].calls
	require.Len(t, orangeCalls, 3)
	assert.Equal(t, "Salaire Janvier 2024", orangeCalls[0].Reason)
	assert.Equal(t, "SAL-p1", orangeCalls[0].InternalReference)

	assert.Len(t, f.publisher.events, 5)
}

func TestDisbursementService_Confirm_ManualChannels(t *testing.T) {
	ctx := authContext(t)
	cash := employee.Employee{ID: "e1", CompanyID: testCompanyID, FullName: "Employee e1", PaymentMethod: methodPtr(employee.PaymentMethodCash)}
	check := employee.Employee{ID: "e2", CompanyID: testCompanyID, FullName: "Employee e2", PaymentMethod: methodPtr(employee.PaymentMethodCheck)}
	f := newFixture(
		[]payroll.Payslip{validatedPayslip("p1", "e1", 100000), validatedPayslip("p2", "e2", 200000)},
		[]employee.Employee{cash, check},
	)

	resp, err := f.svc.Confirm(ctx, disbursement.ConfirmRequest{PayslipIDs: []string{"p1", "p2"}})

	require.NoError(t, err)
	assert.Equal(t, 2, resp.Succeeded)
	assert.True(t, resp.SuccessRate.Equal(decimal.NewFromInt(100)))
	for _, id := range []string{"p1", "p2"} {
		p := f.payrolls.get(id)
		assert.Equal(t, payroll.PayslipStatusSent, p.Status)
		assert.Equal(t, payroll.PaymentStatusSent, p.PaymentStatus)
	}
	assert.Empty(t, f.publisher.events, "no notification unless asked")
}

func TestDisbursementService_Confirm_PendingTransferStaysInProgress(t *testing.T) {
	ctx := authContext(t)
	f := newFixture(
		[]payroll.Payslip{validatedPayslip("p1", "e1", 100000)},
		[]employee.Employee{mobileEmployee("e1", "0505123456", "mtn_momo")},
	)
	f.resolver.providers[mobilemoney.OperatorMTN].pay = func(ctx context.Context, req mobilemoney.PaymentRequest) (mobilemoney.PaymentResult, error) {
		return mobilemoney.PaymentResult{Success: true, Status: mobilemoney.StatusPending, TransactionReference: "ref-1"}, nil
	}

	resp, err := f.svc.Confirm(ctx, disbursement.ConfirmRequest{PayslipIDs: []string{"p1"}})

	require.NoError(t, err)
	assert.Equal(t, 1, resp.Succeeded)
	p := f.payrolls.get("p1")
	assert.Equal(t, payroll.PayslipStatusSent, p.Status)
	assert.Equal(t, payroll.PaymentStatusInProgress, p.PaymentStatus)
}

func TestDisbursementService_Confirm_LockHeld(t *testing.T) {
	ctx := authContext(t)
	f := newFixture(
		[]payroll.Payslip{validatedPayslip("p1", "e1", 100000)},
		[]employee.Employee{mobileEmployee("e1", "0707123456", "orange_money")},
	)
	release, err := f.locker.Acquire(ctx, "disbursement:"+testCompanyID, time.Minute)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, disbursement.ConfirmRequest{PayslipIDs: []string{"p1"}})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	release()
	_, err = f.svc.Confirm(ctx, disbursement.ConfirmRequest{PayslipIDs: []string{"p1"}})
	assert.NoError(t, err)
}

func TestDisbursementService_Confirm_SecondRunDoesNotRepay(t *testing.T) {
	ctx := authContext(t)
	f := newFixture(
		[]payroll.Payslip{validatedPayslip("p1", "e1", 100000)},
		[]employee.Employee{mobileEmployee("e1", "0707123456", "orange_money")},
	)

	_, err := f.svc.Confirm(ctx, disbursement.ConfirmRequest{PayslipIDs: []string{"p1"}})
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, disbursement.ConfirmRequest{PayslipIDs: []string{"p1"}})
	assert.ErrorIs(t, err, apperror.ErrEmptyBatch)
	assert.Len(t, f.resolver.providers[mobilemoney.OperatorOrange].calls, 1)
}

func TestDisbursementService_Confirm_NotificationErrorsAreSwallowed(t *testing.T) {
	ctx := authContext(t)
	f := newFixture(
		[]payroll.Payslip{validatedPayslip("p1", "e1", 100000)},
		[]employee.Employee{mobileEmployee("e1", "0707123456", "orange_money")},
	)
	f.publisher.err = errors.New("broker down")

	resp, err := f.svc.Confirm(ctx, disbursement.ConfirmRequest{PayslipIDs: []string{"p1"}, NotifyEmployees: true})

	require.NoError(t, err)
	assert.Equal(t, 1, resp.Succeeded)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, notification.EventSalaryPaid, f.publisher.events[0].Type)
}

// lapsedLocker grants every Acquire, as a Redis lock does once the previous
// holder's lease has run out.
type lapsedLocker struct{}

func (lapsedLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return func() {}, nil
}

func TestDisbursementService_Confirm_OverlappingRunsPayOnce(t *testing.T) {
	ctx := authContext(t)
	f := newFixture(
		[]payroll.Payslip{validatedPayslip("p1", "e1", 100000), validatedPayslip("p2", "e2", 200000)},
		[]employee.Employee{
			mobileEmployee("e1", "0707123456", "orange_money"),
			mobileEmployee("e2", "0707654321", "orange_money"),
		},
	)
	f.svc.locker = lapsedLocker{}

	// While the first run waits on p1 a second confirm of the same selection
	// gets through and pays p2.
	var second disbursement.ConfirmResponse
	var secondErr error
	started := false
	orange := f.resolver.providers[mobilemoney.OperatorOrange]
	orange.pay = func(ctx context.Context, req mobilemoney.PaymentRequest) (mobilemoney.PaymentResult, error) {
		if req.InternalReference == "SAL-p1" && !started {
			started = true
			second, secondErr = f.svc.Confirm(authContext(t), disbursement.ConfirmRequest{PayslipIDs: []string{"p1", "p2"}})
		}
		return mobilemoney.PaymentResult{Success: true, Status: mobilemoney.StatusSuccess, TransactionReference: "OM-" + req.InternalReference}, nil
	}

	// Act
	first, err := f.svc.Confirm(ctx, disbursement.ConfirmRequest{PayslipIDs: []string{"p1", "p2"}})

	// Assert
	require.NoError(t, err)
	require.NoError(t, secondErr)
	assert.Equal(t, 1, second.Succeeded)

	assert.Equal(t, 1, first.Succeeded)
	assert.Equal(t, 1, first.TotalProcessed)
	assert.Equal(t, []string{"p2"}, first.Skipped)

	paid := map[string]int{}
	for _, call := range orange.calls {
		paid[call.InternalReference]++
	}
	assert.Equal(t, map[string]int{"SAL-p1": 1, "SAL-p2": 1}, paid)
	assert.Equal(t, payroll.PaymentStatusSent, f.payrolls.get("p2").PaymentStatus)
}

func TestDisbursementService_SettleManual_SkipsClaimedPayslip(t *testing.T) {
	ctx := authContext(t)
	cash := employee.Employee{ID: "e1", CompanyID: testCompanyID, FullName: "Employee e1", PaymentMethod: methodPtr(employee.PaymentMethodCash)}
	f := newFixture([]payroll.Payslip{validatedPayslip("p1", "e1", 100000)}, []employee.Employee{cash})

	plan, err := f.svc.buildPlan(ctx, testCompanyID, []string{"p1"})
	require.NoError(t, err)

	// Another batch settles p1 between planning and settlement.
	sent := payroll.PaymentStatusSent
	require.NoError(t, f.payrolls.UpdatePayslipStatus(ctx, testCompanyID, payroll.StatusUpdate{ID: "p1", PaymentStatus: &sent}))

	outcomes := f.svc.settleManual(ctx, testCompanyID, plan.Members)

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].skipped)
	assert.True(t, outcomes[0].ok())
}

func TestDisbursementService_Confirm_ClientDisconnectStillRecordsOutcomes(t *testing.T) {
	reqCtx, disconnect := context.WithCancel(authContext(t))
	defer disconnect()
	f := newFixture(
		[]payroll.Payslip{validatedPayslip("p1", "e1", 100000), validatedPayslip("p2", "e2", 200000)},
		[]employee.Employee{
			mobileEmployee("e1", "0707123456", "orange_money"),
			mobileEmployee("e2", "0707000000", "orange_money"),
		},
	)
	f.resolver.providers[mobilemoney.OperatorOrange].pay = func(ctx context.Context, req mobilemoney.PaymentRequest) (mobilemoney.PaymentResult, error) {
		if req.InternalReference == "SAL-p1" {
			// The client goes away while the first transfer is in flight.
			disconnect()
		}
		if err := ctx.Err(); err != nil {
			return mobilemoney.PaymentResult{}, &mobilemoney.TechnicalError{Operator: mobilemoney.OperatorOrange, Operation: "pay", Err: err}
		}
		if req.PhoneNumber == "2250707000000" {
			return mobilemoney.PaymentResult{Success: false, Status: mobilemoney.StatusFailed, ErrorMessage: "unknown subscriber"}, nil
		}
		return mobilemoney.PaymentResult{Success: true, Status: mobilemoney.StatusSuccess, TransactionReference: "OM-" + req.InternalReference}, nil
	}

	resp, err := f.svc.Confirm(reqCtx, disbursement.ConfirmRequest{PayslipIDs: []string{"p1", "p2"}})

	require.NoError(t, err)
	assert.Equal(t, 1, resp.Succeeded)
	assert.Equal(t, 1, resp.Failed)

	p1 := f.payrolls.get("p1")
	assert.Equal(t, payroll.PaymentStatusSent, p1.PaymentStatus)
	require.NotNil(t, p1.TransactionReference)
	assert.Equal(t, "OM-SAL-p1", *p1.TransactionReference)

	p2 := f.payrolls.get("p2")
	assert.Equal(t, payroll.PaymentStatusFailed, p2.PaymentStatus, "the failure is recorded so the payment can be retried")
	require.NotNil(t, p2.PaymentError)
	assert.Equal(t, "unknown subscriber", *p2.PaymentError)
}

func TestDisbursementService_LeaseCoversBatch(t *testing.T) {
	f := newFixture(nil, nil)

	assert.Equal(t, time.Minute, f.svc.leaseFor(1))
	assert.Equal(t, 100*paymentLease, f.svc.leaseFor(100))
}

// ===== RECONCILE & BALANCE TESTS =====

func TestDisbursementService_ReconcilePending(t *testing.T) {
	ctx := authContext(t)
	inProgress := func(id, ref string) payroll.Payslip {
		p := validatedPayslip(id, "e-"+id, 100000)
		p.Status = payroll.PayslipStatusSent
		p.PaymentStatus = payroll.PaymentStatusInProgress
		p.PaymentOperator = strPtr("mtn_momo")
		if ref != "" {
			p.TransactionReference = strPtr(ref)
		}
		return p
	}
	f := newFixture([]payroll.Payslip{
		inProgress("p1", "ok"),
		inProgress("p2", "ko"),
		inProgress("p3", "wait"),
		inProgress("p4", ""),
	}, nil)
	f.resolver.providers[mobilemoney.OperatorMTN].status = func(ref string) (mobilemoney.TransactionStatus, error) {
		switch ref {
		case "ok":
			return mobilemoney.TransactionStatus{Status: mobilemoney.StatusSuccess}, nil
		case "ko":
			return mobilemoney.TransactionStatus{Status: mobilemoney.StatusFailed, Message: "PAYEE_NOT_FOUND"}, nil
		}
		return mobilemoney.TransactionStatus{Status: mobilemoney.StatusPending}, nil
	}

	resp, err := f.svc.ReconcilePending(ctx)

	require.NoError(t, err)
	assert.Equal(t, 4, resp.Checked)
	assert.Equal(t, 1, resp.Confirmed)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, 1, resp.StillPending)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "p4", resp.Errors[0].PayslipID)

	assert.Equal(t, payroll.PaymentStatusSent, f.payrolls.get("p1").PaymentStatus)
	p2 := f.payrolls.get("p2")
	assert.Equal(t, payroll.PaymentStatusFailed, p2.PaymentStatus)
	assert.Equal(t, "PAYEE_NOT_FOUND", *p2.PaymentError)
	assert.Equal(t, payroll.PaymentStatusInProgress, f.payrolls.get("p3").PaymentStatus)
}

func TestDisbursementService_ProviderBalances(t *testing.T) {
	ctx := authContext(t)
	f := newFixture(nil, nil)
	f.resolver.providers[mobilemoney.OperatorOrange].balance = func() (mobilemoney.Balance, error) {
		return mobilemoney.Balance{Operator: mobilemoney.OperatorOrange, Available: decimal.NewFromInt(2500000), Currency: "XOF"}, nil
	}
	f.resolver.providers[mobilemoney.OperatorMTN].balance = func() (mobilemoney.Balance, error) {
		return mobilemoney.Balance{}, &mobilemoney.TechnicalError{Operator: mobilemoney.OperatorMTN, Operation: "balance", Err: errors.New("502")}
	}

	balances, err := f.svc.ProviderBalances(ctx)

	require.NoError(t, err)
	require.Len(t, balances, 3)
	assert.Equal(t, "orange_money", balances[0].Operator)
	assert.True(t, balances[0].Supported)
	require.NotNil(t, balances[0].Available)
	assert.True(t, balances[0].Available.Equal(decimal.NewFromInt(2500000)))

	assert.Equal(t, "wave", balances[1].Operator)
	assert.False(t, balances[1].Supported)
	assert.Empty(t, balances[1].Error)

	assert.Equal(t, "mtn_momo", balances[2].Operator)
	assert.True(t, balances[2].Supported)
	assert.NotEmpty(t, balances[2].Error)
}
