package mobilemoney

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/SialouWebServices/Saas/internal/config"
	"github.com/shopspring/decimal"
)

const waveSessionsPath = "/v1/checkout/sessions"

// Wave works with checkout sessions: the session is created here and the
// transfer settles asynchronously on the Wave side.
type Wave struct {
	api apiClient
	cfg config.WaveConfig
}

func NewWave(cfg config.WaveConfig, opts Options) *Wave {
	return &Wave{
		api: newAPIClient(OperatorWave, cfg.BaseURL, opts.HTTPClient, opts.MinInterval, opts.Observer),
		cfg: cfg,
	}
}

func (w *Wave) Operator() Operator { return OperatorWave }

func (w *Wave) Fees() FeeSchedule { return WaveFees() }

func (w *Wave) ValidatePhoneNumber(phone string) bool {
	return validateWith(waveNumberRegex, phone)
}

func (w *Wave) headers(idempotencyKey string) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + w.cfg.APIKey}
	if idempotencyKey != "" {
		h["Idempotency-Key"] = idempotencyKey
	}
	return h
}

type waveSessionRequest struct {
	Amount              string `json:"amount"`
	Currency            string `json:"currency"`
	ClientReference     string `json:"client_reference"`
	SuccessURL          string `json:"success_url,omitempty"`
	ErrorURL            string `json:"error_url,omitempty"`
	RestrictPayerMobile string `json:"restrict_payer_mobile,omitempty"`
}

type waveSession struct {
	ID             string `json:"id"`
	Amount         string `json:"amount"`
	CheckoutStatus string `json:"checkout_status"`
	PaymentStatus  string `json:"payment_status"`
	WaveLaunchURL  string `json:"wave_launch_url"`
	WhenCreated    string `json:"when_created"`
	WhenCompleted  string `json:"when_completed"`
	LastPaymentErr *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error,omitempty"`
}

func (w *Wave) InitiatePayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	payload := waveSessionRequest{
		Amount:              req.Amount.Round(0).String(),
		Currency:            Currency,
		ClientReference:     req.InternalReference,
		SuccessURL:          w.cfg.SuccessURL,
		ErrorURL:            w.cfg.ErrorURL,
		RestrictPayerMobile: "+" + NormalizePhoneNumber(req.PhoneNumber),
	}

	resp, err := w.api.call(ctx, "initiate_payment", http.MethodPost, waveSessionsPath, w.headers(req.InternalReference), payload)
	if err != nil {
		return PaymentResult{}, err
	}
	if !resp.OK() {
		return PaymentResult{Success: false, Status: StatusFailed, ErrorMessage: errorMessage(resp), RawResponse: resp.Body}, nil
	}

	var session waveSession
	if err := w.api.decode("initiate_payment", resp, &session); err != nil {
		return PaymentResult{}, err
	}
	return PaymentResult{
		Success:              true,
		TransactionReference: session.ID,
		Status:               mapWaveStatus(session),
		Message:              session.WaveLaunchURL,
		RawResponse:          resp.Body,
	}, nil
}

func (w *Wave) CheckTransactionStatus(ctx context.Context, reference string) (TransactionStatus, error) {
	resp, err := w.api.call(ctx, "check_status", http.MethodGet, waveSessionsPath+"/"+url.PathEscape(reference), w.headers(""), nil)
	if err != nil {
		return TransactionStatus{}, err
	}
	if !resp.OK() {
		return TransactionStatus{}, &TechnicalError{Operator: OperatorWave, Operation: "check_status", Err: fmt.Errorf("%s", errorMessage(resp))}
	}

	var session waveSession
	if err := w.api.decode("check_status", resp, &session); err != nil {
		return TransactionStatus{}, err
	}
	status := TransactionStatus{TransactionReference: reference, Status: mapWaveStatus(session)}
	if session.LastPaymentErr != nil {
		status.Message = session.LastPaymentErr.Message
	}
	if session.Amount != "" {
		status.Amount, _ = decimal.NewFromString(session.Amount)
	}
	// Wave does not charge the sender, Fee stays zero.
	status.setTimes(session.WhenCreated, session.WhenCompleted)
	return status, nil
}

func (w *Wave) GetBalance(ctx context.Context) (Balance, error) {
	return Balance{}, ErrBalanceUnsupported
}

func mapWaveStatus(s waveSession) Status {
	switch strings.ToLower(s.PaymentStatus) {
	case "succeeded", "complete", "completed":
		return StatusSuccess
	case "failed":
		return StatusFailed
	case "cancelled", "canceled":
		return StatusCancelled
	}
	switch strings.ToLower(s.CheckoutStatus) {
	case "complete", "completed":
		return StatusSuccess
	case "expired":
		return StatusCancelled
	}
	return StatusPending
}
