package mobilemoney

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SialouWebServices/Saas/internal/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	mtnTokenPath    = "/disbursement/token/"
	mtnTransferPath = "/disbursement/v1_0/transfer"
	mtnBalancePath  = "/disbursement/v1_0/account/balance"
)

// mtnReferenceNamespace derives X-Reference-Id values from our internal
// payment reference, so a retried transfer reuses the same id and MTN rejects
// the duplicate instead of paying twice.
var mtnReferenceNamespace = uuid.MustParse("6f1c7d0e-2b4a-4c8e-9f3d-5a7b1e2c9d40")

// MTNMoMo pays through the MTN MoMo disbursement API.
type MTNMoMo struct {
	api    apiClient
	cfg    config.MTNConfig
	tokens *tokenCache
}

func NewMTNMoMo(cfg config.MTNConfig, opts Options) *MTNMoMo {
	m := &MTNMoMo{
		api: newAPIClient(OperatorMTN, cfg.BaseURL, opts.HTTPClient, opts.MinInterval, opts.Observer),
		cfg: cfg,
	}
	m.tokens = newTokenCache(m.fetchToken)
	return m
}

func (m *MTNMoMo) Operator() Operator { return OperatorMTN }

func (m *MTNMoMo) Fees() FeeSchedule { return MTNFees() }

func (m *MTNMoMo) ValidatePhoneNumber(phone string) bool {
	return validateWith(mtnNumberRegex, phone)
}

// ReferenceID returns the X-Reference-Id used for an internal payment reference.
func ReferenceID(internalReference string) string {
	return uuid.NewSHA1(mtnReferenceNamespace, []byte(internalReference)).String()
}

func (m *MTNMoMo) fetchToken(ctx context.Context) (string, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.api.baseURL+mtnTokenPath, nil)
	if err != nil {
		return "", time.Time{}, &TechnicalError{Operator: OperatorMTN, Operation: "token", Err: err}
	}
	req.SetBasicAuth(m.cfg.APIUser, m.cfg.APIKey)
	req.Header.Set("Ocp-Apim-Subscription-Key", m.cfg.SubscriptionKey)

	resp, err := m.api.send(req, "token")
	if err != nil {
		return "", time.Time{}, err
	}
	if !resp.OK() {
		return "", time.Time{}, &TechnicalError{Operator: OperatorMTN, Operation: "token", Err: fmt.Errorf("%s", errorMessage(resp))}
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := m.api.decode("token", resp, &body); err != nil {
		return "", time.Time{}, err
	}
	if body.AccessToken == "" {
		return "", time.Time{}, &TechnicalError{Operator: OperatorMTN, Operation: "token", Err: fmt.Errorf("empty access token")}
	}
	return body.AccessToken, m.tokens.now().Add(time.Duration(body.ExpiresIn) * time.Second), nil
}

func (m *MTNMoMo) headers(ctx context.Context) (map[string]string, error) {
	token, err := m.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Authorization":             "Bearer " + token,
		"X-Target-Environment":      m.cfg.Environment,
		"Ocp-Apim-Subscription-Key": m.cfg.SubscriptionKey,
	}, nil
}

type mtnParty struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type mtnTransferRequest struct {
	Amount       string   `json:"amount"`
	Currency     string   `json:"currency"`
	ExternalID   string   `json:"externalId"`
	Payee        mtnParty `json:"payee"`
	PayerMessage string   `json:"payerMessage"`
	PayeeNote    string   `json:"payeeNote"`
}

type mtnTransferStatus struct {
	Amount                 string `json:"amount"`
	Status                 string `json:"status"`
	FinancialTransactionID string `json:"financialTransactionId"`
	Reason                 any    `json:"reason"`
	CreatedAt              string `json:"createdAt,omitempty"`
	FinishedAt             string `json:"finishedAt,omitempty"`
}

func (m *MTNMoMo) InitiatePayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	headers, err := m.headers(ctx)
	if err != nil {
		return PaymentResult{}, err
	}
	referenceID := ReferenceID(req.InternalReference)
	headers["X-Reference-Id"] = referenceID

	payload := mtnTransferRequest{
		Amount:       req.Amount.Round(0).String(),
		Currency:     Currency,
		ExternalID:   req.InternalReference,
		Payee:        mtnParty{PartyIDType: "MSISDN", PartyID: NormalizePhoneNumber(req.PhoneNumber)},
		PayerMessage: "Salaire - " + req.Reason,
		PayeeNote:    "Paiement salaire pour " + req.BeneficiaryName,
	}

	resp, err := m.api.call(ctx, "initiate_payment", http.MethodPost, mtnTransferPath, headers, payload)
	if err != nil {
		return PaymentResult{}, err
	}
	switch {
	case resp.StatusCode == http.StatusAccepted || resp.OK():
		return PaymentResult{
			Success:              true,
			TransactionReference: referenceID,
			Status:               StatusPending,
			Message:              "transfer accepted",
			RawResponse:          resp.Body,
		}, nil
	case resp.StatusCode == http.StatusConflict:
		// Same X-Reference-Id already submitted: the original transfer stands.
		return PaymentResult{
			Success:              true,
			TransactionReference: referenceID,
			Status:               StatusPending,
			Message:              "transfer already submitted",
			RawResponse:          resp.Body,
		}, nil
	case resp.StatusCode == http.StatusUnauthorized:
		m.tokens.Invalidate()
	}
	return PaymentResult{Success: false, Status: StatusFailed, ErrorMessage: errorMessage(resp), RawResponse: resp.Body}, nil
}

func (m *MTNMoMo) CheckTransactionStatus(ctx context.Context, reference string) (TransactionStatus, error) {
	headers, err := m.headers(ctx)
	if err != nil {
		return TransactionStatus{}, err
	}

	resp, err := m.api.call(ctx, "check_status", http.MethodGet, mtnTransferPath+"/"+url.PathEscape(reference), headers, nil)
	if err != nil {
		return TransactionStatus{}, err
	}
	if !resp.OK() {
		return TransactionStatus{}, &TechnicalError{Operator: OperatorMTN, Operation: "check_status", Err: fmt.Errorf("%s", errorMessage(resp))}
	}

	var body mtnTransferStatus
	if err := m.api.decode("check_status", resp, &body); err != nil {
		return TransactionStatus{}, err
	}
	status := TransactionStatus{
		TransactionReference: reference,
		Status:               mapMTNStatus(body.Status),
	}
	if body.Reason != nil {
		raw, _ := json.Marshal(body.Reason)
		status.Message = strings.Trim(string(raw), `"`)
	}
	if body.Amount != "" {
		status.Amount, _ = decimal.NewFromString(body.Amount)
	}
	// The transfer API does not report fees, Fee stays zero.
	status.setTimes(body.CreatedAt, body.FinishedAt)
	return status, nil
}

func (m *MTNMoMo) GetBalance(ctx context.Context) (Balance, error) {
	headers, err := m.headers(ctx)
	if err != nil {
		return Balance{}, err
	}

	resp, err := m.api.call(ctx, "balance", http.MethodGet, mtnBalancePath, headers, nil)
	if err != nil {
		return Balance{}, err
	}
	if !resp.OK() {
		return Balance{}, &TechnicalError{Operator: OperatorMTN, Operation: "balance", Err: fmt.Errorf("%s", errorMessage(resp))}
	}

	var body struct {
		AvailableBalance string `json:"availableBalance"`
		Currency         string `json:"currency"`
	}
	if err := m.api.decode("balance", resp, &body); err != nil {
		return Balance{}, err
	}
	available, err := decimal.NewFromString(body.AvailableBalance)
	if err != nil {
		return Balance{}, &TechnicalError{Operator: OperatorMTN, Operation: "balance", Err: err}
	}
	return Balance{Operator: OperatorMTN, Available: available, Currency: currencyOr(body.Currency)}, nil
}

func mapMTNStatus(s string) Status {
	switch strings.ToUpper(s) {
	case "SUCCESSFUL":
		return StatusSuccess
	case "FAILED", "REJECTED":
		return StatusFailed
	case "CANCELLED", "TIMEOUT":
		return StatusCancelled
	default:
		return StatusPending
	}
}
