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
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	orangePayPath     = "/omcoreapis/1.0.2/mp/pay"
	orangeBalancePath = "/omcoreapis/1.0.2/account/balance"
)

// OrangeMoney pays salaries through the Orange Money merchant API. Access
// tokens come from the OAuth2 client-credentials grant.
type OrangeMoney struct {
	api         apiClient
	cfg         config.OrangeMoneyConfig
	credentials clientcredentials.Config
	tokens      *tokenCache
}

func NewOrangeMoney(cfg config.OrangeMoneyConfig, opts Options) *OrangeMoney {
	o := &OrangeMoney{
		api: newAPIClient(OperatorOrange, cfg.BaseURL, opts.HTTPClient, opts.MinInterval, opts.Observer),
		cfg: cfg,
	}
	o.credentials = clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     o.api.baseURL + "/oauth/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	o.tokens = newTokenCache(o.fetchToken)
	return o
}

func (o *OrangeMoney) Operator() Operator { return OperatorOrange }

func (o *OrangeMoney) Fees() FeeSchedule { return OrangeFees() }

func (o *OrangeMoney) ValidatePhoneNumber(phone string) bool {
	return validateWith(orangeNumberRegex, phone)
}

func (o *OrangeMoney) fetchToken(ctx context.Context) (string, time.Time, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.api.http)
	tok, err := o.credentials.Token(ctx)
	if err != nil {
		return "", time.Time{}, &TechnicalError{Operator: OperatorOrange, Operation: "token", Err: err}
	}
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = o.tokens.now().Add(time.Hour)
	}
	return tok.AccessToken, expiry, nil
}

func (o *OrangeMoney) headers(ctx context.Context) (map[string]string, error) {
	token, err := o.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Authorization":        "Bearer " + token,
		"X-Target-Environment": o.cfg.Environment,
	}, nil
}

type orangeParty struct {
	IDType string `json:"idType"`
	ID     string `json:"id"`
}

type orangeAmount struct {
	Value    int64  `json:"value"`
	Currency string `json:"currency"`
}

type orangePayRequest struct {
	Customer    orangeParty  `json:"customer"`
	Partner     orangeParty  `json:"partner"`
	Amount      orangeAmount `json:"amount"`
	Reference   string       `json:"reference"`
	Description string       `json:"description"`
	ReceiverMsg string       `json:"receiverNotificationMessage,omitempty"`
}

type orangePayResponse struct {
	TransactionID string `json:"transactionId"`
	ExternalID    string `json:"externalId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	Amount        *struct {
		Value json.Number `json:"value"`
	} `json:"amount,omitempty"`
	Fee        json.Number `json:"fee,omitempty"`
	CreatedAt  string      `json:"createdAt,omitempty"`
	FinishedAt string      `json:"finishedAt,omitempty"`
}

func (o *OrangeMoney) InitiatePayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	headers, err := o.headers(ctx)
	if err != nil {
		return PaymentResult{}, err
	}

	payload := orangePayRequest{
		Customer:    orangeParty{IDType: "MSISDN", ID: NormalizePhoneNumber(req.PhoneNumber)},
		Partner:     orangeParty{IDType: "MSISDN", ID: o.cfg.MerchantMSISDN},
		Amount:      orangeAmount{Value: req.Amount.Round(0).IntPart(), Currency: Currency},
		Reference:   req.InternalReference,
		Description: req.Reason,
		ReceiverMsg: fmt.Sprintf("Paiement salaire pour %s", req.BeneficiaryName),
	}

	resp, err := o.api.call(ctx, "initiate_payment", http.MethodPost, orangePayPath, headers, payload)
	if err != nil {
		return PaymentResult{}, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		o.tokens.Invalidate()
	}
	if !resp.OK() {
		return PaymentResult{Success: false, Status: StatusFailed, ErrorMessage: errorMessage(resp), RawResponse: resp.Body}, nil
	}

	var body orangePayResponse
	if err := o.api.decode("initiate_payment", resp, &body); err != nil {
		return PaymentResult{}, err
	}
	reference := body.TransactionID
	if reference == "" {
		reference = body.ExternalID
	}
	status := mapOrangeStatus(body.Status)
	if status == StatusFailed || status == StatusCancelled {
		return PaymentResult{Success: false, TransactionReference: reference, Status: status, ErrorMessage: body.Message, RawResponse: resp.Body}, nil
	}
	return PaymentResult{
		Success:              true,
		TransactionReference: reference,
		Status:               status,
		Message:              body.Message,
		RawResponse:          resp.Body,
	}, nil
}

func (o *OrangeMoney) CheckTransactionStatus(ctx context.Context, reference string) (TransactionStatus, error) {
	headers, err := o.headers(ctx)
	if err != nil {
		return TransactionStatus{}, err
	}

	resp, err := o.api.call(ctx, "check_status", http.MethodGet, orangePayPath+"/"+url.PathEscape(reference), headers, nil)
	if err != nil {
		return TransactionStatus{}, err
	}
	if !resp.OK() {
		return TransactionStatus{}, &TechnicalError{Operator: OperatorOrange, Operation: "check_status", Err: fmt.Errorf("%s", errorMessage(resp))}
	}

	var body orangePayResponse
	if err := o.api.decode("check_status", resp, &body); err != nil {
		return TransactionStatus{}, err
	}
	status := TransactionStatus{
		TransactionReference: reference,
		Status:               mapOrangeStatus(body.Status),
		Message:              body.Message,
	}
	if body.Amount != nil {
		status.Amount, _ = decimal.NewFromString(body.Amount.Value.String())
	}
	if body.Fee != "" {
		status.Fee, _ = decimal.NewFromString(body.Fee.String())
	}
	status.setTimes(body.CreatedAt, body.FinishedAt)
	return status, nil
}

func (o *OrangeMoney) GetBalance(ctx context.Context) (Balance, error) {
	headers, err := o.headers(ctx)
	if err != nil {
		return Balance{}, err
	}

	resp, err := o.api.call(ctx, "balance", http.MethodGet, orangeBalancePath, headers, nil)
	if err != nil {
		return Balance{}, err
	}
	if !resp.OK() {
		return Balance{}, &TechnicalError{Operator: OperatorOrange, Operation: "balance", Err: fmt.Errorf("%s", errorMessage(resp))}
	}

	var body struct {
		AvailableBalance json.Number `json:"availableBalance"`
		Currency         string      `json:"currency"`
	}
	if err := o.api.decode("balance", resp, &body); err != nil {
		return Balance{}, err
	}
	available, err := decimal.NewFromString(body.AvailableBalance.String())
	if err != nil {
		return Balance{}, &TechnicalError{Operator: OperatorOrange, Operation: "balance", Err: err}
	}
	return Balance{Operator: OperatorOrange, Available: available, Currency: currencyOr(body.Currency)}, nil
}

func mapOrangeStatus(s string) Status {
	switch strings.ToLower(s) {
	case "successful", "success", "succeeded":
		return StatusSuccess
	case "failed", "rejected":
		return StatusFailed
	case "cancelled", "canceled", "expired":
		return StatusCancelled
	default:
		return StatusPending
	}
}

func currencyOr(c string) string {
	if c == "" {
		return Currency
	}
	return c
}
