package mobilemoney

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Observer receives per-call latency. *metrics.Metrics implements it.
type Observer interface {
	ObserveProviderCall(operator, operation, outcome string, elapsed time.Duration)
}

// apiClient holds what every operator variant shares: base URL, HTTP client,
// a limiter spacing consecutive calls and an optional observer.
type apiClient struct {
	operator Operator
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	observer Observer
}

func newAPIClient(op Operator, baseURL string, httpClient *http.Client, minInterval time.Duration, observer Observer) apiClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return apiClient{
		operator: op,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, 1),
		observer: observer,
	}
}

type apiResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r apiResponse) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// call waits for the limiter, sends a JSON request and reads the whole body.
// Only transport failures are returned as errors; HTTP error statuses are
// left for the caller to interpret.
func (c *apiClient) call(ctx context.Context, operation, method, path string, headers map[string]string, payload any) (apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return apiResponse{}, &TechnicalError{Operator: c.operator, Operation: operation, Err: err}
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return apiResponse{}, &TechnicalError{Operator: c.operator, Operation: operation, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apiResponse{}, &TechnicalError{Operator: c.operator, Operation: operation, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.send(req, operation)
}

func (c *apiClient) send(req *http.Request, operation string) (apiResponse, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(operation, "error", start)
		return apiResponse{}, &TechnicalError{Operator: c.operator, Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(operation, "error", start)
		return apiResponse{}, &TechnicalError{Operator: c.operator, Operation: operation, Err: fmt.Errorf("read response: %w", err)}
	}

	outcome := "ok"
	if resp.StatusCode >= 300 {
		outcome = "rejected"
	}
	c.observe(operation, outcome, start)

	return apiResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

func (c *apiClient) observe(operation, outcome string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveProviderCall(string(c.operator), operation, outcome, time.Since(start))
	}
}

func (c *apiClient) decode(operation string, resp apiResponse, dst any) error {
	if len(resp.Body) == 0 {
		return &TechnicalError{Operator: c.operator, Operation: operation, Err: fmt.Errorf("empty response body")}
	}
	if err := json.Unmarshal(resp.Body, dst); err != nil {
		return &TechnicalError{Operator: c.operator, Operation: operation, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// errorMessage pulls a human-readable message out of an error body, falling
// back to the HTTP status text.
func errorMessage(resp apiResponse) string {
	var body struct {
		Message     string `json:"message"`
		Description string `json:"description"`
		Detail      string `json:"detail"`
		Error       string `json:"error"`
		Reason      string `json:"reason"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		for _, msg := range []string{body.Message, body.Description, body.Detail, body.Reason, body.Error} {
			if msg != "" {
				return msg
			}
		}
	}
	return fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
