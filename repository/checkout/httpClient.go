package checkoutrepo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/Viktor-Beniukh/library-service-api/util/httpx"
)

const defaultBaseURL = "https://api.stripe.com"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type httpRepo struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewHTTP talks to the Stripe Checkout API. An empty baseURL means the
// public endpoint.
func NewHTTP(apiKey, baseURL string) Provider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &httpRepo{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/"), client: httpx.Client()}
}

type sessionBody struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Status    string `json:"status"`
	ExpiresAt int64  `json:"expires_at"`
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (r *httpRepo) OpenSession(ctx context.Context, req OpenSessionReq) (*Session, error) {
	const op = "open session"
	if !req.Amount.IsPositive() {
		return nil, &ProviderError{Op: op, Err: fmt.Errorf("amount must be positive, got %s", req.Amount)}
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "card")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", req.Currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount.Shift(2).Round(0).IntPart(), 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Name)
	if req.Description != "" {
		form.Set("line_items[0][price_data][product_data][description]", req.Description)
	}
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &ProviderError{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	out, err := r.do(httpReq, op)
	if err != nil {
		return nil, err
	}
	if out.ID == "" || out.URL == "" {
		return nil, &ProviderError{Op: op, Err: errors.New("empty session id or url")}
	}
	return &Session{ID: out.ID, URL: out.URL, ExpiresAt: unixOrZero(out.ExpiresAt)}, nil
}

func (r *httpRepo) GetSession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	const op = "get session"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, &ProviderError{Op: op, Err: err}
	}
	out, err := r.do(httpReq, op)
	if err != nil {
		return nil, err
	}
	return &SessionStatus{ID: out.ID, Status: out.Status, ExpiresAt: unixOrZero(out.ExpiresAt)}, nil
}

func (r *httpRepo) do(httpReq *http.Request, op string) (*sessionBody, error) {
	httpReq.SetBasicAuth(r.apiKey, "")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, ok, err := httpx.ReadBody(resp)
	if err != nil {
		return nil, &ProviderError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if !ok {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		msg := eb.Error.Message
		if msg == "" {
			msg = resp.Status
		}
		return nil, &ProviderError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	var out sessionBody
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &ProviderError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return &out, nil
}

// unixOrZero leaves a missing expires_at as the zero time.
func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
