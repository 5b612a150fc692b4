package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	StatusCompleted = "COMPLETED"

	tokenPath  = "/v1/oauth2/token"
	ordersPath = "/v2/checkout/orders"

	// refresh the cached token this long before the gateway expires it
	tokenLeeway = time.Minute
)

var (
	ErrNotConfigured = errors.New("paypal credentials are not configured")
	ErrNoAccessToken = errors.New("paypal returned no access token")
	ErrUnavailable   = errors.New("paypal is unreachable")
)

// GatewayError carries the gateway's HTTP status and raw body
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("paypal: %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("paypal: status %d", e.StatusCode)
}

// Message extracts the human readable message from the gateway body
func (e *GatewayError) Message() string {
	var body struct {
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal([]byte(e.Body), &body) != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	return body.ErrorDescription
}

type Config struct {
	ClientID string
	Secret   string
	BaseURL  string
	Currency string
	Timeout  time.Duration
}

// Capture is the result of capturing an approved order
type Capture struct {
	ID       string
	Status   string
	Amount   decimal.Decimal
	Currency string
	Raw      json.RawMessage
}

type apiResponse struct {
	status int
	body   []byte
}

type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*apiResponse]

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	breaker := gobreaker.NewCircuitBreaker[*apiResponse](gobreaker.Settings{
		Name:        "paypal",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[PayPal] Circuit breaker %s: %s -> %s", name, from, to)
		},
		// 4xx answers mean the gateway is healthy and rejected the request
		IsSuccessful: func(err error) bool {
			var gwErr *GatewayError
			if errors.As(err, &gwErr) {
				return gwErr.StatusCode < 500
			}
			return err == nil
		},
	})

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
	}
}

func (c *Client) Currency() string {
	return c.cfg.Currency
}

// CreateOrder registers a CAPTURE-intent order and returns the gateway's order id
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description string) (string, error) {
	if currency == "" {
		currency = c.cfg.Currency
	}
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": map[string]string{
				"currency_code": currency,
				"value":         amount.StringFixed(2),
			},
			"description": description,
		}},
	}

	resp, err := c.authorized(ctx, http.MethodPost, ordersPath, payload)
	if err != nil {
		return "", fmt.Errorf("failed to create order: %w", err)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.body, &created); err != nil || created.ID == "" {
		return "", fmt.Errorf("failed to create order: %w", &GatewayError{StatusCode: resp.status, Body: string(resp.body)})
	}
	return created.ID, nil
}

// CaptureOrder captures a buyer-approved order. A non-COMPLETED status is
// returned as-is; callers decide what it means.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	path := ordersPath + "/" + url.PathEscape(orderID) + "/capture"
	resp, err := c.authorized(ctx, http.MethodPost, path, struct{}{})
	if err != nil {
		return nil, fmt.Errorf("failed to capture order %s: %w", orderID, err)
	}

	var body struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					Amount struct {
						CurrencyCode string `json:"currency_code"`
						Value        string `json:"value"`
					} `json:"amount"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return nil, fmt.Errorf("failed to decode capture: %w", err)
	}

	capture := &Capture{ID: body.ID, Status: body.Status, Raw: resp.body}
	if len(body.PurchaseUnits) > 0 && len(body.PurchaseUnits[0].Payments.Captures) > 0 {
		amt := body.PurchaseUnits[0].Payments.Captures[0].Amount
		capture.Currency = amt.CurrencyCode
		if amt.Value != "" {
			value, err := decimal.NewFromString(amt.Value)
			if err != nil {
				return nil, fmt.Errorf("failed to parse capture amount %q: %w", amt.Value, err)
			}
			capture.Amount = value
		}
	}
	return capture, nil
}

func (c *Client) authorized(ctx context.Context, method, path string, payload any) (*apiResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.do(func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	})
	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusUnauthorized {
		c.dropToken(token)
	}
	return resp, err
}

// dropToken forgets a token the gateway refused so the next call fetches a new one
func (c *Client) dropToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
		c.tokenExpiry = time.Time{}
	}
}

// accessToken runs the client-credentials grant, reusing a live token
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.cfg.ClientID == "" || c.cfg.Secret == "" {
		return "", ErrNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}.Encode()
	resp, err := c.do(func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+tokenPath, strings.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.cfg.ClientID, c.cfg.Secret)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(resp.body, &body); err != nil || body.AccessToken == "" {
		return "", ErrNoAccessToken
	}

	c.token = body.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - tokenLeeway)
	return c.token, nil
}

// do sends one request through the breaker. Non-2xx answers become *GatewayError.
func (c *Client) do(build func() (*http.Request, error)) (*apiResponse, error) {
	return c.breaker.Execute(func() (*apiResponse, error) {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}

		res, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: request failed: %w", ErrUnavailable, err)
		}
		defer res.Body.Close()

		body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if res.StatusCode < 200 || res.StatusCode > 299 {
			return nil, &GatewayError{StatusCode: res.StatusCode, Body: string(body)}
		}
		return &apiResponse{status: res.StatusCode, body: body}, nil
	})
}
