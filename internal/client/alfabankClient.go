package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marathon-billing-engine/internal/config"
	"marathon-billing-engine/internal/model"
)

// AlfabankClient talks to the bank's REST gateway. All calls are single
// synchronous requests with a hard timeout; retries belong to the caller.
type AlfabankClient interface {
	RegisterOrder(ctx context.Context, params RegisterOrderParams) (*RegisterOrderResult, error)
	GetOrderStatus(ctx context.Context, gatewayOrderID string) (*OrderStatusResult, error)
	RefundOrder(ctx context.Context, gatewayOrderID string, amount int64) error
	ReverseOrder(ctx context.Context, gatewayOrderID string) error
}

// GatewayError is an explicit rejection reported by the bank (non-zero
// errorCode in the response body). Anything else the client returns is a
// transport-level failure and must be treated as transient.
type GatewayError struct {
	Code    string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

type RegisterOrderParams struct {
	OrderNumber string
	Amount      int64 // minor units
	Currency    string
	Description string
	ReturnURL   string
	FailURL     string
}

type RegisterOrderResult struct {
	GatewayOrderID string
	FormURL        string
}

type OrderStatusResult struct {
	StatusCode    int
	Status        model.OrderStatus
	PaymentMethod string
	Amount        int64
	Currency      string
	Raw           json.RawMessage
}

type alfabankClientImpl struct {
	httpClient *http.Client
	apiURL     string
	username   string
	password   string
}

func NewAlfabankClient(cfg *config.AlfaBank) AlfabankClient {
	return &alfabankClientImpl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		apiURL:   strings.TrimRight(cfg.APIURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
	}
}

// canonicalStatus maps the gateway's numeric orderStatus onto the ledger
// enum. Unknown codes map to pending: an unrecognized code must never
// silently succeed or fail an order.
func canonicalStatus(code int) model.OrderStatus {
	switch code {
	case 0:
		return model.StatusPending // registered, not paid
	case 1:
		return model.StatusProcessing // pre-auth hold placed
	case 2:
		return model.StatusSucceeded // full authorization
	case 3:
		return model.StatusCancelled // authorization cancelled
	case 4:
		return model.StatusRefunded // refund performed
	case 5:
		return model.StatusProcessing // ACS authorization initiated
	case 6:
		return model.StatusFailed // authorization declined
	default:
		return model.StatusPending
	}
}

type alfaResponse struct {
	OrderID      string          `json:"orderId"`
	FormURL      string          `json:"formUrl"`
	OrderStatus  int             `json:"orderStatus"`
	Amount       int64           `json:"amount"`
	Currency     string          `json:"currency"`
	ErrorCode    string          `json:"errorCode"`
	ErrorMessage string          `json:"errorMessage"`
	CardAuthInfo json.RawMessage `json:"cardAuthInfo"`
}

func (c *alfabankClientImpl) post(ctx context.Context, endpoint string, form url.Values) (*alfaResponse, json.RawMessage, error) {
	form.Set("userName", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("gateway http %d: %s", resp.StatusCode, string(body))
	}

	var parsed alfaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, nil, fmt.Errorf("decode gateway response: %w", err)
	}
	if parsed.ErrorCode != "" && parsed.ErrorCode != "0" {
		return nil, nil, &GatewayError{Code: parsed.ErrorCode, Message: parsed.ErrorMessage}
	}
	return &parsed, body, nil
}

func (c *alfabankClientImpl) RegisterOrder(ctx context.Context, params RegisterOrderParams) (*RegisterOrderResult, error) {
	currency := params.Currency
	if currency == "" {
		currency = "643" // RUB
	}
	form := url.Values{
		"orderNumber": {params.OrderNumber},
		"amount":      {strconv.FormatInt(params.Amount, 10)},
		"currency":    {currency},
		"description": {params.Description},
		"returnUrl":   {params.ReturnURL},
		"failUrl":     {params.FailURL},
	}

	parsed, _, err := c.post(ctx, "/register.do", form)
	if err != nil {
		return nil, err
	}
	if parsed.OrderID == "" || parsed.FormURL == "" {
		return nil, fmt.Errorf("gateway returned no order id or form url")
	}
	return &RegisterOrderResult{
		GatewayOrderID: parsed.OrderID,
		FormURL:        parsed.FormURL,
	}, nil
}

func (c *alfabankClientImpl) GetOrderStatus(ctx context.Context, gatewayOrderID string) (*OrderStatusResult, error) {
	form := url.Values{
		"orderId": {gatewayOrderID},
	}
	parsed, raw, err := c.post(ctx, "/getOrderStatusExtended.do", form)
	if err != nil {
		return nil, err
	}

	method := "unknown"
	if len(parsed.CardAuthInfo) > 0 && string(parsed.CardAuthInfo) != "null" {
		method = "card"
	}
	return &OrderStatusResult{
		StatusCode:    parsed.OrderStatus,
		Status:        canonicalStatus(parsed.OrderStatus),
		PaymentMethod: method,
		Amount:        parsed.Amount,
		Currency:      parsed.Currency,
		Raw:           raw,
	}, nil
}

func (c *alfabankClientImpl) RefundOrder(ctx context.Context, gatewayOrderID string, amount int64) error {
	form := url.Values{
		"orderId": {gatewayOrderID},
		"amount":  {strconv.FormatInt(amount, 10)},
	}
	_, _, err := c.post(ctx, "/refund.do", form)
	return err
}

func (c *alfabankClientImpl) ReverseOrder(ctx context.Context, gatewayOrderID string) error {
	form := url.Values{
		"orderId": {gatewayOrderID},
	}
	_, _, err := c.post(ctx, "/reverse.do", form)
	return err
}
