package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// envelope is the API's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type asset struct {
	AssetID  string          `json:"asset_id"`
	Symbol   string          `json:"symbol"`
	Kind     string          `json:"kind"`
	TickSize decimal.Decimal `json:"tick_size"`
	Active   bool            `json:"active"`
}

type orderResult struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Error   string `json:"error"`
}

type orderView struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type reconcileReport struct {
	Consistent bool            `json:"consistent"`
	Entries    int             `json:"entries"`
	Balance    decimal.Decimal `json:"balance"`
	Issues     []string        `json:"issues"`
}

// apiClient is a thin typed wrapper over the HTTP API.
type apiClient struct {
	http  *resty.Client
	stats *latencyRecorder
}

func newAPIClient(baseURL string, stats *latencyRecorder) *apiClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(6).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(8 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() == http.StatusTooManyRequests
		})
	return &apiClient{http: client, stats: stats}
}

// do sends req and decodes the envelope; out receives Data when non-nil.
// Non-2xx responses still decode so callers can inspect the error code.
func (c *apiClient) do(route string, req *resty.Request, method, path string, out interface{}) (*envelope, error) {
	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		c.stats.record(route, time.Since(start), true)
		return nil, err
	}
	c.stats.record(route, time.Since(start), resp.StatusCode() >= http.StatusInternalServerError)

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode(), err)
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return &env, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode())
	}
	return &env, nil
}

func (c *apiClient) authed(token string) *resty.Request {
	return c.http.R().SetAuthToken(token)
}

func (c *apiClient) listAssets() ([]asset, error) {
	var assets []asset
	if _, err := c.do("list assets", c.http.R(), http.MethodGet, "/api/v1/assets", &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

func (c *apiClient) register(username, password string) (userID, token string, err error) {
	var out struct {
		UserID string `json:"user_id"`
		Token  string `json:"jwt_token"`
	}
	env, err := c.do("register", c.http.R().SetBody(map[string]string{
		"username": username,
		"password": password,
	}), http.MethodPost, "/api/v1/auth/register", &out)
	if err != nil {
		return "", "", err
	}
	if !env.Success {
		return "", "", fmt.Errorf("register %s: %s", username, env.Error.Message)
	}
	return out.UserID, out.Token, nil
}

func (c *apiClient) placeOrder(token string, body map[string]string) (*orderResult, error) {
	var out orderResult
	env, err := c.do("create order", c.authed(token).SetBody(body), http.MethodPost, "/api/v1/orders", &out)
	if err != nil {
		return nil, err
	}
	if !env.Success && out.Error == "" && env.Error != nil {
		out.Error = env.Error.Code
	}
	return &out, nil
}

func (c *apiClient) openOrders(token string) ([]orderView, error) {
	var orders []orderView
	_, err := c.do("list orders", c.authed(token).SetQueryParam("status", "open"), http.MethodGet, "/api/v1/orders", &orders)
	return orders, err
}

func (c *apiClient) cancel(token, orderID string) error {
	env, err := c.do("cancel order", c.authed(token), http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", nil)
	if err != nil {
		return err
	}
	if !env.Success {
		return fmt.Errorf("cancel %s: %s", orderID, env.Error.Code)
	}
	return nil
}

func (c *apiClient) reconcile(token string) (*reconcileReport, error) {
	var report reconcileReport
	if _, err := c.do("reconcile", c.authed(token), http.MethodGet, "/api/v1/ledger/reconcile", &report); err != nil {
		return nil, err
	}
	return &report, nil
}
