// Package mt5 implements broker.Gateway against the terminal bridge agent,
// a small HTTP sidecar running next to the MT5 terminal on the same host.
package mt5

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"scalping-core/pkg/broker"
)

// Client talks JSON over HTTP to the terminal bridge. Any network or decode
// failure is returned as a plain error with no OrderResult, which executors
// classify as a transport failure.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New builds a bridge client. The bridge normally listens on localhost.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("bridge %s: %w", req.URL.Path, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("bridge %s: status %d: %s", req.URL.Path, res.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("bridge %s: decode: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) Tick(ctx context.Context, symbol string) (*broker.Tick, error) {
	params := url.Values{"symbol": {symbol}}
	var t broker.Tick
	if err := c.get(ctx, "/tick", params, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) SymbolInfo(ctx context.Context, symbol string) (*broker.SymbolInfo, error) {
	params := url.Values{"symbol": {symbol}}
	var si broker.SymbolInfo
	if err := c.get(ctx, "/symbol_info", params, &si); err != nil {
		return nil, err
	}
	return &si, nil
}

func (c *Client) Rates(ctx context.Context, symbol string, count int) ([]broker.Bar, error) {
	params := url.Values{
		"symbol": {symbol},
		"count":  {strconv.Itoa(count)},
	}
	var bars []broker.Bar
	if err := c.get(ctx, "/rates", params, &bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func (c *Client) Positions(ctx context.Context, symbol string) ([]broker.Position, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	var positions []broker.Position
	if err := c.get(ctx, "/positions", params, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func (c *Client) OrderSend(ctx context.Context, req broker.OrderRequest) (*broker.OrderResult, error) {
	var res broker.OrderResult
	if err := c.post(ctx, "/order_send", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) HistoryDeals(ctx context.Context, from, to time.Time) ([]broker.Deal, error) {
	params := url.Values{
		"from": {strconv.FormatInt(from.Unix(), 10)},
		"to":   {strconv.FormatInt(to.Unix(), 10)},
	}
	var deals []broker.Deal
	if err := c.get(ctx, "/history_deals", params, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

func (c *Client) AccountInfo(ctx context.Context) (*broker.AccountInfo, error) {
	var acct broker.AccountInfo
	if err := c.get(ctx, "/account_info", nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}
