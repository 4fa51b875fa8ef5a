package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Client talks to the execution collaborator over HTTP. It covers the
// two read paths the replication engine needs: spot prices and account
// equity.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client from EXECUTION_API_URL. The default points
// at the local docker-compose stub.
func NewClient() *Client {
	baseURL := os.Getenv("EXECUTION_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:9100"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type priceResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

type equityResponse struct {
	AccountID uint    `json:"account_id"`
	Equity    float64 `json:"equity"`
}

// Price returns the current market price for a symbol.
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/price?symbol=%s", c.baseURL, url.QueryEscape(strings.ToUpper(symbol)))

	var resp priceResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return 0, fmt.Errorf("fetch price for %s: %w", symbol, err)
	}
	if resp.Price <= 0 {
		return 0, fmt.Errorf("execution api returned non-positive price %f for %s", resp.Price, symbol)
	}
	return resp.Price, nil
}

// Equity returns the current equity of a trading account.
func (c *Client) Equity(ctx context.Context, tradingAccountID uint) (float64, error) {
	endpoint := fmt.Sprintf("%s/accounts/%d/equity", c.baseURL, tradingAccountID)

	var resp equityResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return 0, fmt.Errorf("fetch equity for account %d: %w", tradingAccountID, err)
	}
	return resp.Equity, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
