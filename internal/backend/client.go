package backend

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"portfolio-trader-go/internal/auth"
	"portfolio-trader-go/internal/config"
	"portfolio-trader-go/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Interface defines the operations exposed by the remote backend: the
// price-history endpoint, the remote trading ledger and the wallet flow.
type Interface interface {
	GetAssetGraph(ctx context.Context, symbol string, class models.AssetClass) ([]models.PricePoint, error)
	PurchaseAsset(ctx context.Context, req *PurchaseRequest) (*TradingResponse, error)
	SellAsset(ctx context.Context, req *SellRequest) (*TradingResponse, error)
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	CreatePaymentIntent(ctx context.Context, amount decimal.Decimal) (string, error)
	ConfirmPayment(ctx context.Context, clientSecret string, amount decimal.Decimal) (decimal.Decimal, error)
	Withdraw(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)
}

// Client is a REST client for the backend API.
// It implements the Interface.
type Client struct {
	client  *resty.Client
	tokens  auth.TokenSource
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure Client implements the interface
var _ Interface = (*Client)(nil)

// NewClient creates a new backend REST client.
func NewClient(cfg *config.Backend, tokens auth.TokenSource, logger *zap.Logger) *Client {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		client:  client,
		tokens:  tokens,
		logger:  logger,
		limiter: limiter,
	}
}

// newRequest builds a request carrying the bearer credential. Fails fast
// when no credential is available so callers can trigger re-authentication.
func (c *Client) newRequest(ctx context.Context) (*resty.Request, error) {
	token, err := c.tokens.Token(ctx, false)
	if err != nil {
		return nil, err
	}
	return c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("Content-Type", "application/json"), nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && resp.RawResponse != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// GraphData is the payload of the price-history endpoint.
type GraphData struct {
	Symbol   string              `json:"symbol"`
	IsCrypto bool                `json:"is_crypto"`
	Points   []models.PricePoint `json:"points"`
}

// GraphResponse is the full response of the price-history endpoint.
// Points arrive most-recent-first.
type GraphResponse struct {
	Status string    `json:"status"`
	Data   GraphData `json:"data"`
}

// GetAssetGraph fetches the candle history for one asset. The returned
// points are in server order (newest first); bounding and chronological
// reordering is the consumer's concern.
func (c *Client) GetAssetGraph(ctx context.Context, symbol string, class models.AssetClass) ([]models.PricePoint, error) {
	req, err := c.newRequest(ctx)
	if err != nil {
		return nil, err
	}
	var graph GraphResponse
	req.SetResult(&graph).
		SetPathParam("symbol", symbol).
		SetQueryParam("is_crypto", strconv.FormatBool(class.IsCrypto()))

	if _, err := c.doRequest(ctx, "GET", "/asset/{symbol}/graph", req); err != nil {
		return nil, fmt.Errorf("failed to get graph for '%s': %w", symbol, err)
	}
	return graph.Data.Points, nil
}

// PurchaseRequest is the remote-ledger buy payload.
type PurchaseRequest struct {
	Symbol       string          `json:"symbol"`
	IsCrypto     bool            `json:"is_crypto"`
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	TotalCost    decimal.Decimal `json:"total_cost"`
}

// SellRequest is the remote-ledger sell payload.
type SellRequest struct {
	Symbol       string          `json:"symbol"`
	IsCrypto     bool            `json:"is_crypto"`
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	TotalValue   decimal.Decimal `json:"total_value"`
}

// Transaction describes a committed remote trade.
type Transaction struct {
	Symbol     string          `json:"symbol"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Type       string          `json:"type"`
	TotalCost  decimal.Decimal `json:"total_cost,omitempty"`
	TotalValue decimal.Decimal `json:"total_value,omitempty"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// TradingResponse is the remote-ledger trade result.
type TradingResponse struct {
	Message     string      `json:"message"`
	Transaction Transaction `json:"transaction"`
}

// PurchaseAsset commits a buy on the remote ledger.
func (c *Client) PurchaseAsset(ctx context.Context, purchase *PurchaseRequest) (*TradingResponse, error) {
	req, err := c.newRequest(ctx)
	if err != nil {
		return nil, err
	}
	var result TradingResponse
	req.SetBody(purchase).SetResult(&result)

	if _, err := c.doRequest(ctx, "POST", "/wallet/purchase-asset", req); err != nil {
		c.logger.Error("Failed to purchase asset",
			zap.Error(err),
			zap.String("symbol", purchase.Symbol),
		)
		return nil, fmt.Errorf("failed to purchase asset: %w", err)
	}
	return &result, nil
}

// SellAsset commits a sell on the remote ledger.
func (c *Client) SellAsset(ctx context.Context, sell *SellRequest) (*TradingResponse, error) {
	req, err := c.newRequest(ctx)
	if err != nil {
		return nil, err
	}
	var result TradingResponse
	req.SetBody(sell).SetResult(&result)

	if _, err := c.doRequest(ctx, "POST", "/wallet/sell-asset", req); err != nil {
		c.logger.Error("Failed to sell asset",
			zap.Error(err),
			zap.String("symbol", sell.Symbol),
		)
		return nil, fmt.Errorf("failed to sell asset: %w", err)
	}
	return &result, nil
}

// GetBalance fetches the wallet cash balance.
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	type balanceResponse struct {
		WalletBalance decimal.Decimal `json:"wallet_balance"`
	}

	req, err := c.newRequest(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	var result balanceResponse
	req.SetResult(&result)

	if _, err := c.doRequest(ctx, "GET", "/wallet/get-balance", req); err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return result.WalletBalance, nil
}

// CreatePaymentIntent starts a wallet top-up and returns the payment
// client secret.
func (c *Client) CreatePaymentIntent(ctx context.Context, amount decimal.Decimal) (string, error) {
	type intentResponse struct {
		ClientSecret string `json:"clientSecret"`
	}

	req, err := c.newRequest(ctx)
	if err != nil {
		return "", err
	}
	var result intentResponse
	req.SetBody(map[string]interface{}{"amount": amount}).SetResult(&result)

	if _, err := c.doRequest(ctx, "POST", "/wallet/create-payment-intent", req); err != nil {
		return "", fmt.Errorf("failed to create payment intent: %w", err)
	}
	return result.ClientSecret, nil
}

type newBalanceResponse struct {
	NewBalance decimal.Decimal `json:"new_balance"`
}

// ConfirmPayment completes a top-up after the payment processor reports
// success and returns the credited balance.
func (c *Client) ConfirmPayment(ctx context.Context, clientSecret string, amount decimal.Decimal) (decimal.Decimal, error) {
	req, err := c.newRequest(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	var result newBalanceResponse
	req.SetBody(map[string]interface{}{
		"client_secret": clientSecret,
		"amount":        amount,
	}).SetResult(&result)

	if _, err := c.doRequest(ctx, "POST", "/wallet/confirm-payment", req); err != nil {
		return decimal.Zero, fmt.Errorf("failed to confirm payment: %w", err)
	}
	return result.NewBalance, nil
}

// Withdraw debits the wallet and returns the remaining balance.
func (c *Client) Withdraw(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	req, err := c.newRequest(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	var result newBalanceResponse
	req.SetBody(map[string]interface{}{"amount": amount}).SetResult(&result)

	if _, err := c.doRequest(ctx, "POST", "/wallet/withdraw", req); err != nil {
		return decimal.Zero, fmt.Errorf("failed to withdraw funds: %w", err)
	}
	return result.NewBalance, nil
}
