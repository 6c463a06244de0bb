package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"portfolio-trader-go/internal/auth"
	"portfolio-trader-go/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a Client configured to use it.
func setupTestServer(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)

	client := resty.New().SetBaseURL(server.URL)
	logger := zap.NewNop() // Use a no-op logger for tests

	c := &Client{
		client:  client,
		tokens:  auth.NewStaticTokenSource("test_token"),
		logger:  logger,
		limiter: rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
	}

	return c, server
}

func TestGetAssetGraph(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		// Arrange
		mockResponse := `{
			"status": "ok",
			"data": {
				"symbol": "AAPL",
				"is_crypto": false,
				"points": [
					{"timestamp": "2025-01-03T16:00:00Z", "price": 243.4, "high": 244.1, "low": 241.8, "open": 242.0, "previous_close": 240.3},
					{"timestamp": "2025-01-02T16:00:00Z", "price": 240.3, "high": 241.0, "low": 239.2, "open": 239.5, "previous_close": 238.9}
				]
			}
		}`

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/asset/AAPL/graph", r.URL.Path)
			assert.Equal(t, "false", r.URL.Query().Get("is_crypto"))
			assert.Equal(t, "Bearer test_token", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(mockResponse))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		// Act
		points, err := c.GetAssetGraph(context.Background(), "AAPL", models.ClassStock)

		// Assert
		assert.NoError(t, err)
		require.Len(t, points, 2)
		// Server order is preserved: newest first.
		assert.Equal(t, 243.4, points[0].Price)
		assert.Equal(t, 240.3, points[1].Price)
	})

	t.Run("CryptoFlag", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/asset/BTC/graph", r.URL.Path)
			assert.Equal(t, "true", r.URL.Query().Get("is_crypto"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok","data":{"symbol":"BTC","is_crypto":true,"points":[]}}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		points, err := c.GetAssetGraph(context.Background(), "BTC", models.ClassCrypto)
		assert.NoError(t, err)
		assert.Empty(t, points)
	})

	t.Run("APIError", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": "unknown symbol"}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		points, err := c.GetAssetGraph(context.Background(), "NOPE", models.ClassStock)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get graph")
		assert.Nil(t, points)
	})

	t.Run("NotAuthenticatedFailsFast", func(t *testing.T) {
		called := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		})

		c, server := setupTestServer(handler)
		defer server.Close()
		c.tokens = auth.NewStaticTokenSource("")

		_, err := c.GetAssetGraph(context.Background(), "AAPL", models.ClassStock)
		assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
		assert.False(t, called, "no request should reach the server without a credential")
	})
}

func TestPurchaseAsset(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockResponse := `{
			"message": "Purchase successful",
			"transaction": {"symbol": "BTC", "quantity": 2, "price": 40.0, "type": "purchase", "total_cost": 80.0, "new_balance": 20.0}
		}`

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/wallet/purchase-asset", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(mockResponse))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		resp, err := c.PurchaseAsset(context.Background(), &PurchaseRequest{
			Symbol:       "BTC",
			IsCrypto:     true,
			Quantity:     decimal.NewFromInt(2),
			PricePerUnit: decimal.RequireFromString("40.0"),
			TotalCost:    decimal.RequireFromString("80.0"),
		})

		assert.NoError(t, err)
		assert.Equal(t, "Purchase successful", resp.Message)
		assert.True(t, resp.Transaction.NewBalance.Equal(decimal.RequireFromString("20.0")))
	})

	t.Run("RejectedPrecondition", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": "Insufficient funds."}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		_, err := c.PurchaseAsset(context.Background(), &PurchaseRequest{Symbol: "BTC"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "Insufficient funds")
	})
}

func TestSellAsset(t *testing.T) {
	mockResponse := `{
		"message": "Sale successful",
		"transaction": {"symbol": "AAPL", "quantity": 1, "price": 50.0, "type": "sale", "total_value": 50.0, "new_balance": 150.0}
	}`

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wallet/sell-asset", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(mockResponse))
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	resp, err := c.SellAsset(context.Background(), &SellRequest{
		Symbol:       "AAPL",
		Quantity:     decimal.NewFromInt(1),
		PricePerUnit: decimal.RequireFromString("50.0"),
		TotalValue:   decimal.RequireFromString("50.0"),
	})

	assert.NoError(t, err)
	assert.True(t, resp.Transaction.NewBalance.Equal(decimal.RequireFromString("150.0")))
}

func TestWalletEndpoints(t *testing.T) {
	t.Run("GetBalance", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/wallet/get-balance", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"wallet_balance": 1234.56}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		balance, err := c.GetBalance(context.Background())
		assert.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("1234.56")))
	})

	t.Run("TopUpFlow", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Path {
			case "/wallet/create-payment-intent":
				_, _ = w.Write([]byte(`{"clientSecret": "pi_secret_123"}`))
			case "/wallet/confirm-payment":
				_, _ = w.Write([]byte(`{"new_balance": 300.00}`))
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		secret, err := c.CreatePaymentIntent(context.Background(), decimal.RequireFromString("200.00"))
		require.NoError(t, err)
		assert.Equal(t, "pi_secret_123", secret)

		balance, err := c.ConfirmPayment(context.Background(), secret, decimal.RequireFromString("200.00"))
		assert.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("300.00")))
	})

	t.Run("Withdraw", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/wallet/withdraw", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"new_balance": 50.00}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		balance, err := c.Withdraw(context.Background(), decimal.RequireFromString("25.00"))
		assert.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("50.00")))
	})
}
