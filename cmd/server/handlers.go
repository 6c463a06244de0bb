package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"portfolio-trader-go/internal/auth"
	"portfolio-trader-go/internal/ledger"
	"portfolio-trader-go/internal/models"
	"portfolio-trader-go/internal/pricefeed"
	"portfolio-trader-go/internal/wallet"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log         *zap.Logger
	ledger      ledger.Ledger
	coordinator *pricefeed.Coordinator
	wallets     *wallet.Service

	mu   sync.Mutex
	subs map[string]*pricefeed.Subscription // active graph subscription per account
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, book ledger.Ledger, coordinator *pricefeed.Coordinator, wallets *wallet.Service) *APIHandler {
	return &APIHandler{
		log:         log,
		ledger:      book,
		coordinator: coordinator,
		wallets:     wallets,
		subs:        make(map[string]*pricefeed.Subscription),
	}
}

// StopSubscriptions stops every active graph subscription. Called on
// shutdown.
func (h *APIHandler) StopSubscriptions() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for account, sub := range h.subs {
		sub.Stop()
		delete(h.subs, account)
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}

// writeTradeError maps a ledger failure to the right status: precondition
// violations are the caller's problem, auth failures need re-login, and
// everything else is a retryable upstream failure.
func (h *APIHandler) writeTradeError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsTradeError(err):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, auth.ErrNotAuthenticated):
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
	default:
		h.log.Error("Trade failed", zap.Error(err))
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "transaction failed, please retry"})
	}
}

// PortfolioHandler returns a freshly valued account snapshot.
func (h *APIHandler) PortfolioHandler(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account")
	if accountID == "" {
		http.Error(w, "missing account", http.StatusBadRequest)
		return
	}

	snapshot, err := h.ledger.Refresh(r.Context(), accountID)
	if err != nil {
		h.log.Error("Failed to refresh portfolio", zap.String("account_id", accountID), zap.Error(err))
		http.Error(w, "failed to refresh portfolio", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

// PositionHandler reports the held quantity for one symbol.
func (h *APIHandler) PositionHandler(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account")
	symbol := r.URL.Query().Get("symbol")
	if accountID == "" || symbol == "" {
		http.Error(w, "missing account or symbol", http.StatusBadRequest)
		return
	}

	quantity := h.ledger.GetPosition(r.Context(), accountID, symbol)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":   symbol,
		"quantity": quantity,
		"held":     quantity.IsPositive(),
	})
}

// tradeRequest is the buy/sell request body.
type tradeRequest struct {
	AccountID    string          `json:"account_id"`
	Symbol       string          `json:"symbol"`
	IsCrypto     bool            `json:"is_crypto"`
	Quantity     decimal.Decimal `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
}

// tradeResponse reports a committed trade.
type tradeResponse struct {
	Message    string          `json:"message"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// BuyHandler executes a buy through the ledger.
func (h *APIHandler) BuyHandler(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	newBalance, err := h.ledger.Buy(r.Context(), req.AccountID, req.Symbol,
		models.ClassFromCrypto(req.IsCrypto), req.Quantity, req.PricePerUnit)
	if err != nil {
		h.writeTradeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tradeResponse{Message: "Purchase successful", NewBalance: newBalance})
}

// SellHandler executes a sell through the ledger.
func (h *APIHandler) SellHandler(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	newBalance, err := h.ledger.Sell(r.Context(), req.AccountID, req.Symbol,
		models.ClassFromCrypto(req.IsCrypto), req.Quantity, req.PricePerUnit)
	if err != nil {
		h.writeTradeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tradeResponse{Message: "Sale successful", NewBalance: newBalance})
}

// graphResponse is the published chart state for an account's current
// subscription.
type graphResponse struct {
	Symbol   string                `json:"symbol"`
	State    string                `json:"state"`
	Snapshot *models.PriceSnapshot `json:"snapshot,omitempty"`
}

// GraphHandler returns (and if needed starts or switches) the live chart
// subscription for the requested asset. A repeat request within the
// throttle window just replays the latest published snapshot.
func (h *APIHandler) GraphHandler(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account")
	symbol := r.URL.Query().Get("symbol")
	if accountID == "" || symbol == "" {
		http.Error(w, "missing account or symbol", http.StatusBadRequest)
		return
	}
	class := models.ClassFromCrypto(r.URL.Query().Get("is_crypto") == "true")

	if r.Method == http.MethodDelete {
		h.mu.Lock()
		if sub, ok := h.subs[accountID]; ok {
			sub.Stop()
			delete(h.subs, accountID)
		}
		h.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.mu.Lock()
	sub, ok := h.subs[accountID]
	if !ok {
		sub = h.coordinator.Start(accountID, symbol, class)
	} else {
		sub = h.coordinator.SwitchAsset(sub, symbol, class)
	}
	h.subs[accountID] = sub
	h.mu.Unlock()

	result := sub.Refresh(r.Context())
	h.writeJSON(w, http.StatusOK, graphResponse{
		Symbol:   sub.Symbol(),
		State:    result.State.String(),
		Snapshot: result.Snapshot,
	})
}

// amountRequest is the wallet top-up/withdraw body.
type amountRequest struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// balanceResponse reports a wallet balance.
type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// BalanceHandler returns the remote wallet balance.
func (h *APIHandler) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	balance, err := h.wallets.Balance(r.Context())
	if err != nil {
		h.writeTradeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

// TopUpHandler runs the payment top-up flow.
func (h *APIHandler) TopUpHandler(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	newBalance, err := h.wallets.TopUp(r.Context(), req.AccountID, req.Amount)
	if err != nil {
		if errors.Is(err, wallet.ErrInvalidAmount) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.writeTradeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balanceResponse{Balance: newBalance})
}

// WithdrawHandler debits the wallet.
func (h *APIHandler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	newBalance, err := h.wallets.Withdraw(r.Context(), req.AccountID, req.Amount)
	if err != nil {
		if errors.Is(err, wallet.ErrInvalidAmount) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.writeTradeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balanceResponse{Balance: newBalance})
}
