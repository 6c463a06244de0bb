package pricefeed

import (
	"context"
	"sync"
	"time"

	"portfolio-trader-go/internal/config"
	"portfolio-trader-go/internal/models"

	"go.uber.org/zap"
)

// Fetcher is the slice of the backend the coordinator needs: the raw candle
// history for one asset, newest-first.
type Fetcher interface {
	GetAssetGraph(ctx context.Context, symbol string, class models.AssetClass) ([]models.PricePoint, error)
}

// Coordinator hands out per-asset polling subscriptions and enforces the
// minimum inter-fetch interval per (account, asset) across all of them.
type Coordinator struct {
	fetcher Fetcher
	logger  *zap.Logger

	pollInterval     time.Duration
	passiveInterval  time.Duration
	minFetchInterval time.Duration

	mu        sync.Mutex
	lastFetch map[string]time.Time
}

// NewCoordinator creates a Coordinator polling through fetcher.
func NewCoordinator(cfg *config.PriceFeed, fetcher Fetcher, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		fetcher:          fetcher,
		logger:           logger,
		pollInterval:     time.Duration(cfg.PollInterval) * time.Second,
		passiveInterval:  time.Duration(cfg.PassiveInterval) * time.Second,
		minFetchInterval: time.Duration(cfg.MinFetchInterval) * time.Second,
		lastFetch:        make(map[string]time.Time),
	}
}

func throttleKey(accountID, symbol string, class models.AssetClass) string {
	return accountID + "/" + string(class) + "/" + symbol
}

// admitFetch checks the throttle for the given key and, when the interval
// has elapsed, records the new issuance time. A false return means the
// request must be a no-op; the returned time identifies the admission for
// releaseFetch.
func (c *Coordinator) admitFetch(accountID, symbol string, class models.AssetClass) (time.Time, bool) {
	key := throttleKey(accountID, symbol, class)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastFetch[key]; ok && now.Sub(last) < c.minFetchInterval {
		return time.Time{}, false
	}
	c.lastFetch[key] = now
	return now, true
}

// releaseFetch rolls back an admission that never issued a request, so the
// slot is not held against a later fetch for the same asset. It is a no-op
// when a newer admission has already been recorded.
func (c *Coordinator) releaseFetch(accountID, symbol string, class models.AssetClass, at time.Time) {
	key := throttleKey(accountID, symbol, class)

	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastFetch[key]; ok && last.Equal(at) {
		delete(c.lastFetch, key)
	}
}

// Start begins polling the asset for the given account at the active
// interval: one fetch immediately, then one per tick until Stop.
func (c *Coordinator) Start(accountID, symbol string, class models.AssetClass) *Subscription {
	return c.start(accountID, symbol, class, c.pollInterval)
}

// StartBackground is Start at the longer passive-refresh interval, for
// consumers that only need to stay loosely current.
func (c *Coordinator) StartBackground(accountID, symbol string, class models.AssetClass) *Subscription {
	return c.start(accountID, symbol, class, c.passiveInterval)
}

func (c *Coordinator) start(accountID, symbol string, class models.AssetClass, interval time.Duration) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		coord:     c,
		accountID: accountID,
		symbol:    symbol,
		class:     class,
		interval:  interval,
		cancel:    cancel,
		done:      make(chan struct{}),
		updates:   make(chan Result, 1),
		state:     StateIdle,
	}

	c.logger.Info("Starting price subscription",
		zap.String("account_id", accountID),
		zap.String("symbol", symbol),
		zap.String("class", string(class)),
		zap.Duration("interval", interval),
	)
	go sub.run(ctx)
	return sub
}

// SwitchAsset stops sub and starts a fresh subscription for the new asset.
// Stop comes before the snapshot is cleared: once the subscription is
// stopped, a fetch still in flight for the old asset is discarded by apply,
// so nothing can republish the old asset's data after the switch begins.
func (c *Coordinator) SwitchAsset(sub *Subscription, symbol string, class models.AssetClass) *Subscription {
	if sub.symbol == symbol && sub.class == class && !sub.stopped() {
		return sub
	}
	sub.Stop()
	sub.clear()
	return c.Start(sub.accountID, symbol, class)
}
