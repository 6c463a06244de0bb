package pricefeed

import (
	"context"
	"sync"
	"time"

	"portfolio-trader-go/internal/models"

	"go.uber.org/zap"
)

// State is the lifecycle phase of a subscription.
type State int

const (
	// StateIdle is the initial state, before the first fetch is issued.
	StateIdle State = iota
	// StateFetching means a request to the remote endpoint is in flight.
	StateFetching
	// StateActive means a successful snapshot has been published and the
	// next fetch is scheduled.
	StateActive
	// StateDegraded means the last fetch failed or was empty; the previous
	// snapshot, if any, is retained and republished.
	StateDegraded
	// StateStopped is terminal; the polling loop will not fire again.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateActive:
		return "active"
	case StateDegraded:
		return "degraded"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Result is the tagged value a subscription publishes: the current state,
// the latest usable snapshot (which a Degraded subscription retains from its
// last Active period), and the last fetch error for diagnostics. A consumer
// with a nil Snapshot has nothing to display yet.
type Result struct {
	State    State
	Snapshot *models.PriceSnapshot
	Err      error
}

// Subscription is one account's polling loop for one asset. It owns its
// cancellation; the holder calls Stop when no longer interested. Stop is
// idempotent and safe from any goroutine.
type Subscription struct {
	coord     *Coordinator
	accountID string
	symbol    string
	class     models.AssetClass
	interval  time.Duration

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	state   State
	latest  *models.PriceSnapshot
	lastErr error
	nextSeq uint64
	applied uint64
	updates chan Result
}

// Symbol returns the asset symbol this subscription polls.
func (s *Subscription) Symbol() string { return s.symbol }

// Class returns the asset class this subscription polls.
func (s *Subscription) Class() models.AssetClass { return s.class }

// Latest returns the most recently published result.
func (s *Subscription) Latest() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Result{State: s.state, Snapshot: s.latest, Err: s.lastErr}
}

// Updates delivers a notification whenever a new result is published.
// The channel holds only the most recent result; slow consumers skip
// intermediate ones instead of blocking the loop.
func (s *Subscription) Updates() <-chan Result {
	return s.updates
}

// Stop cancels the polling loop and any pending timer. It may be called any
// number of times, from any goroutine. A fetch already past its suspension
// point completes and its result is discarded.
func (s *Subscription) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		close(s.done)
		s.coord.logger.Info("Stopped price subscription",
			zap.String("account_id", s.accountID),
			zap.String("symbol", s.symbol),
		)
	})
}

// Done is closed once the subscription has stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateStopped
}

// clear drops the published snapshot, including an unconsumed copy in the
// updates channel, so nothing stale survives an asset switch.
func (s *Subscription) clear() {
	s.mu.Lock()
	s.latest = nil
	s.lastErr = nil
	select {
	case <-s.updates:
	default:
	}
	s.mu.Unlock()
}

// Refresh requests an immediate fetch outside the timer schedule. When the
// throttle interval has not yet elapsed it is a no-op that returns the most
// recent published result without touching the remote endpoint.
func (s *Subscription) Refresh(ctx context.Context) Result {
	if s.stopped() {
		return s.Latest()
	}
	s.fetch(ctx)
	return s.Latest()
}

// run is the polling loop: one immediate fetch, then one per tick.
func (s *Subscription) run(ctx context.Context) {
	s.fetch(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fetch(ctx)
		}
	}
}

// fetch issues one throttled request and applies the result in issuance
// order. A result arriving after a newer one has already applied, or after
// the subscription stopped, is discarded silently.
func (s *Subscription) fetch(ctx context.Context) {
	if s.stopped() {
		return
	}
	admittedAt, ok := s.coord.admitFetch(s.accountID, s.symbol, s.class)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.state == StateStopped {
		// Stop raced the admission; give the slot back so a replacement
		// subscription for the same asset is not delayed by it.
		s.mu.Unlock()
		s.coord.releaseFetch(s.accountID, s.symbol, s.class, admittedAt)
		return
	}
	s.nextSeq++
	seq := s.nextSeq
	s.state = StateFetching
	s.mu.Unlock()

	points, err := s.coord.fetcher.GetAssetGraph(ctx, s.symbol, s.class)
	s.apply(seq, points, err)
}

// apply publishes a fetch outcome, unless it is stale or the subscription
// has stopped in the meantime.
func (s *Subscription) apply(seq uint64, points []models.PricePoint, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped || seq <= s.applied {
		return
	}
	s.applied = seq

	if err != nil || len(points) == 0 {
		// Transient failure: keep the previous snapshot on display
		// instead of flickering an error at the consumer.
		s.state = StateDegraded
		s.lastErr = err
		s.coord.logger.Warn("Price fetch degraded",
			zap.String("symbol", s.symbol),
			zap.Int("points", len(points)),
			zap.Error(err),
		)
	} else {
		s.state = StateActive
		s.lastErr = nil
		s.latest = &models.PriceSnapshot{
			Symbol:    s.symbol,
			Class:     s.class,
			Points:    boundOldestFirst(points),
			FetchedAt: time.Now(),
		}
	}
	s.publishLocked()
}

// publishLocked pushes the current result into the updates channel,
// replacing an unconsumed older one. Callers hold s.mu.
func (s *Subscription) publishLocked() {
	res := Result{State: s.state, Snapshot: s.latest, Err: s.lastErr}
	select {
	case s.updates <- res:
	default:
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- res:
		default:
		}
	}
}

// boundOldestFirst takes at most the most recent MaxGraphPoints candles
// from a newest-first server response and reverses them for chronological
// display.
func boundOldestFirst(points []models.PricePoint) []models.PricePoint {
	n := len(points)
	if n > models.MaxGraphPoints {
		n = models.MaxGraphPoints
	}
	out := make([]models.PricePoint, n)
	for i := 0; i < n; i++ {
		out[i] = points[n-1-i]
	}
	return out
}
