// Package poller keeps a live view of upstream traffic chokepoints. A
// supervised loop fetches the ranked cluster list immediately on start and
// then on a fixed interval, bounding every fetch with a timeout. Failed
// refreshes keep the last-known-good data and surface a human-readable
// error; stale responses from a torn-down or reconfigured session are
// discarded via context cancellation rather than liveness flags.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trafficlens/datalayer/internal/cache/keys"
	"github.com/trafficlens/datalayer/internal/model"
	"github.com/trafficlens/datalayer/internal/observability"
)

// Fetcher is the injected upstream capability.
type Fetcher interface {
	FetchClusters(ctx context.Context, q model.ClusterQuery) ([]model.LiveCluster, error)
}

// State is the poller's published view. Data survives failed refreshes.
type State struct {
	Data      []model.LiveCluster `json:"data"`
	Loading   bool                `json:"loading"`
	Err       string              `json:"error,omitempty"`
	UpdatedAt time.Time           `json:"updated_at,omitempty"`
}

type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

type Poller struct {
	log      *slog.Logger
	fetch    Fetcher
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	state   State
	subs    map[int]chan State
	nextSub int

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	refreshCh chan struct{}

	seen    *announcer
	settled atomic.Bool
}

func New(cfg Config, fetch Fetcher, log *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		log:       log,
		fetch:     fetch,
		interval:  cfg.Interval,
		timeout:   cfg.Timeout,
		subs:      map[int]chan State{},
		refreshCh: make(chan struct{}, 1),
		seen:      newAnnouncer(512),
	}
}

// Start begins a polling session with the given query. A running session is
// stopped first, so Start doubles as reconfiguration: the old session's
// in-flight fetch is cancelled and can no longer write state.
func (p *Poller) Start(ctx context.Context, q model.ClusterQuery) {
	p.Stop()

	sessCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.log.Info("poller session starting",
		"session", keys.Fingerprint(q),
		"interval", p.interval.String(),
		"timeout", p.timeout.String())

	p.wg.Add(1)
	go p.run(sessCtx, q)
}

// Stop cancels the in-flight fetch and the interval. No state update can
// happen after Stop returns.
func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.wg.Wait()
	p.cancel = nil
}

// Refresh requests an immediate out-of-schedule fetch. No-op when one is
// already queued or no session is running.
func (p *Poller) Refresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the current state.
func (p *Poller) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.state
	s.Data = append([]model.LiveCluster(nil), p.state.Data...)
	return s
}

// Ready reports whether the first fetch of any session has settled.
func (p *Poller) Ready() bool {
	return p.settled.Load()
}

// Subscribe registers a listener for state transitions. Slow listeners miss
// updates instead of blocking the poll loop. The returned func unsubscribes.
func (p *Poller) Subscribe() (<-chan State, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	ch := make(chan State, 8)
	p.subs[id] = ch

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if c, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(c)
		}
	}
}

func (p *Poller) run(ctx context.Context, q model.ClusterQuery) {
	defer p.wg.Done()

	p.fetchOnce(ctx, q)

	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.fetchOnce(ctx, q)
		case <-p.refreshCh:
			p.fetchOnce(ctx, q)
		}
	}
}

func (p *Poller) fetchOnce(ctx context.Context, q model.ClusterQuery) {
	if ctx.Err() != nil {
		return
	}
	p.transition(ctx, func(s *State) { s.Loading = true })

	fctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	clusters, err := p.fetch.FetchClusters(fctx, q)
	dur := time.Since(start)
	observability.ObserveUpstreamLatency("clusters", dur.Seconds())

	// a torn-down or reconfigured session must not write state
	if ctx.Err() != nil {
		observability.IncPollerFetch("stale")
		return
	}
	defer func() { p.settled.Store(true) }()

	if err != nil {
		msg := "failed to load live chokepoints: " + err.Error()
		result := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("clustering did not finish within %s; try a smaller area or stricter filters", p.timeout)
			result = "timeout"
		}
		observability.IncPollerFetch(result)
		p.log.Warn("cluster fetch failed", "result", result, "dur", dur.String(), "err", err)
		p.transition(ctx, func(s *State) {
			s.Loading = false
			s.Err = msg
		})
		return
	}

	observability.IncPollerFetch("ok")
	observability.SetPollerClusters(len(clusters))

	if fresh := p.seen.newlySeen(clusters); len(fresh) > 0 {
		p.log.Info("new chokepoints observed", "count", len(fresh), "total", len(clusters))
	}

	p.transition(ctx, func(s *State) {
		s.Data = clusters
		s.Loading = false
		s.Err = ""
		s.UpdatedAt = time.Now()
	})
}

// transition mutates state under the lock and publishes a snapshot. The
// session context is re-checked under the lock so a cancellation that raced
// the fetch cannot slip a stale write in.
func (p *Poller) transition(ctx context.Context, mut func(*State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	mut(&p.state)

	snap := p.state
	snap.Data = append([]model.LiveCluster(nil), p.state.Data...)
	for _, ch := range p.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
