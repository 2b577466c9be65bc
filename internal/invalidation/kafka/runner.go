// Package kafka consumes road-network change events and applies them to the
// estimate cache. The consumer is optional and disabled by default; the
// cache falls back to plain TTL expiry without it.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/trafficlens/datalayer/internal/invalidation"
	"github.com/trafficlens/datalayer/internal/observability"
)

// Invalidator is the estimate cache surface the runner needs.
type Invalidator interface {
	Invalidate(ctx context.Context, bucketKeys ...string)
}

type Config struct {
	Enabled bool
	Brokers []string
	Topic   string
	GroupID string

	Precision        int
	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	InitialOldest    bool
}

type Runner struct {
	log    *slog.Logger
	cfg    Config
	target Invalidator
	ver    *versionDedupe
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(cfg Config, target Invalidator, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 30 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 3 * time.Second
	}
	if cfg.RebalanceTimeout <= 0 {
		cfg.RebalanceTimeout = 30 * time.Second
	}
	return &Runner{
		log:    log,
		cfg:    cfg,
		target: target,
		ver:    newVersionDedupe(8192),
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.log.Info("invalidation runner disabled")
		return nil
	}
	if r.target == nil {
		return errors.New("kafka runner: invalidation target is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{process: r.handleMessage}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("invalidation runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.log.Info("invalidation runner stopped")
}

func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.IncInvalidation("error")
		return fmt.Errorf("decode: %w", err)
	}
	if ev.TS.IsZero() {
		ev.TS = msg.Timestamp
	}
	if err := ev.Validate(); err != nil {
		observability.IncInvalidation("error")
		return fmt.Errorf("validate: %w", err)
	}
	return r.apply(ctx, ev)
}

func (r *Runner) apply(ctx context.Context, ev invalidation.Event) error {
	all := ev.BucketKeys(r.cfg.Precision)

	applied := make([]string, 0, len(all))
	for _, k := range all {
		if !r.ver.shouldApply(k, ev.Version) {
			observability.IncInvalidation("skip_version")
			continue
		}
		applied = append(applied, k)
	}
	if len(applied) == 0 {
		return nil
	}

	r.target.Invalidate(ctx, applied...)
	observability.IncInvalidation("delete")
	r.log.Info("estimate buckets invalidated",
		"op", ev.Op, "source", ev.Source, "buckets", len(applied))
	return nil
}

type groupHandler struct {
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			// poison messages are logged and skipped, not redelivered forever
			sess.MarkMessage(msg, "")
			continue
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
