package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/erp/retailcore/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration

	// Retry delay after the n-th failed delivery is
	// RetryInitialInterval * RetryMultiplier^(n-1), capped at RetryMaxInterval.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:            100,
		PollInterval:         5 * time.Second,
		RetryInitialInterval: 10 * time.Second,
		RetryMaxInterval:     30 * time.Minute,
		RetryMultiplier:      2,
		CleanupEnabled:       true,
		CleanupRetention:     7 * 24 * time.Hour,
		CleanupInterval:      time.Hour,
	}
}

func (c OutboxProcessorConfig) withDefaults() OutboxProcessorConfig {
	d := DefaultOutboxProcessorConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = d.RetryInitialInterval
	}
	if c.RetryMaxInterval < c.RetryInitialInterval {
		c.RetryMaxInterval = max(d.RetryMaxInterval, c.RetryInitialInterval)
	}
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = d.RetryMultiplier
	}
	if c.CleanupRetention <= 0 {
		c.CleanupRetention = d.CleanupRetention
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	return c
}

// OutboxProcessor drains committed outbox entries onto the event bus.
// Delivery is at least once; handlers deduplicate through IdempotentHandler.
//
// TODO: reclaim PROCESSING entries whose claimer died before Update, using a
// claim lease on updated_at.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	bus        shared.EventBus
	serializer *EventSerializer
	cfg        OutboxProcessorConfig
	logger     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

func NewOutboxProcessor(
	repo shared.OutboxRepository,
	bus shared.EventBus,
	serializer *EventSerializer,
	cfg OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	return &OutboxProcessor{
		repo:       repo,
		bus:        bus,
		serializer: serializer,
		cfg:        cfg.withDefaults(),
		logger:     logger.Named("outbox"),
	}
}

// Start launches the delivery loop and, when enabled, the cleanup loop.
func (p *OutboxProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.group != nil {
		return errors.New("outbox processor already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.every(gctx, p.cfg.PollInterval, func(ctx context.Context) { p.ProcessOnce(ctx) })
		return nil
	})
	if p.cfg.CleanupEnabled {
		g.Go(func() error {
			p.every(gctx, p.cfg.CleanupInterval, p.cleanup)
			return nil
		})
	}
	p.cancel, p.group = cancel, g

	p.logger.Info("Outbox processor started",
		zap.Int("batch_size", p.cfg.BatchSize),
		zap.Duration("poll_interval", p.cfg.PollInterval),
		zap.Bool("cleanup", p.cfg.CleanupEnabled))
	return nil
}

// Stop cancels the loops and waits for the batch in flight, or for ctx.
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, g := p.cancel, p.group
	p.cancel, p.group = nil, nil
	p.mu.Unlock()
	if g == nil {
		return nil
	}
	cancel()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		p.logger.Info("Outbox processor stopped")
		return err
	case <-ctx.Done():
		return fmt.Errorf("stop outbox processor: %w", ctx.Err())
	}
}

func (p *OutboxProcessor) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// ProcessOnce claims one batch of due entries and delivers it. It returns
// the number of entries this instance claimed.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) int {
	due, err := p.repo.FindDue(ctx, time.Now(), p.cfg.BatchSize)
	if err != nil {
		p.logger.Error("Failed to load due outbox entries", zap.Error(err))
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	ids := make([]uuid.UUID, len(due))
	for i, e := range due {
		ids[i] = e.ID
	}
	claimed, err := p.repo.Claim(ctx, ids)
	if err != nil {
		p.logger.Error("Failed to claim outbox entries", zap.Error(err))
		return 0
	}
	for _, entry := range claimed {
		p.deliver(ctx, entry)
	}
	return len(claimed)
}

func (p *OutboxProcessor) deliver(ctx context.Context, entry *shared.OutboxEntry) {
	log := p.logger.With(
		zap.Stringer("event_id", entry.EventID),
		zap.String("event_type", entry.EventType))

	event, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err == nil {
		err = p.bus.Publish(ctx, event)
	}
	if err != nil {
		entry.MarkFailed(err.Error(), p.retryDelay(entry.RetryCount+1))
		if entry.IsDead() {
			log.Warn("Outbox entry moved to dead letter",
				zap.String("aggregate_type", entry.AggregateType),
				zap.Stringer("aggregate_id", entry.AggregateID),
				zap.Int("retry_count", entry.RetryCount),
				zap.Error(err))
		} else {
			log.Error("Outbox delivery failed",
				zap.Int("retry_count", entry.RetryCount),
				zap.Timep("next_retry_at", entry.NextRetryAt),
				zap.Error(err))
		}
	} else {
		entry.MarkSent()
		log.Debug("Outbox entry delivered")
	}

	// state must land even if the poll loop is being cancelled
	if uerr := p.repo.Update(context.WithoutCancel(ctx), entry); uerr != nil {
		log.Error("Failed to persist outbox entry state",
			zap.String("status", string(entry.Status)), zap.Error(uerr))
	}
}

// retryDelay is the wait before attempt n+1 after n failures.
func (p *OutboxProcessor) retryDelay(failures int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.RetryInitialInterval
	b.MaxInterval = p.cfg.RetryMaxInterval
	b.Multiplier = p.cfg.RetryMultiplier
	b.RandomizationFactor = 0
	b.Reset()

	delay := b.InitialInterval
	for range max(failures, 1) {
		delay = b.NextBackOff()
	}
	return delay
}

func (p *OutboxProcessor) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-p.cfg.CleanupRetention)
	purged, err := p.repo.PurgeSent(ctx, cutoff)
	if err != nil {
		p.logger.Error("Failed to purge sent outbox entries", zap.Error(err))
		return
	}
	if purged > 0 {
		p.logger.Info("Purged sent outbox entries", zap.Int64("purged", purged), zap.Time("cutoff", cutoff))
	}
}
