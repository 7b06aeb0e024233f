package reconcile

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Worker runs reconciliation passes on an interval
type Worker struct {
	service  *Service
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a new reconciliation worker
func NewWorker(service *Service, interval time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{
		service:  service,
		interval: interval,
		logger:   logger,
	}
}

// Start starts the background loop
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.Info("reconciler started", zap.Duration("interval", w.interval))
	return nil
}

// Stop stops the loop and waits for a running pass to finish
func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("reconciler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.service.Run(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("reconciliation pass failed", zap.Error(err))
			}
		}
	}
}
