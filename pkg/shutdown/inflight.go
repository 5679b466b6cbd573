package shutdown

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InFlightTracker tracks in-flight work so graceful shutdown can wait for
// it. The webhook handler uses one to stop accepting deliveries once
// shutdown begins while letting accepted ones finish.
type InFlightTracker struct {
	wg         sync.WaitGroup
	shutdownCh chan struct{}
	logger     *zap.Logger
	name       string
}

// NewInFlightTracker creates a new in-flight work tracker
func NewInFlightTracker(name string, logger *zap.Logger) *InFlightTracker {
	return &InFlightTracker{
		shutdownCh: make(chan struct{}),
		logger:     logger,
		name:       name,
	}
}

// Add increments the in-flight counter. Returns false if shutdown has been
// initiated and new work must be refused.
func (ift *InFlightTracker) Add() bool {
	select {
	case <-ift.shutdownCh:
		return false
	default:
		ift.wg.Add(1)
		return true
	}
}

// Done decrements the in-flight counter, typically via defer
func (ift *InFlightTracker) Done() {
	ift.wg.Done()
}

// IsShuttingDown returns true if shutdown has been initiated
func (ift *InFlightTracker) IsShuttingDown() bool {
	select {
	case <-ift.shutdownCh:
		return true
	default:
		return false
	}
}

// Shutdown rejects new work and waits for in-flight work to complete.
// Returns the context error if it expires first.
func (ift *InFlightTracker) Shutdown(ctx context.Context) error {
	close(ift.shutdownCh)

	ift.logger.Info("Waiting for in-flight work to complete",
		zap.String("tracker", ift.name),
	)

	done := make(chan struct{})
	go func() {
		ift.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		ift.logger.Info("All in-flight work completed",
			zap.String("tracker", ift.name),
		)
		return nil
	case <-ctx.Done():
		ift.logger.Warn("Shutdown timeout - some work may be incomplete",
			zap.String("tracker", ift.name),
		)
		return ctx.Err()
	}
}

// BackgroundWorker manages a background goroutine with graceful shutdown
type BackgroundWorker struct {
	name   string
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewBackgroundWorker creates a new background worker
func NewBackgroundWorker(name string, logger *zap.Logger) *BackgroundWorker {
	ctx, cancel := context.WithCancel(context.Background())

	return &BackgroundWorker{
		name:   name,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the worker. The work function must respect ctx.Done().
func (bw *BackgroundWorker) Start(work func(ctx context.Context)) {
	bw.wg.Add(1)

	go func() {
		defer bw.wg.Done()

		bw.logger.Info("Background worker started",
			zap.String("worker", bw.name),
		)

		work(bw.ctx)

		bw.logger.Info("Background worker stopped",
			zap.String("worker", bw.name),
		)
	}()
}

// Stop cancels the worker's context and waits for it to finish
func (bw *BackgroundWorker) Stop() {
	bw.once.Do(func() {
		bw.logger.Info("Stopping background worker",
			zap.String("worker", bw.name),
		)
		bw.cancel()
	})
	bw.wg.Wait()
}

// Shutdown waits for the worker to stop with timeout
func (bw *BackgroundWorker) Shutdown(ctx context.Context) error {
	bw.once.Do(bw.cancel)

	done := make(chan struct{})
	go func() {
		bw.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		bw.logger.Warn("Background worker shutdown timeout",
			zap.String("worker", bw.name),
		)
		return ctx.Err()
	}
}

// PeriodicWorker runs a function on an interval with graceful shutdown
// support. The subscription expiry sweep runs on one.
type PeriodicWorker struct {
	*BackgroundWorker
	interval time.Duration
}

// NewPeriodicWorker creates a new periodic worker
func NewPeriodicWorker(name string, interval time.Duration, logger *zap.Logger) *PeriodicWorker {
	return &PeriodicWorker{
		BackgroundWorker: NewBackgroundWorker(name, logger),
		interval:         interval,
	}
}

// Start begins the periodic worker. The function runs once immediately,
// then on every tick until shutdown.
func (pw *PeriodicWorker) Start(work func(ctx context.Context)) {
	pw.BackgroundWorker.Start(func(ctx context.Context) {
		ticker := time.NewTicker(pw.interval)
		defer ticker.Stop()

		work(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				work(ctx)
			}
		}
	})
}
