package health

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/glykeria-rk/thesisadmincli/internal/errs"
	"github.com/glykeria-rk/thesisadmincli/internal/lock/store"
)

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

// Probe runs a check on an interval and mirrors the result into the health
// server's serving status. It is safe to stop via its context or Stop.
type Probe struct {
	target   *Server
	check    CheckFunc
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

type ProbeConfig struct {
	// Interval between checks. Defaults to 10s.
	Interval time.Duration
	// Timeout bounds one check. Defaults to 2s.
	Timeout time.Duration
}

// NewProbe creates a probe but does not start it.
func NewProbe(target *Server, check CheckFunc, cfg ProbeConfig, logger *zap.Logger) *Probe {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &Probe{
		target:   target,
		check:    check,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start runs one check immediately, then repeats on the interval until ctx
// is cancelled or Stop is called.
func (p *Probe) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	healthy := p.run(ctx, true)
	go p.loop(ctx, healthy)
}

// Stop ends the loop and waits for it to exit.
func (p *Probe) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *Probe) loop(ctx context.Context, healthy bool) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			healthy = p.run(ctx, healthy)
		}
	}
}

// run checks once and logs only transitions.
func (p *Probe) run(ctx context.Context, wasHealthy bool) bool {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(checkCtx)
	if ctx.Err() != nil {
		return wasHealthy
	}
	healthy := err == nil
	p.target.SetServing(healthy)

	switch {
	case !healthy && wasHealthy:
		p.logger.Warn("health check failing", zap.Error(err))
	case healthy && !wasHealthy:
		p.logger.Info("health check recovered")
	}
	return healthy
}

// probeKey is never a valid email, so the lookup always misses.
const probeKey = "health-probe"

// StoreCheck round-trips a read transaction through st.
func StoreCheck(st store.Store) CheckFunc {
	return func(ctx context.Context) error {
		return st.View(ctx, func(ctx context.Context, tx store.Tx) error {
			_, err := tx.Identity(ctx, probeKey)
			if errors.Is(err, errs.ErrNotFound) {
				return nil
			}
			return err
		})
	}
}
