package space

import (
	"context"
	"math/rand"
	"time"

	"github.com/lalith-99/hop/internal/observ"
	"go.uber.org/zap"
)

const (
	defaultQueueSize   = 256
	defaultBaseBackoff = 1 * time.Second
	defaultMaxBackoff  = 1 * time.Minute
	jitterWindow       = 250 * time.Millisecond
)

// AppDeleter is the part of the provisioner the compensator needs.
type AppDeleter interface {
	Delete(ctx context.Context, appName string) error
}

// Compensator deprovisions apps whose space rows never committed, so a
// failed create does not leave a remote desktop running with no space.
type Compensator struct {
	deleter     AppDeleter
	queue       chan string
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	metrics     *observ.Metrics
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

type CompensatorOption func(*Compensator)

// WithBackoff overrides the retry delays.
func WithBackoff(base, max time.Duration) CompensatorOption {
	return func(c *Compensator) {
		c.baseBackoff = base
		c.maxBackoff = max
	}
}

func WithCompensatorMetrics(m *observ.Metrics) CompensatorOption {
	return func(c *Compensator) {
		c.metrics = m
	}
}

func NewCompensator(deleter AppDeleter, maxAttempts int, logger *zap.Logger, opts ...CompensatorOption) *Compensator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	c := &Compensator{
		deleter:     deleter,
		queue:       make(chan string, defaultQueueSize),
		maxAttempts: maxAttempts,
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
		logger:      logger,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Enqueue schedules appName for deprovisioning. It never blocks; when the
// queue is full the app is logged for manual cleanup.
func (c *Compensator) Enqueue(appName string) {
	select {
	case c.queue <- appName:
		c.logger.Warn("queued app for deprovisioning", zap.String("app_name", appName))
	default:
		c.metrics.Compensation("abandoned")
		c.logger.Error("compensation queue full, app needs manual cleanup", zap.String("app_name", appName))
	}
}

// Run processes the queue until ctx is cancelled.
func (c *Compensator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case appName := <-c.queue:
			c.compensate(ctx, appName)
		}
	}
}

func (c *Compensator) compensate(ctx context.Context, appName string) {
	backoff := c.baseBackoff
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err := c.deleter.Delete(ctx, appName)
		if err == nil {
			c.metrics.Compensation("success")
			c.logger.Info("deprovisioned orphaned app",
				zap.String("app_name", appName),
				zap.Int("attempt", attempt),
			)
			return
		}

		if attempt == c.maxAttempts {
			c.metrics.Compensation("abandoned")
			c.logger.Error("giving up on deprovisioning app",
				zap.String("app_name", appName),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return
		}

		c.metrics.Compensation("retry")
		c.logger.Warn("deprovision failed, retrying",
			zap.String("app_name", appName),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := c.sleep(ctx, withJitter(backoff)); err != nil {
			c.logger.Error("shutdown before app was deprovisioned", zap.String("app_name", appName))
			return
		}
		backoff = nextBackoff(backoff, c.baseBackoff, c.maxBackoff)
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(jitterWindow)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
