// Package sweeper periodically removes expired refresh tokens from the store
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/nkiryanov/authrotate/internal/logger"
)

const DefaultInterval = 10 * time.Minute

type store interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Config struct {
	// Time between sweeps. Default is used if not set
	Interval time.Duration

	// Max time for one sweep. Interval is used if not set
	Timeout time.Duration

	// Clock. time.Now if not set
	Now func() time.Time
}

type Sweeper struct {
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	store  store
	logger logger.Logger
}

func New(cfg Config, s store, l logger.Logger) (*Sweeper, error) {
	if s == nil {
		return nil, errors.New("store must not be nil")
	}
	if cfg.Interval < 0 {
		return nil, errors.New("sweep interval must not be negative")
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = cfg.Interval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Sweeper{
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		now:      cfg.Now,
		store:    s,
		logger:   l.With("component", "sweeper"),
	}, nil
}

// Sweep once and return number of deleted tokens
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	deleted, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.Debug("Expired refresh tokens swept", "deleted", deleted)
	return deleted, nil
}

// Run sweeps on every tick until ctx is done
// Returned channel is closed when sweeper stopped
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})
	s.logger.Debug("Starting sweeper", "interval", s.interval)

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Sweeper stopped by context")
				return

			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.logger.Error("Failed to sweep expired refresh tokens", "error", err)
				}
			}
		}
	}()

	return stopped
}
