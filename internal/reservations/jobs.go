package reservations

import (
	"context"
	"sync"
	"time"

	"slotbook/pkg/logger"
)

// Sweeper periodically expires waitlist entries of slots that have started.
type Sweeper struct {
	waitlist *WaitlistManager
	config   *SweeperConfig
	logger   *logger.Logger
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

func DefaultSweeperConfig() *SweeperConfig {
	return &SweeperConfig{
		Interval:  time.Minute,
		BatchSize: 100,
	}
}

func NewSweeper(waitlist *WaitlistManager, config *SweeperConfig, log *logger.Logger) *Sweeper {
	if config == nil {
		config = DefaultSweeperConfig()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultSweeperConfig().Interval
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Sweeper{
		waitlist: waitlist,
		config:   config,
		logger:   log,
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		s.logger.InfoContext(ctx, "waitlist sweeper started", "interval", s.config.Interval.String())
		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	n, err := s.waitlist.ExpireStarted(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "waitlist sweep failed", "error", err.Error())
		return 0
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "waitlist sweep expired entries", "count", n)
	}
	return n
}

func (s *Sweeper) Stop() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}
