package callback

import (
	"context"
	"time"

	"offerwall/pkg/config"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Sweeper periodically re-enqueues postbacks that were stored but never
// finished, covering replays lost when the API could not reach the queue.
var Sweeper = fx.Module("callback.sweeper",
	fx.Invoke(registerSweeper),
)

type sweepConfig struct {
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
}

func newSweepConfig(cfg *config.Config) sweepConfig {
	c := sweepConfig{
		interval:   cfg.Callback.SweepInterval,
		staleAfter: cfg.Callback.StaleAfter,
		batchSize:  cfg.Callback.BatchSize,
	}
	if c.interval <= 0 {
		c.interval = time.Minute
	}
	if c.staleAfter <= 0 {
		c.staleAfter = 5 * time.Minute
	}
	if c.batchSize <= 0 {
		c.batchSize = 100
	}
	return c
}

func (s *Service) sweep(ctx context.Context, c sweepConfig) {
	n, err := s.EnqueueStale(ctx, c.staleAfter, c.batchSize)
	if err != nil {
		zap.L().Error("callback sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("callback sweep enqueued replays", zap.Int("count", n))
	}
}

func registerSweeper(lc fx.Lifecycle, cfg *config.Config, s *Service) error {
	sc := newSweepConfig(cfg)

	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(sc.interval),
		gocron.NewTask(func(ctx context.Context) {
			s.sweep(ctx, sc)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("callback-sweep"),
	)
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sched.Start()
			zap.L().Info("callback sweeper started", zap.Duration("interval", sc.interval))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return sched.Shutdown()
		},
	})
	return nil
}
