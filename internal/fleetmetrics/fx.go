package fleetmetrics

import (
	"context"
	"time"

	"github.com/smallbiznis/fieldops/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("fleet.metrics",
	fx.Provide(NewPusher),
	fx.Provide(func(cfg config.Config, pusher Pusher) *FleetMetrics {
		if !cfg.Fleet.Enabled || pusher == nil {
			return nil
		}
		return New(nil, pusher, cfg.AppName)
	}),
	fx.Invoke(register),
)

func register(lc fx.Lifecycle, cfg config.Config, m *FleetMetrics, logger *zap.Logger, db *gorm.DB) {
	if m == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("fleet.metrics")

	interval := cfg.Fleet.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting fleet metrics worker", zap.Duration("interval", interval))
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				pushOnce(ctx, m, db, logger)
				for {
					select {
					case <-ticker.C:
						pushOnce(ctx, m, db, logger)
					case <-ctx.Done():
						logger.Info("stopping fleet metrics worker")
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func pushOnce(ctx context.Context, m *FleetMetrics, db *gorm.DB, logger *zap.Logger) {
	pushCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout*2)
	defer cancel()

	if err := m.Refresh(pushCtx, db); err != nil {
		logger.Warn("fleet metrics refresh failed", zap.Error(err))
		return
	}
	if err := m.Push(pushCtx); err != nil {
		logger.Warn("fleet metrics push failed", zap.Error(err))
	}
}
