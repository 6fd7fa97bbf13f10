package ratelimit

import (
	"context"

	"github.com/smallbiznis/fieldops/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(provideLimiter),
)

func provideLimiter(lc fx.Lifecycle, cfg config.Config) (*Limiter, error) {
	limiter, err := NewLimiter(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return limiter.Close()
		},
	})
	return limiter, nil
}
