package meter

import (
	"github.com/smallbiznis/fieldops/internal/meter/repository"
	"github.com/smallbiznis/fieldops/internal/meter/service"
	"go.uber.org/fx"
)

var Module = fx.Module("meter.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
