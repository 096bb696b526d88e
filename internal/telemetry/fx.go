package telemetry

import (
	"github.com/smallbiznis/licensor/internal/telemetry/repository"
	"github.com/smallbiznis/licensor/internal/telemetry/service"
	"go.uber.org/fx"
)

var Module = fx.Module("telemetry.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
