package site

import (
	"github.com/smallbiznis/licensor/internal/site/repository"
	"github.com/smallbiznis/licensor/internal/site/service"
	"go.uber.org/fx"
)

var Module = fx.Module("site.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
