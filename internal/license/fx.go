package license

import (
	"github.com/smallbiznis/licensor/internal/license/service"
	"go.uber.org/fx"
)

var Module = fx.Module("license.service",
	fx.Provide(service.New),
)
