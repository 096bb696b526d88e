package plan

import (
	"github.com/smallbiznis/licensor/internal/plan/catalog"
	"github.com/smallbiznis/licensor/internal/plan/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.catalog",
	fx.Provide(
		catalog.New,
		func(h *catalog.Holder) domain.Catalog { return h },
	),
)
