package subscription

import (
	"github.com/smallbiznis/licensor/internal/subscription/repository"
	"github.com/smallbiznis/licensor/internal/subscription/service"
	"github.com/smallbiznis/licensor/internal/subscription/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(stripe.NewGateway),
	fx.Provide(stripe.NewWebhook),
	fx.Provide(service.New),
)
