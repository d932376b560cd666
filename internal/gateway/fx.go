package gateway

import (
	"github.com/smallbiznis/rebill/internal/config"
	"github.com/smallbiznis/rebill/internal/gateway/adapters"
	"github.com/smallbiznis/rebill/internal/gateway/adapters/sandbox"
	"github.com/smallbiznis/rebill/internal/gateway/domain"
	"go.uber.org/fx"
)

func NewRegistry() *adapters.Registry {
	return adapters.NewRegistry(
		sandbox.NewFactory(),
	)
}

// NewGateway builds the adapter named by the billing policy.
func NewGateway(registry *adapters.Registry, billing *config.BillingConfigHolder) (domain.Gateway, error) {
	return registry.NewGateway(billing.Get().GatewayProvider, domain.AdapterConfig{TestMode: true})
}

var Module = fx.Module("gateway",
	fx.Provide(NewRegistry),
	fx.Provide(NewGateway),
)
