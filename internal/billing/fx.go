package billing

import (
	billingdomain "github.com/changespage/changespage/internal/billing/domain"
	"github.com/changespage/changespage/internal/billing/service"
	stripegateway "github.com/changespage/changespage/internal/billing/stripe"
	"github.com/changespage/changespage/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(ProvideGateway),
	fx.Provide(service.NewService),
)

// ProvideGateway returns nil when no Stripe key is configured; usage
// reporting then degrades to a logged no-op.
func ProvideGateway(cfg config.Config) billingdomain.Gateway {
	if cfg.StripeSecretKey == "" {
		return nil
	}
	return stripegateway.New(cfg.StripeSecretKey)
}
