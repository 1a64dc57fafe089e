package payment

import (
	"github.com/smallbiznis/invoicepay/internal/config"
	obsmetrics "github.com/smallbiznis/invoicepay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/invoicepay/internal/payment/domain"
	"github.com/smallbiznis/invoicepay/internal/payment/paystack"
	"github.com/smallbiznis/invoicepay/internal/payment/reference"
	"github.com/smallbiznis/invoicepay/internal/payment/repository"
	paymentservice "github.com/smallbiznis/invoicepay/internal/payment/service"
	"github.com/smallbiznis/invoicepay/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type gatewayParams struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

func provideGateway(p gatewayParams) paymentdomain.Gateway {
	return paystack.NewClient(paystack.Config{
		SecretKey: p.Cfg.Paystack.SecretKey,
		BaseURL:   p.Cfg.Paystack.BaseURL,
		Timeout:   p.Cfg.Paystack.Timeout,
	}, p.Log, p.ObsMetrics)
}

func provideVerifier(cfg config.Config) *webhook.Verifier {
	return webhook.NewVerifier(cfg.Paystack.WebhookSecret)
}

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(provideGateway),
	fx.Provide(provideVerifier),
	fx.Provide(reference.NewGenerator),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
