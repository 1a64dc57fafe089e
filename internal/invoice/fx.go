package invoice

import (
	"github.com/smallbiznis/invoicepay/internal/invoice/repository"
	"github.com/smallbiznis/invoicepay/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
