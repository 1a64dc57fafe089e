package providers

import (
	"github.com/smallbiznis/invoicepay/internal/providers/email"
	"github.com/smallbiznis/invoicepay/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
