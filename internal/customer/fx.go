package customer

import (
	"github.com/werkbank/fakturo/internal/customer/repository"
	"github.com/werkbank/fakturo/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
