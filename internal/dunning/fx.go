package dunning

import (
	"github.com/werkbank/fakturo/internal/dunning/repository"
	"github.com/werkbank/fakturo/internal/dunning/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dunning",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
