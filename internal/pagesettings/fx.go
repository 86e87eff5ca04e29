package pagesettings

import (
	"github.com/changespage/changespage/internal/pagesettings/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pagesettings.service",
	fx.Provide(service.NewService),
)
