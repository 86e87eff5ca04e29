package page

import (
	"github.com/changespage/changespage/internal/page/service"
	"go.uber.org/fx"
)

var Module = fx.Module("page.service",
	fx.Provide(service.NewService),
)
