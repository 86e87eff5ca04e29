package post

import (
	"github.com/changespage/changespage/internal/post/service"
	"go.uber.org/fx"
)

var Module = fx.Module("post.service",
	fx.Provide(service.NewService),
)
