package jobs

import (
	"context"

	"github.com/changespage/changespage/internal/jobs/handlers"
	"github.com/changespage/changespage/internal/jobs/queue"
	"github.com/changespage/changespage/internal/jobs/worker"
	"go.uber.org/fx"
)

var Module = fx.Module("jobs",
	fx.Provide(
		queue.New,
		worker.New,
		handlers.New,
	),
	fx.Invoke(StartWorker),
)

func StartWorker(lc fx.Lifecycle, w *worker.Worker) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go w.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
