package bootstrap

import (
	"context"
	"os"

	"closet_server/adapter/in/worker"
	"closet_server/config"

	"github.com/rs/zerolog"
)

// Worker runs the background maintenance side of the service. Today
// that is the color sweep; sync jobs themselves run inside the API
// process on demand.
type Worker struct {
	sweeper *worker.ColorSweepScheduler
	deps    *Dependencies
	ctx     context.Context
	cancel  context.CancelFunc
	zlog    zerolog.Logger
}

func NewWorker(cfg *config.Config, deps *Dependencies) *Worker {
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		sweeper: worker.NewColorSweepScheduler(deps.WardrobeRepo, deps.ColorTagger, zlog),
		deps:    deps,
		ctx:     ctx,
		cancel:  cancel,
		zlog:    zlog,
	}
}

// Start runs the schedulers and blocks until Stop is called.
func (w *Worker) Start() {
	w.sweeper.Start()
	w.zlog.Info().Msg("Worker started")
	<-w.ctx.Done()
}

// Stop shuts the schedulers down.
func (w *Worker) Stop() {
	w.sweeper.Stop()
	w.cancel()
}
