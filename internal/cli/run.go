package cli

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/squll/internal/config"
	"github.com/shaiso/squll/internal/mq"
	"github.com/shaiso/squll/internal/telemetry"
	"github.com/shaiso/squll/internal/worker"
)

// NewRunCmd создаёт команду run — основной цикл воркера.
func NewRunCmd(opts *Options, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch, execute and submit tasks until the work is done",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunWorker(cmd, opts, outputFn())
		},
	}
}

// RunWorker загружает конфигурацию и крутит цикл воркера до конца работы.
// Используется и корневой командой без подкоманды.
func RunWorker(cmd *cobra.Command, opts *Options, out *Output) error {
	cfg, err := opts.Load(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app := NewApp(cfg)
	workerID := uuid.NewString()

	source, closeSource, err := app.Source()
	if err != nil {
		return err
	}
	defer closeSource()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := telemetry.ServeMetrics(ctx, cfg.MetricsAddr, app.Logger); err != nil {
				app.Logger.Error("metrics server error", "error", err)
			}
		}()
	}

	var publisher worker.ResultPublisher
	if cfg.AMQPURL != "" {
		if p, closeMQ := newMirror(ctx, app, cfg, workerID); p != nil {
			defer closeMQ()
			publisher = p
		}
	}

	w := worker.New(worker.Config{
		ID:          workerID,
		Source:      source,
		Controller:  app.Controller(),
		Publisher:   publisher,
		Daemon:      cfg.Daemon,
		Bailout:     cfg.Bailout,
		BackoffBase: cfg.Backoff.Base,
		BackoffStep: cfg.Backoff.Step,
		BackoffMax:  cfg.Backoff.Max,
		Logger:      app.Logger,
	})

	err = w.Run(ctx)
	if errors.Is(err, worker.ErrBailout) {
		// Предохранитель — штатная остановка с сообщением
		out.Error(err.Error())
		return nil
	}
	if err != nil {
		return err
	}

	if ctx.Err() != nil {
		out.Success("Stopped")
		return nil
	}
	out.Success("Finished all the work")
	return nil
}

// newMirror подключает зеркало результатов. Недоступный брокер не мешает работе.
func newMirror(ctx context.Context, app *App, cfg config.Config, workerID string) (*mq.Publisher, func()) {
	conn, err := mq.NewConnection(cfg.AMQPURL, app.Logger)
	if err != nil {
		app.Logger.Warn("RabbitMQ not available, result mirror disabled", "error", err)
		return nil, nil
	}

	if err := mq.SetupTopology(ctx, conn); err != nil {
		app.Logger.Warn("failed to setup topology", "error", err)
	}
	app.Logger.Info("result mirror enabled", "topology", mq.TopologyInfo())

	return mq.NewPublisher(conn, mq.PublisherConfig{
		WorkerID: workerID,
		Identity: cfg.Identity(),
		Host:     app.Host,
		Logger:   app.Logger,
	}), func() { conn.Close() }
}
