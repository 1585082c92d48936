package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/shaiso/squll/internal/config"
	"github.com/shaiso/squll/internal/domain"
	"github.com/shaiso/squll/internal/driver"
	"github.com/shaiso/squll/internal/queue"
	"github.com/shaiso/squll/internal/telemetry"
	"github.com/shaiso/squll/internal/worker"
)

// App — собранные по конфигурации компоненты процесса.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Host     domain.HostInfo
	Registry *driver.Registry
}

// NewApp настраивает логирование и снимает характеристики хоста.
func NewApp(cfg config.Config) *App {
	return &App{
		Config:   cfg,
		Logger:   telemetry.SetupLogger(cfg.Debug),
		Host:     telemetry.HostSampler{}.Info(),
		Registry: driver.NewRegistry(),
	}
}

// Client — клиент сервиса очереди.
func (a *App) Client() *queue.Client {
	return queue.NewClient(queue.Config{
		Server:        a.Config.Server,
		Identity:      a.Config.Identity(),
		Host:          a.Host,
		SubmitRetries: a.Config.SubmitRetries,
		Logger:        a.Logger,
	})
}

// Source — сервис очереди или пакетный файл, если задан input.
// Закрывающая функция освобождает файл результатов.
func (a *App) Source() (worker.Source, func(), error) {
	if a.Config.Input == "" {
		return a.Client(), func() {}, nil
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if a.Config.Output != "" {
		f, err := os.Create(a.Config.Output)
		if err != nil {
			return nil, nil, fmt.Errorf("open output: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}

	src, err := queue.NewFileSource(a.Config.Input, out, a.Config.Identity(), a.Host)
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	a.Logger.Info("batch input", "file", a.Config.Input, "tasks", src.Len())
	return src, closeFn, nil
}

// Controller — обработчик task по конфигурации.
func (a *App) Controller() *worker.Controller {
	return worker.NewController(worker.ControllerConfig{
		Registry:       a.Registry,
		Targets:        a.Config,
		Pool:           driver.NewPool(a.Logger),
		Mode:           a.Config.Substitution,
		KeepConnection: a.Config.KeepConnection,
		AbortOnError:   a.Config.AbortOnError,
		Logger:         a.Logger,
	})
}
