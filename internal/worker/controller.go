package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/squll/internal/domain"
	"github.com/shaiso/squll/internal/driver"
	"github.com/shaiso/squll/internal/engine"
	"github.com/shaiso/squll/internal/telemetry"
)

// Targets — откуда Controller берёт параметры подключения и runlength по умолчанию.
// Реализуется config.Config.
type Targets interface {
	Target(dbms, db string, taskTimeout int) driver.Target
	DefaultRunlength(dbms string) int
}

// Controller обрабатывает один task: адаптер, сессия, развёртка параметров, запуски.
type Controller struct {
	registry *driver.Registry
	targets  Targets
	pool     *driver.Pool
	runner   *Runner
	mode     engine.Mode

	keepConnection bool
	abortOnError   bool

	logger *slog.Logger
}

// ControllerConfig — конфигурация Controller.
type ControllerConfig struct {
	// Registry (опционально; если nil — driver.NewRegistry()).
	Registry *driver.Registry

	Targets Targets

	// Pool (опционально; если nil — создаётся новый).
	Pool *driver.Pool

	// Runner (опционально; если nil — NewRunner с HostSampler).
	Runner *Runner

	// Mode — режим подстановки параметров (default: literal).
	Mode engine.Mode

	// KeepConnection — держать сессию открытой между task.
	KeepConnection bool

	// AbortOnError — прекращать task после первой привязки с ошибкой.
	AbortOnError bool

	Logger *slog.Logger
}

// NewController создаёт Controller.
func NewController(cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = driver.NewRegistry()
	}

	pool := cfg.Pool
	if pool == nil {
		pool = driver.NewPool(logger)
	}

	runner := cfg.Runner
	if runner == nil {
		runner = NewRunner(RunnerConfig{Logger: logger})
	}

	mode := cfg.Mode
	if mode == "" {
		mode = engine.ModeLiteral
	}

	return &Controller{
		registry:       registry,
		targets:        cfg.Targets,
		pool:           pool,
		runner:         runner,
		mode:           mode,
		keepConnection: cfg.KeepConnection,
		abortOnError:   cfg.AbortOnError,
		logger:         logger,
	}
}

// Process выполняет task и возвращает Result Set.
//
// Result Set не бывает пустым: ошибки уровня task (неизвестный бэкенд,
// отказ подключения, битый шаблон) дают одну синтетическую запись с error.
// Ненулевая ошибка означает такой отказ или отмену ctx.
func (c *Controller) Process(ctx context.Context, task *domain.Task) (domain.ResultSet, error) {
	logger := telemetry.WithDBMS(telemetry.WithTaskID(c.logger, task.Label()), task.DBMS, task.DB)

	results, err := c.process(ctx, task, logger)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "failed"
	case results.ErrorCount() > 0:
		outcome = "partial"
	}
	telemetry.TasksTotal.WithLabelValues(task.DBMS, outcome).Inc()

	return results, err
}

func (c *Controller) process(ctx context.Context, task *domain.Task, logger *slog.Logger) (domain.ResultSet, error) {
	if task.DBMS == "" || task.Query == "" {
		err := fmt.Errorf("%w: dbms and query are required", ErrInvalidTask)
		return domain.FailedResultSet(err.Error()), err
	}

	d, err := c.registry.Get(task.DBMS)
	if err != nil {
		logger.Error("undefined platform", "error", err)
		return domain.FailedResultSet(driver.Message(err)), err
	}

	expander, err := engine.NewExpander(task.Query, task.Params, c.mode)
	if err != nil {
		err = fmt.Errorf("%w: %w", driver.ErrProtocol, err)
		logger.Error("cannot expand query template", "error", err)
		return domain.FailedResultSet(driver.Message(err)), err
	}

	var targets Targets = c.targets
	if targets == nil {
		targets = noTargets{}
	}
	target := targets.Target(task.DBMS, task.DB, int(task.Timeout))
	runlength := task.ResolveRunlength(targets.DefaultRunlength(task.DBMS))

	session, err := c.pool.Acquire(ctx, d, target)
	if err != nil {
		logger.Error("cannot connect", "error", err)
		return domain.FailedResultSet(driver.Message(err)), err
	}
	if !c.keepConnection {
		defer c.pool.Release()
	}

	logger.Info("task started",
		"bindings", expander.Len(),
		"runlength", runlength,
	)

	results := make(domain.ResultSet, 0, expander.Len())
	for {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		exp, ok := expander.Next()
		if !ok {
			break
		}

		rec, runErr := c.runner.Run(ctx, session, d.Name(), exp, runlength)
		results = append(results, rec)

		if runErr == nil {
			continue
		}

		if errors.Is(ctx.Err(), context.Canceled) {
			return results, ctx.Err()
		}

		logger.Warn("binding failed", "binding", exp.Index, "error", rec.Error)

		if driver.IsConnectionError(runErr) {
			// Сессия потеряна: остальные привязки на ней не выполнить
			c.pool.Release()
			logger.Warn("connection lost, task stopped", "completed", len(results))
			break
		}
		if c.abortOnError {
			break
		}
	}

	logger.Info("task finished",
		"records", len(results),
		"errors", results.ErrorCount(),
	)
	return results, nil
}

// Close закрывает открытую сессию при остановке воркера.
func (c *Controller) Close() {
	c.pool.Close()
}

// noTargets — подключение только по полям task.
type noTargets struct{}

func (noTargets) Target(dbms, db string, taskTimeout int) driver.Target {
	return driver.Target{DBMS: dbms, DB: db, Timeout: time.Duration(taskTimeout) * time.Second}
}

func (noTargets) DefaultRunlength(string) int {
	return 0
}
