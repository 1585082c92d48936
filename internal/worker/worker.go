package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/squll/internal/domain"
	"github.com/shaiso/squll/internal/queue"
	"github.com/shaiso/squll/internal/telemetry"
)

// Default configuration values.
const (
	defaultBackoffBase = 5 * time.Second
	defaultBackoffStep = 5 * time.Second
	defaultBackoffMax  = 60 * time.Second
)

// allStates — для метрики состояния.
var allStates = []string{
	string(domain.WorkerStateIdle),
	string(domain.WorkerStateFetching),
	string(domain.WorkerStateExecuting),
	string(domain.WorkerStateSubmitting),
	string(domain.WorkerStateTerminated),
}

// Source — откуда воркер берёт task и куда сдаёт результаты.
//
// Реализации: queue.Client (сервис очереди) и queue.FileSource (пакетный файл).
type Source interface {
	GetWork(ctx context.Context) (*domain.Task, error)
	PutWork(ctx context.Context, task *domain.Task, results domain.ResultSet) error
}

// ResultPublisher дублирует сданные результаты во внешнюю шину (best effort).
type ResultPublisher interface {
	PublishResult(ctx context.Context, task *domain.Task, results domain.ResultSet) error
}

// Worker — цикл получения, выполнения и сдачи task.
//
// Worker однопоточный: в каждый момент обрабатывается не больше одного task,
// единственное ожидание — пауза backoff между пустыми опросами.
type Worker struct {
	id         string
	source     Source
	controller *Controller
	publisher  ResultPublisher

	daemon  bool
	backoff *Backoff
	bailout *Bailout
	sleep   func(ctx context.Context, d time.Duration) error

	mu        sync.RWMutex
	state     domain.WorkerState
	processed int

	logger *slog.Logger
}

// Config — конфигурация Worker.
type Config struct {
	// ID — идентификатор экземпляра для логов (default: uuid).
	ID string

	Source     Source
	Controller *Controller

	// Publisher (опционально).
	Publisher ResultPublisher

	// Daemon — не завершаться, когда работа кончилась.
	Daemon bool

	// Bailout — допустимое число ошибок; <= 0 — без ограничения.
	Bailout int

	// Backoff — линейная задержка пустых опросов (default: 5s, +5s, до 60s).
	BackoffBase time.Duration
	BackoffStep time.Duration
	BackoffMax  time.Duration

	// Sleep (опционально; для тестов). По умолчанию ждёт d или отмены ctx.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

// New создаёт Worker.
func New(cfg Config) *Worker {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = telemetry.WithWorkerID(logger, id)

	base := cfg.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}
	step := cfg.BackoffStep
	if step < 0 {
		step = 0
	} else if step == 0 {
		step = defaultBackoffStep
	}
	maxDelay := cfg.BackoffMax
	if maxDelay <= 0 {
		maxDelay = defaultBackoffMax
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	controller := cfg.Controller
	if controller == nil {
		controller = NewController(ControllerConfig{Logger: logger})
	}

	return &Worker{
		id:         id,
		source:     cfg.Source,
		controller: controller,
		publisher:  cfg.Publisher,
		daemon:     cfg.Daemon,
		backoff:    NewBackoff(base, step, maxDelay),
		bailout:    NewBailout(cfg.Bailout),
		sleep:      sleep,
		state:      domain.WorkerStateIdle,
		logger:     logger,
	}
}

// ID возвращает идентификатор экземпляра.
func (w *Worker) ID() string {
	return w.id
}

// State возвращает текущее состояние цикла.
func (w *Worker) State() domain.WorkerState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Processed возвращает количество обработанных task.
func (w *Worker) Processed() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.processed
}

// Run крутит цикл до конца работы, исчерпания bailout или отмены ctx.
//
// Возвращает nil при штатном завершении (работа кончилась вне daemon-режима
// или ctx отменён) и ErrBailout, если сработал предохранитель.
func (w *Worker) Run(ctx context.Context) error {
	if w.source == nil {
		return ErrNoSource
	}
	defer w.controller.Close()
	defer w.setState(domain.WorkerStateTerminated)

	w.logger.Info("worker started",
		"daemon", w.daemon,
		"bailout", w.bailout.Remaining(),
	)
	telemetry.BailoutRemaining.Set(float64(w.bailout.Remaining()))

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped", "processed", w.Processed())
			return nil
		}

		w.setState(domain.WorkerStateFetching)
		task, err := w.source.GetWork(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			done, err := w.handleFetchError(ctx, err)
			if done || err != nil {
				return err
			}
			continue
		}

		w.backoff.Reset()
		telemetry.BackoffSeconds.Set(w.backoff.Current().Seconds())

		if err := w.handleTask(ctx, task); err != nil {
			return err
		}
	}
}

// handleFetchError решает, что делать после неудачного get_work.
// done — штатное завершение цикла.
func (w *Worker) handleFetchError(ctx context.Context, fetchErr error) (done bool, err error) {
	switch {
	case errors.Is(fetchErr, queue.ErrNoWork):
		if !w.daemon {
			w.logger.Info("Finished all the work", "processed", w.Processed())
			return true, nil
		}
		w.logger.Debug("no work available")

	case errors.Is(fetchErr, queue.ErrTransport):
		w.logger.Warn("queue unreachable", "error", fetchErr)
		if !w.daemon {
			if w.recordErrors(1) {
				return true, ErrBailout
			}
		}

	case errors.Is(fetchErr, queue.ErrProtocol):
		// Неразобранный ответ не task-ошибка: цикл продолжается без учёта в bailout
		w.logger.Warn("malformed get_work response", "error", fetchErr)

	default:
		w.logger.Error("get_work failed", "error", fetchErr)
		if w.recordErrors(1) {
			return true, ErrBailout
		}
	}

	w.idle(ctx)
	return false, nil
}

// handleTask выполняет task и сдаёт результат.
func (w *Worker) handleTask(ctx context.Context, task *domain.Task) error {
	w.setState(domain.WorkerStateExecuting)

	results, err := w.controller.Process(ctx, task)
	if err != nil && ctx.Err() != nil {
		// Остановка посреди task: неполный результат не сдаём
		w.logger.Warn("task interrupted", "task", task.Label())
		return nil
	}

	w.setState(domain.WorkerStateSubmitting)
	if err := w.source.PutWork(ctx, task, results); err != nil {
		w.logger.Error("put_work failed, result lost", "task", task.Label(), "error", err)
		if !w.daemon {
			w.recordErrors(1)
		}
	} else if w.publisher != nil {
		if err := w.publisher.PublishResult(ctx, task, results); err != nil {
			w.logger.Warn("failed to publish result", "task", task.Label(), "error", err)
		}
	}

	w.mu.Lock()
	w.processed++
	w.mu.Unlock()

	if w.recordErrors(results.ErrorCount()) {
		return ErrBailout
	}

	w.setState(domain.WorkerStateIdle)
	return nil
}

// recordErrors уменьшает счётчик bailout и сообщает, пора ли остановиться.
func (w *Worker) recordErrors(n int) bool {
	w.bailout.Record(n)
	telemetry.BailoutRemaining.Set(float64(w.bailout.Remaining()))

	if w.bailout.Exhausted() {
		w.logger.Error("bailout limit reached, worker terminates", "processed", w.Processed())
		return true
	}
	return false
}

// idle ждёт очередной интервал backoff.
func (w *Worker) idle(ctx context.Context) {
	w.setState(domain.WorkerStateIdle)

	delay := w.backoff.Next()
	telemetry.BackoffSeconds.Set(delay.Seconds())
	w.logger.Debug("backing off", "delay", delay)

	_ = w.sleep(ctx, delay)
}

func (w *Worker) setState(s domain.WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	telemetry.SetWorkerState(string(s), allStates)
}

// sleepContext ждёт d или отмены ctx.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
