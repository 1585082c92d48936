package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/squll/internal/domain"
	"github.com/shaiso/squll/internal/driver"
	"github.com/shaiso/squll/internal/engine"
	"github.com/shaiso/squll/internal/telemetry"
)

// clockLayout — формат поля clock в RunRecord.
const clockLayout = "2006-01-02 15:04:05"

// LoadSampler снимает среднюю загрузку хоста.
type LoadSampler interface {
	Load() domain.LoadSample
}

// Runner — исполнитель серии запусков одного конкретного запроса.
type Runner struct {
	sampler LoadSampler
	now     func() time.Time
	logger  *slog.Logger
}

// RunnerConfig — конфигурация Runner.
type RunnerConfig struct {
	// Sampler (опционально; если nil — telemetry.HostSampler).
	Sampler LoadSampler

	// Now (опционально; для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// NewRunner создаёт Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	sampler := cfg.Sampler
	if sampler == nil {
		sampler = telemetry.HostSampler{}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{sampler: sampler, now: now, logger: logger}
}

// Run выполняет exp.Query runlength раз и собирает RunRecord.
//
// Первая ошибка записывается в Error и прекращает серию: запусков после неё нет.
// Загрузка хоста снимается до первого и после последнего запуска.
// Возвращаемая ошибка — та же, что в Error, с видом для решения о переподключении.
func (r *Runner) Run(ctx context.Context, session driver.Session, backend string, exp engine.Expansion, runlength int) (domain.RunRecord, error) {
	rec := domain.NewRunRecord(exp.Binding)
	rec.Clock = []string{}
	rec.Metrics.PreLoad = r.sampler.Load()

	var runErr error
	for i := 0; i < runlength; i++ {
		rec.Clock = append(rec.Clock, r.now().Format(clockLayout))

		m, err := session.Execute(ctx, exp.Query)
		if err != nil {
			runErr = err
			rec.Clock = rec.Clock[:len(rec.Clock)-1]
			rec.Error = driver.Message(err)
			telemetry.RunsTotal.WithLabelValues(backend, "error").Inc()

			r.logger.Debug("run failed",
				"binding", exp.Index,
				"run", i,
				"error", err,
			)
			break
		}

		rec.Times = append(rec.Times, m.Elapsed)
		rec.Fingerprint = append(rec.Fingerprint, fingerprint(m.Fingerprint))
		if len(m.Extra) > 0 {
			rec.Extra = append(rec.Extra, m.Extra)
		}

		telemetry.RunsTotal.WithLabelValues(backend, "ok").Inc()
		telemetry.RunDuration.WithLabelValues(backend).Observe(m.Elapsed)
	}

	rec.Metrics.PostLoad = r.sampler.Load()
	return rec, runErr
}

// fingerprint заменяет отсутствующее значение пустой строкой.
func fingerprint(v any) any {
	if v == nil {
		return ""
	}
	return v
}
