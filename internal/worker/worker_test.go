package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/squll/internal/domain"
	"github.com/shaiso/squll/internal/driver"
	"github.com/shaiso/squll/internal/engine"
	"github.com/shaiso/squll/internal/queue"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// --- fakes ---

type execFunc func(query string, call int) (driver.Measurement, error)

type fakeSession struct {
	exec   execFunc
	calls  int
	closed bool
}

func (s *fakeSession) Execute(_ context.Context, query string) (driver.Measurement, error) {
	call := s.calls
	s.calls++
	return s.exec(query, call)
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDriver struct {
	name     string
	exec     execFunc
	failOpen bool
	opened   []*fakeSession
}

func (d *fakeDriver) Name() string { return d.name }

func (d *fakeDriver) Open(context.Context, driver.Target) (driver.Session, error) {
	if d.failOpen {
		return nil, &driver.BackendError{Kind: driver.ErrConnection, Backend: d.name, Message: "connection refused"}
	}
	s := &fakeSession{exec: d.exec}
	d.opened = append(d.opened, s)
	return s, nil
}

func constant(ms float64) execFunc {
	return func(string, int) (driver.Measurement, error) {
		return driver.Measurement{Elapsed: ms, Fingerprint: int64(42)}, nil
	}
}

func execFailure(msg string) error {
	return &driver.BackendError{Kind: driver.ErrExecution, Backend: "fake", Message: msg}
}

type fixedSampler struct{}

func (fixedSampler) Load() domain.LoadSample {
	return domain.LoadSample{Load1: 0.5, Load5: 0.25, Load15: 0.125, Valid: true}
}

type fakeTargets struct {
	runlength int
}

func (t fakeTargets) Target(dbms, db string, _ int) driver.Target {
	return driver.Target{DBMS: dbms, DB: db}
}

func (t fakeTargets) DefaultRunlength(string) int {
	return t.runlength
}

var fixedNow = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func newTestRunner() *Runner {
	return NewRunner(RunnerConfig{
		Sampler: fixedSampler{},
		Now:     func() time.Time { return fixedNow },
		Logger:  discard,
	})
}

func newTestController(d *fakeDriver, cfg ControllerConfig) *Controller {
	registry := driver.NewEmptyRegistry()
	registry.Register(d)

	cfg.Registry = registry
	cfg.Runner = newTestRunner()
	cfg.Logger = discard
	if cfg.Targets == nil {
		cfg.Targets = fakeTargets{}
	}
	return NewController(cfg)
}

// step — один ответ fakeSource на GetWork.
type step struct {
	task *domain.Task
	err  error
}

type fakeSource struct {
	steps  []step
	gets   int
	puts   []domain.ResultSet
	putErr error

	// onExhausted вызывается, когда сценарий закончился.
	onExhausted func()
}

func (s *fakeSource) GetWork(context.Context) (*domain.Task, error) {
	if s.gets >= len(s.steps) {
		if s.onExhausted != nil {
			s.onExhausted()
			return nil, context.Canceled
		}
		return nil, fmt.Errorf("%w: Out of work", queue.ErrNoWork)
	}
	st := s.steps[s.gets]
	s.gets++
	return st.task, st.err
}

func (s *fakeSource) PutWork(_ context.Context, _ *domain.Task, results domain.ResultSet) error {
	s.puts = append(s.puts, results)
	return s.putErr
}

type fakePublisher struct {
	published int
}

func (p *fakePublisher) PublishResult(context.Context, *domain.Task, domain.ResultSet) error {
	p.published++
	return nil
}

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

// --- Runner ---

func TestRunner_AllRunsSucceed(t *testing.T) {
	session := &fakeSession{exec: constant(10)}

	rec, err := newTestRunner().Run(context.Background(), session, "fake", engine.Expansion{Query: "select 1"}, 3)
	require.NoError(t, err)

	assert.Equal(t, []float64{10, 10, 10}, rec.Times)
	assert.Equal(t, []any{int64(42), int64(42), int64(42)}, rec.Fingerprint)
	assert.Equal(t, "", rec.Error)
	assert.Equal(t, []string{"2024-03-01 12:30:00", "2024-03-01 12:30:00", "2024-03-01 12:30:00"}, rec.Clock)
	assert.True(t, rec.Metrics.PreLoad.Valid)
	assert.True(t, rec.Metrics.PostLoad.Valid)
	assert.Equal(t, domain.Binding{}, rec.Param)
}

func TestRunner_StopsAtFirstFailure(t *testing.T) {
	const runlength = 4

	for failAt := 0; failAt < runlength; failAt++ {
		t.Run(fmt.Sprintf("fail at %d", failAt), func(t *testing.T) {
			session := &fakeSession{exec: func(_ string, call int) (driver.Measurement, error) {
				if call == failAt {
					return driver.Measurement{}, execFailure("relation 'x' does not exist")
				}
				return driver.Measurement{Elapsed: 3}, nil
			}}

			rec, err := newTestRunner().Run(context.Background(), session, "fake", engine.Expansion{Query: "q"}, runlength)
			require.Error(t, err)

			assert.Len(t, rec.Times, failAt)
			assert.Len(t, rec.Fingerprint, failAt)
			assert.Len(t, rec.Clock, failAt)
			assert.Equal(t, "relation ''x'' does not exist", rec.Error)
			assert.Equal(t, failAt+1, session.calls)
		})
	}
}

func TestRunner_MissingFingerprintAndExtra(t *testing.T) {
	session := &fakeSession{exec: func(string, int) (driver.Measurement, error) {
		return driver.Measurement{Elapsed: 1.5, Extra: []float64{0.5, 0.25, 0.75}}, nil
	}}

	rec, err := newTestRunner().Run(context.Background(), session, "fake", engine.Expansion{Query: "q"}, 2)
	require.NoError(t, err)

	assert.Equal(t, []any{"", ""}, rec.Fingerprint)
	assert.Equal(t, [][]float64{{0.5, 0.25, 0.75}, {0.5, 0.25, 0.75}}, rec.Extra)
}

// --- Controller ---

func TestController_EmptyParams(t *testing.T) {
	c := newTestController(&fakeDriver{name: "fake", exec: constant(10)}, ControllerConfig{KeepConnection: true})

	results, err := c.Process(context.Background(), &domain.Task{DBMS: "fake", Query: "select 1", Runlength: 3})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, []float64{10, 10, 10}, results[0].Times)
	assert.Equal(t, "", results[0].Error)
}

func TestController_BindingFailure(t *testing.T) {
	d := &fakeDriver{name: "fake", exec: func(query string, _ int) (driver.Measurement, error) {
		if query == "select 2" {
			return driver.Measurement{}, execFailure("syntax error")
		}
		return driver.Measurement{Elapsed: 5}, nil
	}}
	c := newTestController(d, ControllerConfig{KeepConnection: true})

	task := &domain.Task{
		DBMS:      "fake",
		Query:     "select X",
		Params:    domain.Params{{Name: "X", Values: []any{1, 2}}},
		Runlength: 1,
	}

	results, err := c.Process(context.Background(), task)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, []float64{5}, results[0].Times)
	assert.Equal(t, "", results[0].Error)
	assert.Equal(t, domain.Binding{{Name: "X", Value: 1}}, results[0].Param)

	assert.Empty(t, results[1].Times)
	assert.Equal(t, "syntax error", results[1].Error)
	assert.Equal(t, domain.Binding{{Name: "X", Value: 2}}, results[1].Param)
}

func TestController_RecordCountIsProduct(t *testing.T) {
	c := newTestController(&fakeDriver{name: "fake", exec: constant(1)}, ControllerConfig{KeepConnection: true})

	task := &domain.Task{
		DBMS:  "fake",
		Query: "select A, B, C",
		Params: domain.Params{
			{Name: "A", Values: []any{1, 2}},
			{Name: "B", Values: []any{"x", "y", "z"}},
			{Name: "C", Values: []any{true, false}},
		},
	}

	results, err := c.Process(context.Background(), task)
	require.NoError(t, err)
	assert.Len(t, results, 12)
}

func TestController_PlaceholderTemplateWithoutTokens(t *testing.T) {
	d := &fakeDriver{name: "fake", exec: constant(1)}
	c := newTestController(d, ControllerConfig{Mode: engine.ModePlaceholder, KeepConnection: true})

	results, err := c.Process(context.Background(), &domain.Task{
		DBMS:   "fake",
		Query:  "select X",
		Params: domain.Params{{Name: "X", Values: []any{1, 2}}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, driver.ErrProtocol))
	assert.True(t, errors.Is(err, engine.ErrNoPlaceholders))

	require.Len(t, results, 1)
	assert.Empty(t, results[0].Times)
	assert.NotEmpty(t, results[0].Error)
	assert.Empty(t, d.opened, "template is rejected before connecting")
}

func TestController_AbortOnError(t *testing.T) {
	failFirst := func(query string, _ int) (driver.Measurement, error) {
		if query == "select 1" {
			return driver.Measurement{}, execFailure("boom")
		}
		return driver.Measurement{Elapsed: 1}, nil
	}
	task := func() *domain.Task {
		return &domain.Task{
			DBMS:   "fake",
			Query:  "select X",
			Params: domain.Params{{Name: "X", Values: []any{1, 2, 3}}},
		}
	}

	cont := newTestController(&fakeDriver{name: "fake", exec: failFirst}, ControllerConfig{KeepConnection: true})
	results, err := cont.Process(context.Background(), task())
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, 1, results.ErrorCount())

	abort := newTestController(&fakeDriver{name: "fake", exec: failFirst}, ControllerConfig{KeepConnection: true, AbortOnError: true})
	results, err = abort.Process(context.Background(), task())
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestController_UnsupportedBackend(t *testing.T) {
	c := newTestController(&fakeDriver{name: "fake", exec: constant(1)}, ControllerConfig{})

	results, err := c.Process(context.Background(), &domain.Task{DBMS: "oracle", Query: "select 1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, driver.ErrUnsupportedBackend))

	require.Len(t, results, 1)
	assert.Empty(t, results[0].Times)
	assert.Contains(t, results[0].Error, "oracle")
}

func TestController_ConnectionFailure(t *testing.T) {
	c := newTestController(&fakeDriver{name: "fake", failOpen: true}, ControllerConfig{})

	results, err := c.Process(context.Background(), &domain.Task{
		DBMS:   "fake",
		Query:  "select X",
		Params: domain.Params{{Name: "X", Values: []any{1, 2}}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, driver.ErrConnection))

	require.Len(t, results, 1)
	assert.Empty(t, results[0].Times)
	assert.Equal(t, "connection refused", results[0].Error)
}

func TestController_ConnectionLost(t *testing.T) {
	d := &fakeDriver{name: "fake", exec: func(string, int) (driver.Measurement, error) {
		return driver.Measurement{}, &driver.BackendError{Kind: driver.ErrConnection, Message: "server closed the connection"}
	}}
	c := newTestController(d, ControllerConfig{KeepConnection: true})

	results, err := c.Process(context.Background(), &domain.Task{
		DBMS:   "fake",
		Query:  "select X",
		Params: domain.Params{{Name: "X", Values: []any{1, 2, 3}}},
	})
	require.NoError(t, err)

	assert.Len(t, results, 1)
	require.Len(t, d.opened, 1)
	assert.True(t, d.opened[0].closed)
}

func TestController_SessionLifecycle(t *testing.T) {
	ctx := context.Background()

	keep := &fakeDriver{name: "fake", exec: constant(1)}
	c := newTestController(keep, ControllerConfig{KeepConnection: true})
	for i := 0; i < 3; i++ {
		_, err := c.Process(ctx, &domain.Task{DBMS: "fake", DB: "tpch", Query: "select 1"})
		require.NoError(t, err)
	}
	require.Len(t, keep.opened, 1)
	assert.False(t, keep.opened[0].closed)

	c.Close()
	assert.True(t, keep.opened[0].closed)

	drop := &fakeDriver{name: "fake", exec: constant(1)}
	c = newTestController(drop, ControllerConfig{KeepConnection: false})
	for i := 0; i < 2; i++ {
		_, err := c.Process(ctx, &domain.Task{DBMS: "fake", DB: "tpch", Query: "select 1"})
		require.NoError(t, err)
	}
	require.Len(t, drop.opened, 2)
	assert.True(t, drop.opened[0].closed)
	assert.True(t, drop.opened[1].closed)
}

func TestController_RunlengthFallback(t *testing.T) {
	c := newTestController(&fakeDriver{name: "fake", exec: constant(1)}, ControllerConfig{
		KeepConnection: true,
		Targets:        fakeTargets{runlength: 2},
	})

	results, err := c.Process(context.Background(), &domain.Task{DBMS: "fake", Query: "select 1"})
	require.NoError(t, err)
	assert.Len(t, results[0].Times, 2)

	results, err = c.Process(context.Background(), &domain.Task{DBMS: "fake", Query: "select 1", Options: `{"runlength": 4}`})
	require.NoError(t, err)
	assert.Len(t, results[0].Times, 4)
}

// --- Backoff & Bailout ---

func TestBackoff(t *testing.T) {
	b := NewBackoff(5*time.Second, 5*time.Second, 20*time.Second)

	var got []time.Duration
	for i := 0; i < 6; i++ {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		5 * time.Second, 10 * time.Second, 15 * time.Second,
		20 * time.Second, 20 * time.Second, 20 * time.Second,
	}, got)

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i], got[i-1])
	}

	b.Reset()
	assert.Equal(t, 5*time.Second, b.Next())
}

func TestBailout(t *testing.T) {
	b := NewBailout(3)
	assert.True(t, b.Enabled())

	b.Record(1)
	assert.Equal(t, 2, b.Remaining())
	assert.False(t, b.Exhausted())

	b.Record(0)
	assert.Equal(t, 2, b.Remaining())

	b.Record(1)
	assert.False(t, b.Exhausted())
	b.Record(1)
	assert.True(t, b.Exhausted())
	assert.Equal(t, 0, b.Remaining())

	off := NewBailout(0)
	off.Record(100)
	assert.False(t, off.Exhausted())
	assert.Equal(t, -1, off.Remaining())
}

// --- Worker ---

func newTestWorker(src Source, d *fakeDriver, cfg Config) (*Worker, *sleepRecorder) {
	rec := &sleepRecorder{}
	cfg.Source = src
	cfg.Controller = newTestController(d, ControllerConfig{KeepConnection: true})
	cfg.Sleep = rec.sleep
	cfg.Logger = discard
	return New(cfg), rec
}

func transportFailure() error {
	return fmt.Errorf("%w: connection refused", queue.ErrTransport)
}

func TestWorker_TransportFailuresBailOut(t *testing.T) {
	steps := make([]step, 10)
	for i := range steps {
		steps[i] = step{err: transportFailure()}
	}
	src := &fakeSource{steps: steps}

	w, sleeps := newTestWorker(src, &fakeDriver{name: "fake", exec: constant(1)}, Config{Bailout: 5})

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBailout))

	assert.Equal(t, 5, src.gets)
	assert.Empty(t, src.puts)
	assert.Len(t, sleeps.delays, 4)
	assert.Equal(t, domain.WorkerStateTerminated, w.State())
}

func TestWorker_FinishesWhenOutOfWork(t *testing.T) {
	src := &fakeSource{steps: []step{
		{task: &domain.Task{Exp: 1, DBMS: "fake", Query: "select 1"}},
		{task: &domain.Task{Exp: 2, DBMS: "fake", Query: "select 2"}},
	}}
	pub := &fakePublisher{}

	w, sleeps := newTestWorker(src, &fakeDriver{name: "fake", exec: constant(1)}, Config{Bailout: 5, Publisher: pub})

	require.NoError(t, w.Run(context.Background()))
	assert.Len(t, src.puts, 2)
	assert.Equal(t, 2, pub.published)
	assert.Equal(t, 2, w.Processed())
	assert.Empty(t, sleeps.delays)
	assert.Equal(t, domain.WorkerStateTerminated, w.State())
}

func TestWorker_DaemonBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	noWork := fmt.Errorf("%w: Out of work", queue.ErrNoWork)
	src := &fakeSource{
		steps: []step{
			{err: noWork},
			{err: noWork},
			{err: noWork},
			{task: &domain.Task{DBMS: "fake", Query: "select 1"}},
			{err: noWork},
		},
		onExhausted: cancel,
	}

	w, sleeps := newTestWorker(src, &fakeDriver{name: "fake", exec: constant(1)}, Config{
		Daemon:      true,
		Bailout:     1,
		BackoffBase: 5 * time.Second,
		BackoffStep: 5 * time.Second,
		BackoffMax:  60 * time.Second,
	})

	require.NoError(t, w.Run(ctx))
	assert.Equal(t, []time.Duration{
		5 * time.Second, 10 * time.Second, 15 * time.Second, 5 * time.Second,
	}, sleeps.delays)
	assert.Len(t, src.puts, 1)
}

func TestWorker_DaemonIgnoresTransportForBailout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{
		steps:       []step{{err: transportFailure()}, {err: transportFailure()}, {err: transportFailure()}},
		onExhausted: cancel,
	}

	w, sleeps := newTestWorker(src, &fakeDriver{name: "fake", exec: constant(1)}, Config{Daemon: true, Bailout: 1})

	require.NoError(t, w.Run(ctx))
	assert.Len(t, sleeps.delays, 3)
}

func TestWorker_ProtocolErrorsDoNotCountTowardBailout(t *testing.T) {
	protocolErr := fmt.Errorf("%w: task without dbms or query", queue.ErrProtocol)

	for _, daemon := range []bool{false, true} {
		ctx, cancel := context.WithCancel(context.Background())

		src := &fakeSource{
			steps: []step{
				{err: protocolErr},
				{err: protocolErr},
				{err: protocolErr},
				{task: &domain.Task{DBMS: "fake", Query: "select 1"}},
			},
		}
		if daemon {
			src.onExhausted = cancel
		}

		w, sleeps := newTestWorker(src, &fakeDriver{name: "fake", exec: constant(1)}, Config{Daemon: daemon, Bailout: 1})

		require.NoError(t, w.Run(ctx), "daemon=%v", daemon)
		assert.Len(t, src.puts, 1, "daemon=%v", daemon)
		assert.Len(t, sleeps.delays, 3, "daemon=%v", daemon)
		cancel()
	}
}

func TestWorker_ServerErrorsCountInDaemon(t *testing.T) {
	serverErr := fmt.Errorf("%w: Database locked", queue.ErrServer)
	src := &fakeSource{steps: []step{{err: serverErr}, {err: serverErr}, {err: serverErr}}}

	w, _ := newTestWorker(src, &fakeDriver{name: "fake", exec: constant(1)}, Config{Daemon: true, Bailout: 2})

	err := w.Run(context.Background())
	assert.True(t, errors.Is(err, ErrBailout))
	assert.Equal(t, 2, src.gets)
}

func TestWorker_ResultErrorsBailOutAfterSubmit(t *testing.T) {
	src := &fakeSource{steps: []step{
		{task: &domain.Task{DBMS: "oracle", Query: "select 1"}},
		{task: &domain.Task{DBMS: "oracle", Query: "select 1"}},
		{task: &domain.Task{DBMS: "oracle", Query: "select 1"}},
	}}

	w, _ := newTestWorker(src, &fakeDriver{name: "fake", exec: constant(1)}, Config{Bailout: 2})

	err := w.Run(context.Background())
	assert.True(t, errors.Is(err, ErrBailout))

	// Результат, исчерпавший счётчик, всё равно сдан
	require.Len(t, src.puts, 2)
	assert.Contains(t, src.puts[1][0].Error, "oracle")
}

func TestWorker_PutFailureCountsOutsideDaemon(t *testing.T) {
	src := &fakeSource{
		steps:  []step{{task: &domain.Task{DBMS: "fake", Query: "select 1"}}},
		putErr: fmt.Errorf("%w: put_work: HTTP 503", queue.ErrTransport),
	}

	w, _ := newTestWorker(src, &fakeDriver{name: "fake", exec: constant(1)}, Config{Bailout: 1})

	err := w.Run(context.Background())
	assert.True(t, errors.Is(err, ErrBailout))
	assert.Len(t, src.puts, 1)
}

func TestWorker_NoSource(t *testing.T) {
	w := New(Config{Logger: discard})
	assert.True(t, errors.Is(w.Run(context.Background()), ErrNoSource))
	assert.NotEmpty(t, w.ID())
}
