package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// errNoTiming — в выводе утилиты нет отчёта о времени.
var errNoTiming = errors.New("no timing report in output")

// cliConfig — описание вызова клиентской утилиты.
type cliConfig struct {
	Backend string

	// Command — шаблон командной строки. Разбивается на argv один раз (shell-quoting),
	// затем в каждом аргументе подставляются {db}, {query}, {host}, {port}, {user},
	// {password}, {dbfarm}, {uri}, {jars}, {driver}, {properties}.
	Command string

	Target Target

	// Stdin — если задана, запрос передаётся на stdin в виде Stdin(query).
	Stdin func(query string) string

	// Parse извлекает время из вывода; wall — время процесса в целых мс.
	// nil — замер по wall clock.
	Parse func(out []byte, wall float64) (Measurement, error)

	// Vars — дополнительные подстановки (например, {driver} у JDBC-профилей).
	Vars map[string]string
}

// cliSession выполняет каждый запрос отдельным процессом.
type cliSession struct {
	cfg  cliConfig
	argv []string
}

// openCLI — newCLISession для Driver.Open.
func openCLI(cfg cliConfig) (Session, error) {
	s, err := newCLISession(cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func newCLISession(cfg cliConfig) (*cliSession, error) {
	argv, err := shellquote.Split(cfg.Command)
	if err != nil {
		return nil, connectionError(cfg.Backend, fmt.Errorf("invalid command %q: %w", cfg.Command, err))
	}
	if len(argv) == 0 {
		return nil, connectionError(cfg.Backend, fmt.Errorf("empty command"))
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, connectionError(cfg.Backend, err)
	}
	return &cliSession{cfg: cfg, argv: argv}, nil
}

// Args возвращает argv для запроса.
func (s *cliSession) Args(query string) []string {
	r := s.replacer(query)
	args := make([]string, len(s.argv))
	for i, a := range s.argv {
		args[i] = r.Replace(a)
	}
	return args
}

func (s *cliSession) replacer(query string) *strings.Replacer {
	t := s.cfg.Target
	port := ""
	if t.Port != 0 {
		port = strconv.Itoa(t.Port)
	}
	pairs := []string{
		"{query}", query,
		"{db}", t.DB,
		"{database}", t.DB,
		"{host}", t.Host,
		"{port}", port,
		"{user}", t.User,
		"{password}", t.Password,
		"{dbfarm}", t.DBFarm,
		"{uri}", t.URI,
		"{jars}", strings.Join(t.Jars, ":"),
	}
	for k, v := range s.cfg.Vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...)
}

func (s *cliSession) Execute(ctx context.Context, query string) (Measurement, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Target.Timeout)
	defer cancel()

	args := s.Args(query)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if s.cfg.Stdin != nil {
		cmd.Stdin = strings.NewReader(s.cfg.Stdin(query))
	}

	start := time.Now()
	out, err := cmd.CombinedOutput()
	wall := elapsedMillis(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Measurement{}, &BackendError{
			Kind:    ErrTimeout,
			Backend: s.cfg.Backend,
			Message: fmt.Sprintf("timeout after %s", s.cfg.Target.Timeout),
			Err:     ctx.Err(),
		}
	}
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			msg = err.Error()
		}
		return Measurement{}, &BackendError{Kind: ErrExecution, Backend: s.cfg.Backend, Message: msg, Err: err}
	}

	if s.cfg.Parse == nil {
		return Measurement{Elapsed: wall, Fingerprint: ""}, nil
	}

	m, err := s.cfg.Parse(out, wall)
	if err != nil {
		var be *BackendError
		if errors.As(err, &be) {
			be.Backend = s.cfg.Backend
			return Measurement{}, be
		}
		return Measurement{}, &BackendError{
			Kind:    ErrProtocol,
			Backend: s.cfg.Backend,
			Message: string(bytes.TrimSpace(out)),
			Err:     err,
		}
	}
	return m, nil
}

func (s *cliSession) Close() error { return nil }

func commandOr(command, fallback string) string {
	if strings.TrimSpace(command) != "" {
		return command
	}
	return fallback
}
