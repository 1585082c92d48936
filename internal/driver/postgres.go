package driver

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDriver — нативный адаптер PostgreSQL (pgx/v5, одно подключение без пула).
type PostgresDriver struct{}

func (d *PostgresDriver) Name() string { return "postgresql" }

func (d *PostgresDriver) Open(ctx context.Context, target Target) (Session, error) {
	cfg, err := postgresConfig(target)
	if err != nil {
		return nil, connectionError(d.Name(), err)
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, connectionError(d.Name(), err)
	}

	return &postgresSession{conn: conn, timeout: target.Timeout}, nil
}

func postgresConfig(target Target) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(target.DSN)
	if err != nil {
		return nil, err
	}
	// База task важнее базы из DSN: пул держит сессию по target.DB
	if target.DB != "" {
		cfg.Database = target.DB
	}
	if target.DSN != "" {
		return cfg, nil
	}

	if target.Host != "" {
		cfg.Host = target.Host
	}
	if target.Port != 0 {
		cfg.Port = uint16(target.Port)
	}
	if target.User != "" {
		cfg.User = target.User
	}
	if target.Password != "" {
		cfg.Password = target.Password
	}
	return cfg, nil
}

type postgresSession struct {
	conn    *pgx.Conn
	timeout time.Duration
}

func (s *postgresSession) Execute(ctx context.Context, query string) (Measurement, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return Measurement{}, s.classify(ctx, err)
	}

	var fingerprint any = ""
	if rows.Next() {
		values, err := rows.Values()
		if err != nil {
			rows.Close()
			return Measurement{}, s.classify(ctx, err)
		}
		if len(values) > 0 {
			fingerprint = normalizeValue(values[0])
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Measurement{}, s.classify(ctx, err)
	}

	return Measurement{Elapsed: elapsedMillis(start), Fingerprint: fingerprint}, nil
}

func (s *postgresSession) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.conn.Close(ctx)
}

func (s *postgresSession) classify(ctx context.Context, err error) error {
	return classifyPostgres(ctx, err, s.conn.IsClosed())
}

// classifyPostgres: таймаут проверяется раньше закрытого соединения,
// pgx закрывает соединение, когда срабатывает дедлайн запроса.
// Закрытую сессию контроллер освободит на следующем запросе.
func classifyPostgres(ctx context.Context, err error, closed bool) error {
	if pgconn.Timeout(err) {
		return execError(ctx, "postgresql", context.DeadlineExceeded)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return execError(ctx, "postgresql", err)
	}
	if closed {
		return connectionError("postgresql", err)
	}

	be := execError(ctx, "postgresql", err)
	var pgErr *pgconn.PgError
	if be.Kind == ErrExecution && errors.As(err, &pgErr) {
		be.Message = pgErr.Message
	}
	return be
}
