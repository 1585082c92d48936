package driver

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"fmt"
	"time"
)

// sqlSession — сессия поверх database/sql с одним закреплённым *sql.Conn.
//
// Все выполнения идут через одно физическое подключение: для in-memory
// баз и для честного замера повторных запусков это обязательно.
type sqlSession struct {
	backend string
	db      *sql.DB
	conn    *sql.Conn
	timeout time.Duration

	// message извлекает текст ошибки, специфичный для драйвера.
	message func(error) string
}

// openSQL открывает пул database/sql из одного подключения и закрепляет его.
func openSQL(ctx context.Context, backend string, db *sql.DB, timeout time.Duration) (*sqlSession, error) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, connectionError(backend, err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, connectionError(backend, err)
	}

	return &sqlSession{
		backend: backend,
		db:      db,
		conn:    conn,
		timeout: timeout,
	}, nil
}

// Execute выполняет запрос и читает первую строку для отпечатка.
// Время считается до конца чтения первой строки.
func (s *sqlSession) Execute(ctx context.Context, query string) (Measurement, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return Measurement{}, s.classify(ctx, err)
	}
	defer rows.Close()

	var fingerprint any = ""
	if rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return Measurement{}, s.classify(ctx, err)
		}
		if len(cols) > 0 {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return Measurement{}, s.classify(ctx, err)
			}
			fingerprint = normalizeValue(values[0])
		}
	}
	if err := rows.Err(); err != nil {
		return Measurement{}, s.classify(ctx, err)
	}

	return Measurement{Elapsed: elapsedMillis(start), Fingerprint: fingerprint}, nil
}

func (s *sqlSession) Close() error {
	connErr := s.conn.Close()
	dbErr := s.db.Close()
	return errors.Join(connErr, dbErr)
}

func (s *sqlSession) classify(ctx context.Context, err error) error {
	if errors.Is(err, sqldriver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return connectionError(s.backend, err)
	}
	be := execError(ctx, s.backend, err)
	if s.message != nil && be.Kind == ErrExecution {
		be.Message = s.message(err)
	}
	return be
}

// normalizeValue приводит значение столбца к виду, пригодному для JSON.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case time.Time:
		return val.Format("2006-01-02 15:04:05.999999")
	case fmt.Stringer:
		return val.String()
	default:
		return val
	}
}
