package driver

import (
	"context"
	"fmt"
	"net"
	"reflect"
	"regexp"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	chdriver "github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const (
	defaultClickHousePort    = 9000
	defaultClickHouseCommand = `clickhouse client --database={db} --time --format=Null --query={query}`
)

// --- native ---

// ClickHouseNativeDriver — нативный адаптер ClickHouse (clickhouse-go/v2, native protocol).
type ClickHouseNativeDriver struct{}

func (d *ClickHouseNativeDriver) Name() string { return "clickhouse-native" }

func (d *ClickHouseNativeDriver) Open(ctx context.Context, target Target) (Session, error) {
	opts, err := clickhouseOptions(target)
	if err != nil {
		return nil, connectionError(d.Name(), err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, connectionError(d.Name(), fmt.Errorf("could not connect to clickhouse: %w", err))
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, connectionError(d.Name(), fmt.Errorf("failed to ping clickhouse: %w", err))
	}

	return &clickhouseSession{conn: conn, timeout: target.Timeout}, nil
}

func clickhouseOptions(target Target) (*clickhouse.Options, error) {
	if target.DSN != "" {
		opts, err := clickhouse.ParseDSN(target.DSN)
		if err != nil {
			return nil, err
		}
		if target.DB != "" {
			opts.Auth.Database = target.DB
		}
		return opts, nil
	}

	host := target.Host
	if host == "" {
		host = "localhost"
	}
	port := target.Port
	if port == 0 {
		port = defaultClickHousePort
	}

	return &clickhouse.Options{
		Addr: []string{net.JoinHostPort(host, strconv.Itoa(port))},
		Auth: clickhouse.Auth{
			Database: target.DB,
			Username: target.User,
			Password: target.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	}, nil
}

type clickhouseSession struct {
	conn    chdriver.Conn
	timeout time.Duration
}

func (s *clickhouseSession) Execute(ctx context.Context, query string) (Measurement, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return Measurement{}, s.classify(ctx, err)
	}
	defer rows.Close()

	var fingerprint any = ""
	if rows.Next() {
		types := rows.ColumnTypes()
		ptrs := make([]any, len(types))
		for i, ct := range types {
			ptrs[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Measurement{}, s.classify(ctx, err)
		}
		if len(ptrs) > 0 {
			fingerprint = normalizeValue(reflect.ValueOf(ptrs[0]).Elem().Interface())
		}
	}
	if err := rows.Err(); err != nil {
		return Measurement{}, s.classify(ctx, err)
	}

	return Measurement{Elapsed: elapsedMillis(start), Fingerprint: fingerprint}, nil
}

func (s *clickhouseSession) Close() error {
	return s.conn.Close()
}

func (s *clickhouseSession) classify(ctx context.Context, err error) error {
	if pingErr := s.conn.Ping(context.Background()); pingErr != nil {
		return connectionError("clickhouse-native", err)
	}
	return execError(ctx, "clickhouse-native", err)
}

// --- clickhouse client ---

// clickhouseTime — время из --time: секунды с дробной частью, последнее число в выводе.
var clickhouseTime = regexp.MustCompile(`(\d+\.\d+)\s*$`)

// ClickHouseCLIDriver — адаптер через утилиту clickhouse client.
//
// Утилита печатает время выполнения в секундах (--time); адаптер
// переводит его в миллисекунды без округления.
type ClickHouseCLIDriver struct{}

func (d *ClickHouseCLIDriver) Name() string { return "clickhouse" }

func (d *ClickHouseCLIDriver) Open(_ context.Context, target Target) (Session, error) {
	return openCLI(cliConfig{
		Backend: d.Name(),
		Command: commandOr(target.Command, defaultClickHouseCommand),
		Target:  target,
		Parse:   parseClickHouseOutput,
	})
}

func parseClickHouseOutput(out []byte, _ float64) (Measurement, error) {
	m := clickhouseTime.FindSubmatch(out)
	if m == nil {
		return Measurement{}, errNoTiming
	}
	seconds, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return Measurement{}, err
	}
	return Measurement{Elapsed: seconds * 1000, Fingerprint: ""}, nil
}
