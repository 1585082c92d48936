package driver

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Registry ---

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		dbms string
		want string
	}{
		{dbms: "postgresql", want: "postgresql"},
		{dbms: "PostgreSQL", want: "postgresql"},
		{dbms: "postgres", want: "postgresql"},
		{dbms: "mysql", want: "mariadb"},
		{dbms: "MonetDB", want: "monetdb"},
		{dbms: "clickhouse", want: "clickhouse"},
		{dbms: "clickhouse-native", want: "clickhouse-native"},
		{dbms: "Apache Derby", want: "apache derby"},
		{dbms: "  apache   hive ", want: "apache hive"},
		{dbms: "derby", want: "apache derby"},
		{dbms: "h2", want: "h2"},
		{dbms: "sqlite", want: "sqlite"},
		{dbms: "firebird", want: "firebird"},
		{dbms: "actian", want: "actian"},
	}

	for _, tt := range tests {
		t.Run(tt.dbms, func(t *testing.T) {
			d, err := r.Get(tt.dbms)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestRegistry_Unsupported(t *testing.T) {
	_, err := NewRegistry().Get("oracle")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedBackend))
	assert.Contains(t, err.Error(), "oracle")
}

func TestRegistry_Names(t *testing.T) {
	r := NewEmptyRegistry()
	r.Register(&SQLiteDriver{}, "sqlite3")
	r.Register(&MonetDBDriver{})

	assert.Equal(t, []string{"monetdb", "sqlite"}, r.Names())
	assert.Equal(t, []string{"sqlite3"}, r.Aliases("SQLite"))
}

// --- Errors ---

func TestBackendError_Kinds(t *testing.T) {
	cause := errors.New("boom")
	err := error(&BackendError{Kind: ErrTimeout, Backend: "x", Message: "took too long", Err: cause})

	assert.True(t, errors.Is(err, ErrTimeout))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrConnection))
	assert.Equal(t, "took too long", err.Error())

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "x", be.Backend)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "", Message(nil))
	assert.Equal(t, "table ''t'' not found at line 1", Message(errors.New("table 't' not found\nat line 1\n")))
	assert.Equal(t, "a b", CleanMessage("a\r\nb"))
}

// --- Pool ---

type fakeSession struct {
	db     string
	closed bool
}

func (s *fakeSession) Execute(context.Context, string) (Measurement, error) {
	return Measurement{Elapsed: 1, Fingerprint: ""}, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDriver struct {
	name     string
	opened   []*fakeSession
	failOpen bool
}

func (d *fakeDriver) Name() string { return d.name }

func (d *fakeDriver) Open(_ context.Context, target Target) (Session, error) {
	if d.failOpen {
		return nil, connectionError(d.name, errors.New("refused"))
	}
	s := &fakeSession{db: target.DB}
	d.opened = append(d.opened, s)
	return s, nil
}

func TestPool_ReuseSameDatabase(t *testing.T) {
	ctx := context.Background()
	d := &fakeDriver{name: "fake"}
	p := NewPool(nil)

	s1, err := p.Acquire(ctx, d, Target{DB: "tpch"})
	require.NoError(t, err)
	s2, err := p.Acquire(ctx, d, Target{DB: "tpch"})
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Len(t, d.opened, 1)

	backend, db, ok := p.Active()
	assert.True(t, ok)
	assert.Equal(t, "fake", backend)
	assert.Equal(t, "tpch", db)
}

func TestPool_SwitchDatabaseClosesOld(t *testing.T) {
	ctx := context.Background()
	d := &fakeDriver{name: "fake"}
	p := NewPool(nil)

	_, err := p.Acquire(ctx, d, Target{DB: "a"})
	require.NoError(t, err)
	_, err = p.Acquire(ctx, d, Target{DB: "b"})
	require.NoError(t, err)

	require.Len(t, d.opened, 2)
	assert.True(t, d.opened[0].closed)
	assert.False(t, d.opened[1].closed)

	p.Close()
	assert.True(t, d.opened[1].closed)
	_, _, ok := p.Active()
	assert.False(t, ok)
}

func TestPool_OpenFailure(t *testing.T) {
	d := &fakeDriver{name: "fake", failOpen: true}
	p := NewPool(nil)

	_, err := p.Acquire(context.Background(), d, Target{DB: "a"})
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))

	_, _, ok := p.Active()
	assert.False(t, ok)
}

// --- SQLite (in-memory) ---

func openMemory(t *testing.T) Session {
	t.Helper()
	s, err := (&SQLiteDriver{}).Open(context.Background(), Target{DB: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_ExecuteFingerprint(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	m, err := s.Execute(ctx, "select 42, 'x'")
	require.NoError(t, err)
	assert.Equal(t, int64(42), m.Fingerprint)
	assert.GreaterOrEqual(t, m.Elapsed, 0.0)
	assert.Equal(t, m.Elapsed, float64(int64(m.Elapsed)), "native adapters report whole milliseconds")
}

func TestSQLite_StatePersistsAcrossExecutions(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	m, err := s.Execute(ctx, "create table t (a integer)")
	require.NoError(t, err)
	assert.Equal(t, "", m.Fingerprint)

	_, err = s.Execute(ctx, "insert into t values (1), (2), (3)")
	require.NoError(t, err)

	m, err = s.Execute(ctx, "select count(*) from t")
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Fingerprint)

	m, err = s.Execute(ctx, "select a from t where a > 10")
	require.NoError(t, err)
	assert.Equal(t, "", m.Fingerprint)
}

func TestSQLite_SyntaxError(t *testing.T) {
	s := openMemory(t)

	_, err := s.Execute(context.Background(), "selec 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExecution))
	assert.False(t, IsConnectionError(err))
	assert.Contains(t, err.Error(), "syntax error")
}

func TestSQLitePath(t *testing.T) {
	assert.Equal(t, ":memory:", sqlitePath(Target{DB: ":memory:"}))
	assert.Equal(t, filepath.Join("/data", "tpch.db"), sqlitePath(Target{DB: "tpch", DBFarm: "/data"}))
	assert.Equal(t, filepath.Join("/data", "tpch.sqlite"), sqlitePath(Target{DB: "tpch.sqlite", DBFarm: "/data"}))
	assert.Equal(t, "file:x.db?mode=ro", sqlitePath(Target{DB: "ignored", DSN: "file:x.db?mode=ro"}))
}

func TestDSN_TaskDatabaseApplied(t *testing.T) {
	pg, err := postgresConfig(Target{DSN: "postgres://bench@db.local:5432/tpch", DB: "tpch_sf10"})
	require.NoError(t, err)
	assert.Equal(t, "tpch_sf10", pg.Database)
	assert.Equal(t, "db.local", pg.Host)

	my, err := mariadbConfig(Target{DSN: "bench:secret@tcp(db.local:3306)/tpch", DB: "tpch_sf10"})
	require.NoError(t, err)
	assert.Equal(t, "tpch_sf10", my.DBName)
	assert.Equal(t, "db.local:3306", my.Addr)

	ch, err := clickhouseOptions(Target{DSN: "clickhouse://db.local:9000/tpch", DB: "tpch_sf10"})
	require.NoError(t, err)
	assert.Equal(t, "tpch_sf10", ch.Auth.Database)

	// Без db task остаётся база из DSN
	pg, err = postgresConfig(Target{DSN: "postgres://bench@db.local:5432/tpch"})
	require.NoError(t, err)
	assert.Equal(t, "tpch", pg.Database)
}

func TestSQLite_DSNDatabaseMismatch(t *testing.T) {
	_, err := (&SQLiteDriver{}).Open(context.Background(), Target{DSN: ":memory:", DSNDatabase: "tpch", DB: "other"})
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
	assert.Contains(t, err.Error(), `"other"`)

	s, err := (&SQLiteDriver{}).Open(context.Background(), Target{DSN: ":memory:", DSNDatabase: "tpch", DB: "tpch"})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestClassifyPostgres(t *testing.T) {
	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	// Дедлайн закрыл соединение: это всё равно таймаут
	err := classifyPostgres(expired, errors.New("conn closed"), true)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.False(t, IsConnectionError(err))

	err = classifyPostgres(context.Background(), errors.New("unexpected EOF"), true)
	assert.True(t, IsConnectionError(err))

	err = classifyPostgres(context.Background(), errors.New("division by zero"), false)
	assert.True(t, errors.Is(err, ErrExecution))
}

// --- Output parsers ---

func TestParseMonetDBOutput(t *testing.T) {
	m, err := parseMonetDBOutput([]byte("sql:0.100 opt:0.200 run:1.500 clk:2.000 ms\n"), 99)
	require.NoError(t, err)
	assert.InDelta(t, 1.8, m.Elapsed, 1e-9)
	assert.Equal(t, []float64{1.5, 0.2, 0.1}, m.Extra)

	_, err = parseMonetDBOutput([]byte("ERROR = !syntax error, unexpected IDENT in: \"selec\"\n"), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExecution))
	assert.Equal(t, `syntax error, unexpected IDENT in: "selec"`, err.Error())

	_, err = parseMonetDBOutput([]byte("garbage"), 0)
	assert.ErrorIs(t, err, errNoTiming)
}

func TestParseClickHouseOutput(t *testing.T) {
	m, err := parseClickHouseOutput([]byte("0.125\n"), 7)
	require.NoError(t, err)
	assert.InDelta(t, 125.0, m.Elapsed, 1e-9)

	_, err = parseClickHouseOutput([]byte("Code: 62. DB::Exception: Syntax error"), 7)
	assert.ErrorIs(t, err, errNoTiming)
}

func TestParseActianOutput(t *testing.T) {
	m, err := parseActianOutput([]byte("INGRES TERMINAL MONITOR\n(1 row)\n"), 12)
	require.NoError(t, err)
	assert.Equal(t, 12.0, m.Elapsed)

	_, err = parseActianOutput([]byte("continue\n E_US0845 Table 'x' does not exist.\n"), 12)
	require.Error(t, err)
	assert.Equal(t, "E_US0845 Table 'x' does not exist.", err.Error())
}

// --- CLI sessions ---

func TestCLISession_ArgsKeepQueryWhole(t *testing.T) {
	s, err := newCLISession(cliConfig{
		Backend: "test",
		Command: `sh -c "echo x" -d {db} -s "{query}"`,
		Target:  Target{DB: "tpch"},
	})
	require.NoError(t, err)

	args := s.Args("select 'a b' from t where c = \"d\"")
	assert.Equal(t, []string{"sh", "-c", "echo x", "-d", "tpch", "-s", "select 'a b' from t where c = \"d\""}, args)
}

func TestCLISession_InvalidCommand(t *testing.T) {
	_, err := newCLISession(cliConfig{Backend: "test", Command: `mclient "unterminated`})
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))

	_, err = newCLISession(cliConfig{Backend: "test", Command: `definitely-not-a-binary-squll {query}`})
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
}

func TestCLISession_WallClock(t *testing.T) {
	s, err := openCLI(cliConfig{Backend: "test", Command: `echo {query}`})
	require.NoError(t, err)

	m, err := s.Execute(context.Background(), "select 1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, m.Elapsed, 0.0)
	assert.Equal(t, "", m.Fingerprint)
}

func TestCLISession_Timeout(t *testing.T) {
	s, err := openCLI(cliConfig{
		Backend: "test",
		Command: `sleep 5`,
		Target:  Target{Timeout: 50 * time.Millisecond},
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = s.Execute(context.Background(), "select 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, time.Since(start), 4*time.Second, "subprocess must be killed on timeout")
}

func TestCLISession_NonZeroExit(t *testing.T) {
	s, err := openCLI(cliConfig{Backend: "test", Command: `sh -c "echo boom >&2; exit 3"`})
	require.NoError(t, err)

	_, err = s.Execute(context.Background(), "select 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExecution))
	assert.Equal(t, "boom", err.Error())
}

func TestCLISession_ParseFailureCarriesOutput(t *testing.T) {
	s, err := (&ClickHouseCLIDriver{}).Open(context.Background(), Target{Command: `echo no timing here`})
	require.NoError(t, err)

	_, err = s.Execute(context.Background(), "select 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProtocol))
	assert.Equal(t, "no timing here", err.Error())
}

func TestMonetDB_ThroughCLI(t *testing.T) {
	s, err := (&MonetDBDriver{}).Open(context.Background(), Target{
		Command: `echo sql:0.100 opt:0.200 run:1.500 clk:2.000 ms`,
	})
	require.NoError(t, err)

	m, err := s.Execute(context.Background(), "select 1")
	require.NoError(t, err)
	assert.InDelta(t, 1.8, m.Elapsed, 1e-9)
	assert.Len(t, m.Extra, 3)
}

func TestActian_QueryOnStdin(t *testing.T) {
	s, err := (&ActianDriver{}).Open(context.Background(), Target{Command: `cat`})
	require.NoError(t, err)

	_, err = s.Execute(context.Background(), "select 1")
	require.NoError(t, err)

	_, err = s.Execute(context.Background(), "E_US0845 Table does not exist")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExecution))
	assert.Contains(t, err.Error(), "E_US0845")
}

// --- JDBC ---

func TestParseJDBCOutput(t *testing.T) {
	m, err := parseJDBCOutput([]byte("'C1'\n'1'\n"), 7)
	require.NoError(t, err)
	assert.Equal(t, 7.0, m.Elapsed)

	_, err = parseJDBCOutput([]byte("Error: Table \"X\" not found; SQL statement: select * from x (state=42S02,code=42102)\n"), 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExecution))
	assert.Contains(t, err.Error(), `Table "X" not found`)
}

func TestJDBC_FailedStatementWithCleanExit(t *testing.T) {
	d := &JDBCDriver{Profile: jdbcProfiles[2]}
	session, err := d.Open(context.Background(), Target{
		DB:      "x",
		URI:     "jdbc:h2:mem:{db}",
		Jars:    []string{"h2.jar"},
		User:    "sa",
		Command: `cat`,
	})
	require.NoError(t, err)

	_, err = session.Execute(context.Background(), "select 1")
	require.NoError(t, err)

	// cat выходит с кодом 0 и повторяет stdin, как sqlline после !quit
	_, err = session.Execute(context.Background(), "Error: Syntax error in SQL statement")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExecution))
	assert.Contains(t, err.Error(), "Syntax error")
}

func TestJDBC_RequiredKeys(t *testing.T) {
	d := &JDBCDriver{Profile: jdbcProfiles[2]}

	_, err := d.Open(context.Background(), Target{DB: "x", Jars: []string{"h2.jar"}, User: "sa"})
	require.Error(t, err)
	assert.True(t, IsConnectionError(err))
	assert.Contains(t, err.Error(), `"uri"`)
}

func TestJDBC_ArgsAndProperties(t *testing.T) {
	d := &JDBCDriver{Profile: jdbcProfiles[0]}
	session, err := d.Open(context.Background(), Target{
		DB:         "tpch",
		URI:        "jdbc:derby:/data/{db}",
		Jars:       []string{"derby.jar", "derbytools.jar"},
		User:       "app",
		Command:    `echo {driver} {uri} {jars} {properties}`,
		Properties: map[string]string{"create": "true", "unsupported": "x"},
	})
	require.NoError(t, err)

	s, ok := session.(*cliSession)
	require.True(t, ok)

	args := s.Args("select 1")
	assert.Equal(t, []string{
		"echo",
		"org.apache.derby.jdbc.EmbeddedDriver",
		"jdbc:derby:/data/tpch",
		"derby.jar:derbytools.jar",
		"create=true;user=app",
	}, args)
}
