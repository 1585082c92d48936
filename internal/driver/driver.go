package driver

import (
	"context"
	"time"
)

// Driver — адаптер одного бэкенда.
//
// Driver не хранит состояния: соединение живёт в Session,
// которую открывает Open и переиспользует Pool.
type Driver interface {
	// Name возвращает каноническое имя бэкенда ("postgresql", "monetdb", ...).
	Name() string

	// Open открывает сессию к базе target.DB.
	// Ошибка всегда *BackendError с Kind == ErrConnection.
	Open(ctx context.Context, target Target) (Session, error)
}

// Session — открытое подключение (или подготовленный вызов CLI-утилиты).
type Session interface {
	// Execute выполняет запрос один раз и возвращает измерение.
	// Ошибка всегда *BackendError.
	Execute(ctx context.Context, query string) (Measurement, error)

	// Close освобождает подключение.
	Close() error
}

// Measurement — результат одного выполнения запроса.
type Measurement struct {
	// Elapsed — время выполнения в миллисекундах.
	// Нативные адаптеры отдают целое число, CLI-адаптеры — значение из отчёта утилиты.
	Elapsed float64

	// Fingerprint — первый столбец первой строки результата, либо "".
	Fingerprint any

	// Extra — составляющие времени, если утилита их сообщает.
	Extra []float64
}

// Target — куда и как подключаться.
//
// Заполняется из секции drivers конфигурации и полей task (dbms, db).
type Target struct {
	DBMS string
	DB   string

	// DSN — готовая строка подключения; если задана, Host/Port/User/Password игнорируются.
	// База из DB подставляется поверх DSN там, где формат DSN это позволяет.
	DSN string

	// DSNDatabase — база, к которой привязан DSN (db секции конфигурации).
	// Адаптеры, которые не умеют сменить базу в DSN, отклоняют task с другой базой.
	DSNDatabase string

	Host     string
	Port     int
	User     string
	Password string

	// DBFarm — каталог с файлами баз (sqlite).
	DBFarm string

	// Command — шаблон командной строки для CLI-адаптеров.
	Command string

	// URI, Jars, Properties — параметры JDBC-профилей.
	URI        string
	Jars       []string
	Properties map[string]string

	// Timeout — предел одного выполнения (0 — без предела).
	Timeout time.Duration
}

// withTimeout ограничивает ctx таймаутом выполнения, если он задан.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// elapsedMillis — прошедшее время в целых миллисекундах.
func elapsedMillis(start time.Time) float64 {
	return float64(time.Since(start).Milliseconds())
}
