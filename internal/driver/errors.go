package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Виды ошибок бэкенда.
var (
	// ErrConnection — не удалось открыть подключение или оно разорвано.
	ErrConnection = errors.New("connection error")

	// ErrExecution — запрос завершился ошибкой.
	ErrExecution = errors.New("execution error")

	// ErrTimeout — выполнение превысило таймаут.
	ErrTimeout = errors.New("timeout")

	// ErrProtocol — ответ бэкенда или утилиты не удалось разобрать.
	ErrProtocol = errors.New("protocol error")

	// ErrUnsupportedBackend — в реестре нет адаптера для dbms.
	ErrUnsupportedBackend = errors.New("unsupported backend")
)

// BackendError — ошибка адаптера с видом из закрытого набора.
//
// Error() возвращает сообщение бэкенда без префиксов: оно уходит
// в поле error RunRecord и дальше на сервер.
type BackendError struct {
	// Kind — ErrConnection, ErrExecution, ErrTimeout или ErrProtocol.
	Kind    error
	Backend string
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

// Unwrap позволяет errors.Is(err, ErrTimeout) и errors.Is(err, <исходная ошибка>).
func (e *BackendError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, backend string, err error) *BackendError {
	return &BackendError{Kind: kind, Backend: backend, Message: err.Error(), Err: err}
}

func connectionError(backend string, err error) *BackendError {
	return newError(ErrConnection, backend, err)
}

// execError классифицирует ошибку выполнения: истёкший ctx — ErrTimeout.
func execError(ctx context.Context, backend string, err error) *BackendError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &BackendError{
			Kind:    ErrTimeout,
			Backend: backend,
			Message: fmt.Sprintf("timeout: %v", err),
			Err:     err,
		}
	}
	return newError(ErrExecution, backend, err)
}

// checkDSNDatabase отклоняет task, чья база не совпадает с базой DSN.
func checkDSNDatabase(backend string, target Target) error {
	if target.DSN == "" || target.DB == "" || target.DB == target.DSNDatabase {
		return nil
	}
	return connectionError(backend, fmt.Errorf("dsn is bound to database %q, task asks for %q", target.DSNDatabase, target.DB))
}

// IsConnectionError сообщает, что сессию нужно закрыть и открыть заново.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}

// Message приводит сообщение об ошибке к формату сервера:
// переводы строк заменяются пробелами, одинарные кавычки удваиваются.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return CleanMessage(err.Error())
}

// CleanMessage — то же, что Message, для готовой строки.
func CleanMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	msg = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(msg)
	return strings.ReplaceAll(msg, "'", "''")
}
