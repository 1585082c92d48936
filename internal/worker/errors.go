package worker

import "errors"

// Ошибки воркера.
var (
	// ErrBailout — счётчик ошибок исчерпан, воркер остановлен.
	// Единственный фатальный исход цикла.
	ErrBailout = errors.New("bailout limit reached")

	// ErrNoSource — воркер создан без источника task.
	ErrNoSource = errors.New("worker has no task source")

	// ErrInvalidTask — task без dbms или query.
	ErrInvalidTask = errors.New("invalid task")
)
