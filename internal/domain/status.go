package domain

// WorkerState — состояние цикла воркера.
//
// Жизненный цикл:
//
//	IDLE → FETCHING → EXECUTING → SUBMITTING → IDLE
//	       (из любого состояния) → TERMINATED
type WorkerState string

const (
	// WorkerStateIdle — воркер ждёт (backoff) или готов к следующему запросу.
	WorkerStateIdle WorkerState = "IDLE"

	// WorkerStateFetching — запрос get_work.
	WorkerStateFetching WorkerState = "FETCHING"

	// WorkerStateExecuting — выполнение task.
	WorkerStateExecuting WorkerState = "EXECUTING"

	// WorkerStateSubmitting — отправка put_work.
	WorkerStateSubmitting WorkerState = "SUBMITTING"

	// WorkerStateTerminated — воркер завершён (работа кончилась, bailout или остановка).
	WorkerStateTerminated WorkerState = "TERMINATED"
)

// IsTerminal возвращает true, если состояние финальное.
func (s WorkerState) IsTerminal() bool {
	return s == WorkerStateTerminated
}

// String возвращает строковое представление WorkerState.
func (s WorkerState) String() string {
	return string(s)
}
