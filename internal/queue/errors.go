package queue

import "errors"

// Результаты обращения к сервису очереди.
var (
	// ErrNoWork — сервер сообщил, что работы нет ("Out of work", "Unknown task ticket").
	// Ожидаемое состояние простоя.
	ErrNoWork = errors.New("no work available")

	// ErrTransport — сервер недоступен: таймаут, отказ в соединении, неожиданный HTTP-статус.
	ErrTransport = errors.New("queue transport error")

	// ErrServer — сервер вернул ошибку вместо task или отклонил результат.
	ErrServer = errors.New("queue server error")

	// ErrProtocol — ответ не удалось разобрать.
	ErrProtocol = errors.New("queue protocol error")
)

// noWorkMessages — сообщения сервера, означающие отсутствие работы.
var noWorkMessages = map[string]bool{
	"Out of work":         true,
	"Unknown task ticket": true,
}
