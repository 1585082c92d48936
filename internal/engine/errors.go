package engine

import "errors"

// Ошибки разворачивания шаблонов.
var (
	// ErrUnknownMode — неизвестный режим подстановки.
	ErrUnknownMode = errors.New("unknown substitution mode")

	// ErrInvalidParamName — имя параметра нельзя использовать в выбранном режиме.
	ErrInvalidParamName = errors.New("invalid parameter name")

	// ErrNoPlaceholders — в шаблоне нет ни одного токена :name для параметров task.
	ErrNoPlaceholders = errors.New("template has no placeholders for task parameters")
)
