package config

import (
	"errors"
	"fmt"
)

// Ошибки конфигурации.
var (
	// ErrMissingKey — обязательный ключ не задан ни в файле, ни флагом.
	ErrMissingKey = errors.New("missing required configuration key")

	// ErrInvalidValue — значение ключа недопустимо.
	ErrInvalidValue = errors.New("invalid configuration value")

	// ErrUnknownDriver — выбранной секции нет в drivers.
	ErrUnknownDriver = errors.New("unknown driver section")
)

// Error — ошибка конфигурации с указанием ключа.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func keyError(key string, err error) *Error {
	return &Error{Key: key, Err: err}
}
