package storage

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound возвращается Gateway, когда записи под ключом нет.
// Для вызывающего это не сбой: политика просто еще не сохранялась.
var ErrNotFound = errors.New("storage: record not found")

// ThrottleError сигнализирует, что бэкенд просит снизить темп.
// Контур надежности использует RetryAfter вместо стандартного бэкоффа.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error {
	return e.Cause
}
