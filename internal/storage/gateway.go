package storage

import "context"

// Gateway — абстракция удаленного KV-хранилища записей политик.
// Ключи собирает вызывающая сторона (см. infra.PolicyKey), значения — уже
// закодированные строки. Gateway ничего не знает о формате записи.
type Gateway interface {
	// Get возвращает запись или ErrNotFound, если ключа нет.
	Get(ctx context.Context, key string) (string, error)

	// Set создает или перезаписывает запись целиком.
	Set(ctx context.Context, key, value string) error

	// Ping проверяет доступность бэкенда при старте.
	Ping(ctx context.Context) error

	Close() error
}
