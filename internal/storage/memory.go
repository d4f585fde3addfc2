package storage

import (
	"context"
	"sync"
)

// MemoryGateway — хранилище в памяти процесса. Режим для разработки
// и тестов: записи живут до рестарта.
type MemoryGateway struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{data: make(map[string]string)}
}

func (g *MemoryGateway) Get(_ context.Context, key string) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	val, ok := g.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (g *MemoryGateway) Set(_ context.Context, key, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.data[key] = value
	return nil
}

func (g *MemoryGateway) Ping(_ context.Context) error { return nil }

func (g *MemoryGateway) Close() error { return nil }

// Len — размер хранилища, удобен в тестах.
func (g *MemoryGateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.data)
}
