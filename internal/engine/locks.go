package engine

import "sync"

// keyedMutex — взаимное исключение по строковому ключу. Записи создаются
// по требованию и убираются, когда последний держатель отпускает ключ,
// так что карта не растет вместе с числом идентичностей.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*lockEntry)}
}

func (km *keyedMutex) Lock(key string) {
	km.mu.Lock()
	e, ok := km.entries[key]
	if !ok {
		e = &lockEntry{}
		km.entries[key] = e
	}
	e.refs++
	km.mu.Unlock()

	e.mu.Lock()
}

func (km *keyedMutex) Unlock(key string) {
	km.mu.Lock()
	e := km.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(km.entries, key)
	}
	km.mu.Unlock()

	e.mu.Unlock()
}
