package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/RainBowCreation/LangCategory/internal/infra"
)

// flakyGateway падает заданное число раз, потом работает как память.
type flakyGateway struct {
	*MemoryGateway
	failures int32 // сколько первых вызовов завалить
	calls    int32
	err      error
}

func (g *flakyGateway) Get(ctx context.Context, key string) (string, error) {
	n := atomic.AddInt32(&g.calls, 1)
	if n <= atomic.LoadInt32(&g.failures) {
		return "", g.err
	}
	return g.MemoryGateway.Get(ctx, key)
}

func (g *flakyGateway) Set(ctx context.Context, key, value string) error {
	n := atomic.AddInt32(&g.calls, 1)
	if n <= atomic.LoadInt32(&g.failures) {
		return g.err
	}
	return g.MemoryGateway.Set(ctx, key, value)
}

func testStorageConfig() infra.StorageConfig {
	return infra.StorageConfig{
		OpTimeout:     time.Second,
		CBMaxRequests: 1,
		CBInterval:    time.Minute,
		CBTimeout:     time.Minute,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}
}

func TestReliableGatewayRetriesTransientFailure(t *testing.T) {
	inner := &flakyGateway{
		MemoryGateway: NewMemoryGateway(),
		failures:      2,
		err:           errors.New("connection reset"),
	}
	if err := inner.MemoryGateway.Set(context.Background(), "k", "v"); err != nil {
		t.Fatal(err)
	}

	w := NewReliableGateway(inner, testStorageConfig())
	got, err := w.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("Get after transient failures: %v", err)
	}
	if got != "v" {
		t.Fatalf("Get = %q, want v", got)
	}
	if c := atomic.LoadInt32(&inner.calls); c != 3 {
		t.Fatalf("backend called %d times, want 3 (2 failures + 1 success)", c)
	}
}

func TestReliableGatewayMissIsNotFailure(t *testing.T) {
	inner := &flakyGateway{MemoryGateway: NewMemoryGateway()}

	w := NewReliableGateway(inner, testStorageConfig())
	_, err := w.Get(context.Background(), "absent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(absent) = %v, want ErrNotFound", err)
	}
	// Промах не должен съедать попытки ретраев
	if c := atomic.LoadInt32(&inner.calls); c != 1 {
		t.Fatalf("backend called %d times on miss, want 1", c)
	}
}

func TestReliableGatewayThrottleDelay(t *testing.T) {
	const retryAfter = 40 * time.Millisecond
	inner := &flakyGateway{
		MemoryGateway: NewMemoryGateway(),
		failures:      1,
		err:           &ThrottleError{RetryAfter: retryAfter, Cause: errors.New("busy")},
	}

	w := NewReliableGateway(inner, testStorageConfig())
	start := time.Now()
	if err := w.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Set after throttle: %v", err)
	}
	if elapsed := time.Since(start); elapsed < retryAfter {
		t.Fatalf("retry fired after %v, want at least %v", elapsed, retryAfter)
	}
}

func TestRetryAttemptsZeroStaysBounded(t *testing.T) {
	inner := &flakyGateway{
		MemoryGateway: NewMemoryGateway(),
		failures:      1000,
		err:           errors.New("backend down"),
	}

	cfg := testStorageConfig()
	cfg.RetryAttempts = 0 // пустой конфиг не должен означать «ретраить вечно»
	w := NewReliableGateway(inner, cfg)

	if err := w.Set(context.Background(), "k", "v"); err == nil {
		t.Fatal("Set must fail while backend is down")
	}
	if c := atomic.LoadInt32(&inner.calls); c != 3 {
		t.Fatalf("backend called %d times, want the default 3 attempts", c)
	}
}

// brokenGateway отвечает отказом на любую операцию, включая Ping.
type brokenGateway struct{}

func (brokenGateway) Get(context.Context, string) (string, error) {
	return "", errors.New("backend down")
}
func (brokenGateway) Set(context.Context, string, string) error { return errors.New("backend down") }
func (brokenGateway) Ping(context.Context) error                { return errors.New("backend down") }
func (brokenGateway) Close() error                              { return nil }

func TestReliableGatewayPingReflectsBackend(t *testing.T) {
	w := NewReliableGateway(NewMemoryGateway(), testStorageConfig())
	if err := w.Ping(context.Background()); err != nil {
		t.Fatalf("Ping over healthy backend: %v", err)
	}

	w = NewReliableGateway(brokenGateway{}, testStorageConfig())
	if err := w.Ping(context.Background()); err == nil {
		t.Fatal("Ping must surface a dead backend")
	}
}

func TestReliableGatewayBreakerOpens(t *testing.T) {
	inner := &flakyGateway{
		MemoryGateway: NewMemoryGateway(),
		failures:      1000,
		err:           errors.New("backend down"),
	}

	cfg := testStorageConfig()
	cfg.RetryAttempts = 1 // без ретраев, чтобы каждая операция была одним вызовом
	w := NewReliableGateway(inner, cfg)

	// Шесть подряд неудач открывают предохранитель
	for i := 0; i < 6; i++ {
		if err := w.Set(context.Background(), "k", "v"); err == nil {
			t.Fatal("Set must fail while backend is down")
		}
	}

	before := atomic.LoadInt32(&inner.calls)
	err := w.Set(context.Background(), "k", "v")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("Set with open breaker = %v, want ErrOpenState", err)
	}
	if after := atomic.LoadInt32(&inner.calls); after != before {
		t.Fatalf("open breaker still reached backend (%d -> %d calls)", before, after)
	}
}
