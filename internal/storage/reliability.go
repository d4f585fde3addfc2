package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/RainBowCreation/LangCategory/internal/infra"
)

// ReliableGateway оборачивает бэкенд контуром отказоустойчивости:
// Rate Limiter -> Circuit Breaker -> Retry с умной задержкой.
// Промах ключа (ErrNotFound) сбоем не считается — предохранитель
// реагирует только на настоящие отказы бэкенда.
type ReliableGateway struct {
	next      Gateway
	cb        *gobreaker.CircuitBreaker
	limiter   *rate.Limiter
	attempts  uint
	baseDelay time.Duration
	opTimeout time.Duration
}

func NewReliableGateway(next Gateway, cfg infra.StorageConfig) *ReliableGateway {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "policy-store",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
	})

	// Лимитер темпа обращений к бэкенду; 0 в конфиге — без ограничения
	limit := rate.Inf
	burst := 0
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
	}

	// Для retry-go ноль попыток означает «ретраить до успеха». Отложенная
	// запись ходит сюда с Background-контекстом, и на лежащем бэкенде такой
	// цикл никогда бы не вернулся — ноль откатываем к штатным трем попыткам
	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 3
	}

	return &ReliableGateway{
		next:      next,
		cb:        cb,
		limiter:   rate.NewLimiter(limit, burst),
		attempts:  attempts,
		baseDelay: cfg.RetryDelay,
		opTimeout: cfg.OpTimeout,
	}
}

func (w *ReliableGateway) Get(ctx context.Context, key string) (string, error) {
	var value string
	var notFound bool

	err := w.execute(ctx, func(tCtx context.Context) error {
		v, callErr := w.next.Get(tCtx, key)
		if errors.Is(callErr, ErrNotFound) {
			// Успешный ответ "записи нет": ретраи и CB не трогаем
			notFound = true
			return nil
		}
		if callErr != nil {
			return callErr
		}
		notFound = false
		value = v
		return nil
	})
	if err != nil {
		return "", err
	}
	if notFound {
		return "", ErrNotFound
	}
	return value, nil
}

func (w *ReliableGateway) Set(ctx context.Context, key, value string) error {
	return w.execute(ctx, func(tCtx context.Context) error {
		return w.next.Set(tCtx, key, value)
	})
}

// execute прогоняет операцию через весь контур.
func (w *ReliableGateway) execute(ctx context.Context, op func(context.Context) error) error {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.attempts),
			retry.Delay(w.baseDelay),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если бэкенд сам сообщил, сколько ждать
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// В остальных случаях (сетевой лаг, таймаут) — экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.opTimeout)
			defer cancel()

			return op(tCtx)
		})

		return nil, retryErr
	})
	return err
}

func (w *ReliableGateway) Ping(ctx context.Context) error {
	return w.next.Ping(ctx)
}

func (w *ReliableGateway) Close() error {
	return w.next.Close()
}
