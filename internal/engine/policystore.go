package engine

/*
Файл policystore.go — ядро сервиса: связка кэша политик с удаленным хранилищем.

Контракт надежности ядра:
- Resolve и DecideNow никогда не возвращают ошибку. Любой отказ хранилища или
  испорченная запись заменяются свежей копией политики по умолчанию (с логом).
- Mutate перезаписывает кэш синхронно — следующий DecideNow той же идентичности
  уже видит новое состояние. Запись в хранилище уходит асинхронно через Persister.
- Закэшированные экземпляры неизменяемы после публикации: мутация всегда
  работает на клоне и подменяет указатель целиком. Поэтому горячий путь читает
  кэш без копирования и без блокировок поверх самого кэша.
- Мутации одной идентичности сериализуются keyed-мьютексом; разные идентичности
  не конкурируют.
*/

import (
	"context"
	"errors"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/RainBowCreation/LangCategory/internal/domain"
	"github.com/RainBowCreation/LangCategory/internal/infra"
	"github.com/RainBowCreation/LangCategory/internal/storage"
)

// Transition — чистый переход над политикой (domain.Enable, domain.Toggle, ...).
type Transition func(*domain.Policy) *domain.Policy

type PolicyStore struct {
	cache     *lru.Cache[string, *domain.Policy]
	gw        storage.Gateway
	persister *Persister
	locks     *keyedMutex
	logger    *zap.Logger
	metrics   *Metrics

	// Политика по умолчанию: неизменяемый образец. Наружу уходят только клоны,
	// сам образец используется лишь для чтения (Decide) на промахах.
	defSeed *domain.Policy

	namespace   string
	keyPrefix   string
	loadTimeout time.Duration
}

func NewPolicyStore(
	cfg infra.PolicyConfig,
	gw storage.Gateway,
	persister *Persister,
	metrics *Metrics,
	logger *zap.Logger,
) (*PolicyStore, error) {
	cache, err := lru.New[string, *domain.Policy](cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	log := logger.Named("policystore")

	// Невалидный режим в конфиге не валит сервис: откатываемся к ALL
	if _, ok := domain.ParseMode(strings.ToUpper(cfg.DefaultMode)); !ok {
		log.Warn("unknown default mode in config, falling back to ALL",
			zap.String("mode", cfg.DefaultMode))
	}

	loadTimeout := cfg.LoadTimeout
	if loadTimeout <= 0 {
		loadTimeout = 2 * time.Second
	}

	return &PolicyStore{
		cache:       cache,
		gw:          gw,
		persister:   persister,
		locks:       newKeyedMutex(),
		logger:      log,
		metrics:     metrics,
		defSeed:     domain.NewPolicy(domain.ParseModeDefault(cfg.DefaultMode), cfg.DefaultCats...),
		namespace:   cfg.Namespace,
		keyPrefix:   cfg.KeyPrefix,
		loadTimeout: loadTimeout,
	}, nil
}

// Default возвращает свежую копию политики по умолчанию.
func (s *PolicyStore) Default() *domain.Policy {
	return s.defSeed.Clone()
}

func (s *PolicyStore) keyFor(identity string) string {
	return infra.PolicyKey(s.namespace, s.keyPrefix, identity)
}

// Resolve возвращает действующую политику идентичности: кэш -> хранилище -> дефолт.
// Всегда отдает рабочую копию, ошибок не бывает.
func (s *PolicyStore) Resolve(ctx context.Context, identity string) *domain.Policy {
	if p, ok := s.cache.Get(identity); ok {
		return p.Clone()
	}

	s.locks.Lock(identity)
	defer s.locks.Unlock(identity)

	// Пока ждали замок, политику мог загрузить кто-то другой
	if p, ok := s.cache.Get(identity); ok {
		return p.Clone()
	}

	p := s.load(ctx, identity)
	s.cache.Add(identity, p)
	s.metrics.CacheEntries.Set(float64(s.cache.Len()))
	return p.Clone()
}

// load читает и декодирует запись; на любой сбой отвечает копией дефолта.
func (s *PolicyStore) load(ctx context.Context, identity string) *domain.Policy {
	raw, err := s.gw.Get(ctx, s.keyFor(identity))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("policy load failed, using default",
				zap.String("identity", identity), zap.Error(err))
			s.metrics.ErrorTotal.WithLabelValues("store_get").Inc()
		}
		return s.Default()
	}

	p, err := DecodePolicy(raw)
	if err != nil {
		// Испорченная запись живет в хранилище до следующей успешной мутации
		s.logger.Warn("stored policy is malformed, using default",
			zap.String("identity", identity), zap.String("raw", raw), zap.Error(err))
		s.metrics.ErrorTotal.WithLabelValues("decode").Inc()
		return s.Default()
	}
	return p
}

// Mutate применяет переход к действующей политике идентичности.
// Кэш обновляется до возврата, запись в хранилище уходит в фоне.
func (s *PolicyStore) Mutate(ctx context.Context, identity string, t Transition) *domain.Policy {
	s.locks.Lock(identity)
	defer s.locks.Unlock(identity)

	var cur *domain.Policy
	if p, ok := s.cache.Get(identity); ok {
		cur = p.Clone()
	} else {
		cur = s.load(ctx, identity)
	}

	next := t(cur)

	// Синхронная перезапись кэша: с этого момента решения идут по новому состоянию
	s.cache.Add(identity, next)
	s.metrics.CacheEntries.Set(float64(s.cache.Len()))

	// Ставим в очередь под замком — порядок записей идентичности совпадает
	// с порядком ее мутаций
	s.persister.Enqueue(identity, s.keyFor(identity), EncodePolicy(next))

	return next.Clone()
}

// DecideNow — неблокирующее решение для горячего пути.
// Промах кэша не ждет хранилища: отвечаем по дефолту и греем кэш в фоне.
// Цена промаха — решения по дефолту до прихода фоновой загрузки.
func (s *PolicyStore) DecideNow(identity, category string) bool {
	if p, ok := s.cache.Get(identity); ok {
		allowed := p.Decide(category)
		s.metrics.DecisionsTotal.WithLabelValues(outcomeLabel(allowed), "cache").Inc()
		return allowed
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.loadTimeout)
		defer cancel()
		s.Resolve(ctx, identity)
	}()

	allowed := s.defSeed.Decide(category)
	s.metrics.DecisionsTotal.WithLabelValues(outcomeLabel(allowed), "default").Inc()
	return allowed
}

// Allow — фасад решения для внешних хуков, алиас DecideNow.
func (s *PolicyStore) Allow(identity, category string) bool {
	return s.DecideNow(identity, category)
}

// Invalidate освежает закэшированную политику из хранилища (сигнал от другого
// инстанса). Для незнакомых идентичностей — no-op: нечего освежать.
// Идентичности с недописанными или потерянными локальными записями тоже
// пропускаются: их кэш новее хранилища, и рефреш откатил бы мутацию, которая
// уже была видна решениям. Кэш перезаписывается только успешно прочитанной
// записью; при недоступном хранилище или отсутствии записи локальное состояние
// считается новее.
func (s *PolicyStore) Invalidate(ctx context.Context, identity string) {
	if !s.cache.Contains(identity) {
		return
	}

	s.locks.Lock(identity)
	defer s.locks.Unlock(identity)

	if !s.cache.Contains(identity) {
		return
	}

	// Замок идентичности уже у нас, поэтому новая мутация не успеет встать в
	// очередь между проверкой и перезаписью кэша
	if s.persister.InFlight(identity) {
		s.logger.Debug("policy refresh skipped, local writes in flight",
			zap.String("identity", identity))
		return
	}

	raw, err := s.gw.Get(ctx, s.keyFor(identity))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("policy refresh failed, keeping cached value",
				zap.String("identity", identity), zap.Error(err))
			s.metrics.ErrorTotal.WithLabelValues("store_get").Inc()
		}
		return
	}

	p, err := DecodePolicy(raw)
	if err != nil {
		s.logger.Warn("refreshed policy is malformed, keeping cached value",
			zap.String("identity", identity), zap.Error(err))
		s.metrics.ErrorTotal.WithLabelValues("decode").Inc()
		return
	}

	s.cache.Add(identity, p)
}

// RefreshCached перечитывает все закэшированные идентичности. Вызывается
// слушателем обновлений после переподключения: за время разрыва сигналы
// могли быть потеряны.
func (s *PolicyStore) RefreshCached(ctx context.Context) {
	for _, identity := range s.cache.Keys() {
		s.Invalidate(ctx, identity)
	}
}

// --- Мутационная поверхность 1:1 с переходами политики ---

func (s *PolicyStore) EnableAll(ctx context.Context, identity string) *domain.Policy {
	return s.Mutate(ctx, identity, func(p *domain.Policy) *domain.Policy { return p.EnableAll() })
}

func (s *PolicyStore) DisableAll(ctx context.Context, identity string) *domain.Policy {
	return s.Mutate(ctx, identity, func(p *domain.Policy) *domain.Policy { return p.DisableAll() })
}

func (s *PolicyStore) EnableOnly(ctx context.Context, identity, category string) *domain.Policy {
	return s.Mutate(ctx, identity, func(p *domain.Policy) *domain.Policy { return p.EnableOnly(category) })
}

func (s *PolicyStore) DisableOnly(ctx context.Context, identity, category string) *domain.Policy {
	return s.Mutate(ctx, identity, func(p *domain.Policy) *domain.Policy { return p.DisableOnly(category) })
}

func (s *PolicyStore) Enable(ctx context.Context, identity, category string) *domain.Policy {
	return s.Mutate(ctx, identity, func(p *domain.Policy) *domain.Policy { return p.Enable(category) })
}

func (s *PolicyStore) Disable(ctx context.Context, identity, category string) *domain.Policy {
	return s.Mutate(ctx, identity, func(p *domain.Policy) *domain.Policy { return p.Disable(category) })
}

func (s *PolicyStore) Toggle(ctx context.Context, identity, category string) *domain.Policy {
	return s.Mutate(ctx, identity, func(p *domain.Policy) *domain.Policy { return p.Toggle(category) })
}

func outcomeLabel(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}
