package engine

/*
Файл persister.go реализует отложенную запись политик в удаленное хранилище.

Ключевые особенности архитектуры:
- Non-blocking Mutations: мутация возвращается сразу после перезаписи кэша,
  запись в хранилище уходит через буферизованный канал и не влияет на Response Time.
- Single Writer & FIFO: один воркер вычитывает канал последовательно, поэтому
  записи одной идентичности ложатся в хранилище в порядке мутаций.
- Drain Pattern & Graceful Shutdown: при остановке буфер вычитывается до конца
  (sync.WaitGroup + закрытие канала), незаписанного хвоста не остается.
- Load Shedding: при переполнении буфера запись отбрасывается с логом — политика
  останется в кэше и уедет в хранилище со следующей мутацией этой идентичности.
- Store Lag Accounting: персистер помнит идентичности, чья запись в хранилище
  отстает от кэша (очередь не разобрана, запись сброшена или не прошла).
  PolicyStore.Invalidate сверяется с InFlight, чтобы сигнал обновления не затер
  свежую мутацию устаревшим состоянием из хранилища.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/RainBowCreation/LangCategory/internal/storage"
)

type persistRequest struct {
	identity string
	key      string
	value    string
}

type Persister struct {
	ch      chan persistRequest
	gw      storage.Gateway
	logger  *zap.Logger
	metrics *Metrics
	wg      sync.WaitGroup

	// Если кто-то вызовет Enqueue после остановки — запись тихо отбрасывается с логом
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)

	// Учет отставания хранилища от кэша. Пока у идентичности есть очередь
	// (pending) или потерянная запись (dirty), ее запись в хранилище старее
	// локального состояния — InFlight говорит об этом PolicyStore.Invalidate.
	mu      sync.Mutex
	pending map[string]int
	dirty   map[string]struct{}

	// Вызывается после каждой успешной записи (публикация в канал обновлений).
	// Может быть nil.
	onPersist func(identity string)
}

func NewPersister(gw storage.Gateway, bufSize int, metrics *Metrics, logger *zap.Logger) *Persister {
	if bufSize <= 0 {
		bufSize = 1000
	}
	return &Persister{
		ch:      make(chan persistRequest, bufSize),
		gw:      gw,
		logger:  logger.With(zap.String("mod", "persister")),
		metrics: metrics,
		pending: make(map[string]int),
		dirty:   make(map[string]struct{}),
	}
}

// OnPersist регистрирует хук успешной записи. Вызывать до Start.
func (p *Persister) OnPersist(fn func(identity string)) {
	p.onPersist = fn
}

func (p *Persister) Start() {
	p.wg.Add(1)
	go p.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер допишет остатки.
func (p *Persister) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&p.isClosed, 1)

	// 2. Даем крошечную паузу, чтобы текущие Enqueue успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Закрываем (Drain Pattern): воркер вычитает хвост и завершится сам
	p.logger.Info("stopping persister: closing channel and flushing buffer...")
	close(p.ch)
	p.wg.Wait()
	p.logger.Info("persister stopped gracefully")
}

// Enqueue ставит закодированную политику в очередь на запись. Никогда не блокирует.
func (p *Persister) Enqueue(identity, key, value string) {
	// Атомарно проверяем, не закрыт ли канал
	if atomic.LoadInt32(&p.isClosed) == 1 {
		p.logger.Warn("persist dropped: persister is stopping", zap.String("identity", identity))
		p.markDirty(identity)
		return
	}

	// Стратегия Load Shedding (сброс нагрузки)
	select {
	case p.ch <- persistRequest{identity: identity, key: key, value: value}:
		p.mu.Lock()
		p.pending[identity]++
		// Свежайшее состояние идентичности снова в очереди
		delete(p.dirty, identity)
		p.mu.Unlock()
		p.metrics.PersistBufferFill.Set(float64(len(p.ch)))
	default:
		// Буфер переполнен (Backpressure) — запись пропускаем, кэш остается источником правды
		p.logger.Error("persist_buffer_overflow",
			zap.String("identity", identity),
			zap.String("value", value),
		)
		p.metrics.ErrorTotal.WithLabelValues("persist_overflow").Inc()
		p.markDirty(identity)
	}
}

// InFlight сообщает, отстает ли запись идентичности в хранилище от кэша:
// есть невыполненные записи в очереди либо последняя запись была потеряна
// (сброс буфера, отказ бэкенда). Пока InFlight — рефреш из хранилища затер бы
// кэш устаревшим состоянием.
func (p *Persister) InFlight(identity string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending[identity] > 0 {
		return true
	}
	_, behind := p.dirty[identity]
	return behind
}

func (p *Persister) markDirty(identity string) {
	p.mu.Lock()
	p.dirty[identity] = struct{}{}
	p.mu.Unlock()
}

// finish снимает запись с учета. Отказ бэкенда оставляет идентичность «грязной»,
// только если за ней в очереди нет более свежей записи: иначе судьбу решит она.
func (p *Persister) finish(identity string, err error) {
	p.mu.Lock()
	p.pending[identity]--
	last := p.pending[identity] <= 0
	if last {
		delete(p.pending, identity)
	}
	if err != nil && last {
		p.dirty[identity] = struct{}{}
	}
	p.mu.Unlock()
}

func (p *Persister) worker() {
	defer p.wg.Done()

	for req := range p.ch {
		p.metrics.PersistBufferFill.Set(float64(len(p.ch)))

		// Используем Background: основной контекст к этому моменту может быть закрыт,
		// а границы по времени держит контур надежности самого шлюза хранилища
		err := p.gw.Set(context.Background(), req.key, req.value)

		// Учет — до хука: сигнал обновления не должен застать идентичность
		// с уже записанной, но еще числящейся в очереди записью
		p.finish(req.identity, err)

		if err != nil {
			// Запись потеряна до следующей мутации этой идентичности. Не ретраим
			// здесь: ретраи уже отработали внутри шлюза
			p.logger.Warn("policy persist failed",
				zap.String("identity", req.identity),
				zap.String("value", req.value),
				zap.Error(err),
			)
			p.metrics.ErrorTotal.WithLabelValues("store_set").Inc()
			continue
		}

		if p.onPersist != nil {
			p.onPersist(req.identity)
		}
	}

	p.logger.Info("persist worker finished")
}
