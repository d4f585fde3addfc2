package engine

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ListenPolicyUpdates — "живучая" подписка на канал обновлений политик.
// Payload сообщения — "<отправитель>|<идентичность>", где отправитель — метка
// инстанса, опубликовавшего сигнал. Сигналы с собственной меткой origin
// отбрасываются: локальный кэш уже обновлен самой мутацией, перечитывать
// хранилище незачем. Обрабатывает переподключения; после каждого успешного
// коннекта вызывает onReconnect, чтобы наверстать сигналы, потерянные за
// время разрыва.
func ListenPolicyUpdates(
	ctx context.Context,
	rdb *redis.Client,
	logger *zap.Logger,
	channel string,
	origin string, // Метка этого инстанса в канале
	onReconnect func(), // Синхронизация кэша при (пере)подключении
	onUpdate func(identity string), // Обработка одного сигнала
) {
	logger = logger.Named("policy-listener")

	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := rdb.Subscribe(ctx, channel)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			pubsub.Close()
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}

		logger.Info("subscribed to policy updates", zap.String("chan", channel))
		onReconnect()

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				from, identity, tagged := strings.Cut(msg.Payload, "|")
				if !tagged {
					identity = msg.Payload // Сигнал без метки отправителя
				}
				if identity == "" {
					logger.Error("empty update signal", zap.String("chan", channel))
					continue
				}
				if tagged && from == origin {
					continue // Эхо собственной записи
				}

				onUpdate(identity)
			}
		}

		pubsub.Close()
		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

// sleepCtx ждет d или отмену контекста; false — контекст погашен.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
