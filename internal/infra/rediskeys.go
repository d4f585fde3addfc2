package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных сервиса в Redis
	RedisNamespace = "lcatpolicy"

	// RedisPolicyPrefix Исторический префикс ключа политики внутри пространства
	RedisPolicyPrefix = "lcat:"
)

// Ключи для Sets и блокировок (состояние)
const (
	RedisKeyCatalogSet  = RedisNamespace + ":catalog:categories"
	RedisKeyLockCatalog = RedisNamespace + ":lock:seed:catalog"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanPolicyUpdate — канал для трансляции изменённых политик между инстансами.
	RedisChanPolicyUpdate = RedisNamespace + ":updates"
)

// PolicyKey собирает полный ключ записи политики: <namespace>:<prefix><identity>.
// Namespace и префикс приходят из конфига, перечисленные константы — их дефолты.
func PolicyKey(namespace, prefix, identity string) string {
	return fmt.Sprintf("%s:%s%s", namespace, prefix, identity)
}
