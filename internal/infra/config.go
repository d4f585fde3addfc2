package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации всего сервиса.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (KV, Pub/Sub, каталог).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам, настройки JWT и учетные записи операторов.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только если сервис сам выпускает токены
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	Credentials    []CredEntry   `mapstructure:"credentials"`
	PublicKey      []byte
	PrivateKey     []byte
}

// CredEntry — учетная запись оператора в конфиге. Хеш, не пароль.
type CredEntry struct {
	Username     string   `mapstructure:"username"`
	PasswordHash string   `mapstructure:"password_hash"`
	Identity     string   `mapstructure:"identity"`
	Scopes       []string `mapstructure:"scopes"`
}

// PolicyConfig — намерение по умолчанию и раскладка ключей в хранилище.
type PolicyConfig struct {
	Namespace   string        `mapstructure:"namespace"`  // Логическое пространство записей политик
	KeyPrefix   string        `mapstructure:"key_prefix"` // Префикс ключа идентичности
	DefaultMode string        `mapstructure:"default_mode"`
	DefaultCats []string      `mapstructure:"default_categories"`
	CacheSize   int           `mapstructure:"cache_size"` // Верхняя граница LRU-кэша
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
	SyncChannel string        `mapstructure:"sync_channel"` // Pub/Sub канал инвалидации
}

// CatalogConfig описывает источник справочника известных категорий.
type CatalogConfig struct {
	Source     string   `mapstructure:"source"` // static | redis
	Categories []string `mapstructure:"categories"`
}

// StorageConfig выбирает бэкенд и настраивает контур отказоустойчивости.
type StorageConfig struct {
	Backend     string        `mapstructure:"backend"` // redis | postgres | memory
	PersistSize int           `mapstructure:"persist_buffer_size"`
	OpTimeout   time.Duration `mapstructure:"op_timeout"`

	// Настройки Circuit Breaker и ретраев вокруг бэкенда
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	RetryAttempts uint          `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	RateLimit     float64       `mapstructure:"rate_limit"` // запросов/сек к бэкенду, 0 = без лимита
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключей из Файла ИЛИ из ENV
	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s)
	// Если нет — читаем файл по указанному пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("logger.level", "info")
	v.SetDefault("auth.token_ttl", 1*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)

	// Раскладка хранилища совместима с историческими записями:
	// запись живет под <namespace>, ключ — <key_prefix><identity>.
	v.SetDefault("policy.namespace", "lcatpolicy")
	v.SetDefault("policy.key_prefix", "lcat:")
	v.SetDefault("policy.default_mode", "ALL")
	v.SetDefault("policy.cache_size", 10000)
	v.SetDefault("policy.load_timeout", 2*time.Second)
	v.SetDefault("policy.sync_channel", "lcatpolicy:updates")

	v.SetDefault("catalog.source", "static")

	v.SetDefault("storage.backend", "redis")
	v.SetDefault("storage.persist_buffer_size", 1000)
	v.SetDefault("storage.op_timeout", 2*time.Second)
	v.SetDefault("storage.cb_max_requests", 3)
	v.SetDefault("storage.cb_interval", 60*time.Second)
	v.SetDefault("storage.cb_timeout", 15*time.Second)
	v.SetDefault("storage.retry_attempts", 3)
	v.SetDefault("storage.retry_delay", 100*time.Millisecond)
}

// loadKeyResource — универсальный хелпер: ENV имеет приоритет над файлом.
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (Base64 или PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}

// DefaultPolicyString собирает строку "MODE|cats" для логов старта.
func (c *PolicyConfig) DefaultPolicyString() string {
	return c.DefaultMode + "|" + strings.Join(c.DefaultCats, ",")
}
