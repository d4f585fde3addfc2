package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/RainBowCreation/LangCategory/internal/catalog"
	"github.com/RainBowCreation/LangCategory/internal/console/handler"
	"github.com/RainBowCreation/LangCategory/internal/console/server"
	"github.com/RainBowCreation/LangCategory/internal/console/service"
	"github.com/RainBowCreation/LangCategory/internal/engine"
	"github.com/RainBowCreation/LangCategory/internal/infra"
	"github.com/RainBowCreation/LangCategory/internal/storage"
)

func main() {
	hashPassword := flag.String("hash-password", "", "print a bcrypt hash for the given password and exit")
	flag.Parse()

	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Утилита для заведения операторов: хеш печатается с настроенной стоимостью
	if *hashPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*hashPassword), cfg.Auth.BcryptCost)
		if err != nil {
			log.Fatalf("bcrypt: %v", err)
		}
		fmt.Println(string(hash))
		return
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	// При завершении main() или срабатывании SIGTERM, cancel() остановит слушателей
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Redis: KV-хранилище, канал обновлений, каталог
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	// 3. Шлюз хранилища + контур надежности
	var gw storage.Gateway
	switch cfg.Storage.Backend {
	case "postgres":
		pg, err := storage.NewPostgresGateway(appCtx, cfg.Database)
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		initCtx, initCancel := context.WithTimeout(appCtx, 5*time.Second)
		if err := pg.Init(initCtx); err != nil {
			logger.Fatal("postgres schema init failed", zap.Error(err))
		}
		initCancel()
		gw = pg
	case "memory":
		gw = storage.NewMemoryGateway()
	case "redis":
		if rdb == nil {
			logger.Fatal("storage.backend=redis requires redis.addr")
		}
		gw = storage.NewRedisGateway(rdb)
	default:
		logger.Fatal("unknown storage backend", zap.String("backend", cfg.Storage.Backend))
	}
	defer gw.Close()

	safeGW := storage.NewReliableGateway(gw, cfg.Storage)

	pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
	if err := safeGW.Ping(pingCtx); err != nil {
		// Не фатально: сервис отвечает из кэша и дефолтами, контур надежности
		// дождется восстановления хранилища
		logger.Warn("storage backend unreachable at startup",
			zap.String("backend", cfg.Storage.Backend), zap.Error(err))
	}
	pingCancel()

	// 4. Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	// 5. Ядро: отложенная запись + кэш политик + слушатель обновлений.
	// Метка инстанса подписывает сигналы обновлений: слушатель отбрасывает
	// собственное эхо и не перечитывает только что записанные политики
	instanceID := uuid.NewString()

	persister := engine.NewPersister(safeGW, cfg.Storage.PersistSize, metrics, logger)
	if rdb != nil {
		persister.OnPersist(func(identity string) {
			pubCtx, pubCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer pubCancel()
			payload := instanceID + "|" + identity
			if err := rdb.Publish(pubCtx, cfg.Policy.SyncChannel, payload).Err(); err != nil {
				logger.Warn("policy update publish failed",
					zap.String("identity", identity), zap.Error(err))
			}
		})
	}
	persister.Start()

	store, err := engine.NewPolicyStore(cfg.Policy, safeGW, persister, metrics, logger)
	if err != nil {
		logger.Fatal("policy store init failed", zap.Error(err))
	}

	if rdb != nil {
		go engine.ListenPolicyUpdates(appCtx, rdb, logger, cfg.Policy.SyncChannel, instanceID,
			func() {
				syncCtx, syncCancel := context.WithTimeout(appCtx, 30*time.Second)
				defer syncCancel()
				store.RefreshCached(syncCtx)
			},
			func(identity string) {
				updCtx, updCancel := context.WithTimeout(appCtx, cfg.Policy.LoadTimeout)
				defer updCancel()
				store.Invalidate(updCtx, identity)
			},
		)
	}

	// 6. Каталог категорий
	var cat catalog.Provider
	if cfg.Catalog.Source == "redis" && rdb != nil {
		rcat := catalog.NewRedisSet(rdb, logger)
		seedCtx, seedCancel := context.WithTimeout(appCtx, 10*time.Second)
		if err := rcat.Seed(seedCtx, cfg.Catalog.Categories); err != nil {
			logger.Warn("catalog seed failed", zap.Error(err))
		}
		seedCancel()
		cat = rcat
	} else {
		cat = catalog.NewStatic(cfg.Catalog.Categories)
	}

	// 7. Аутентификация и HTTP-слой
	authSvc, err := service.NewAuthService(cfg.Auth)
	if err != nil {
		logger.Fatal("auth service init failed: RSA key pair is required", zap.Error(err))
	}

	consoleSrv := server.NewConsoleServer(
		cfg,
		logger,
		metrics,
		authSvc,
		handler.NewAuthHandler(authSvc),
		handler.NewPolicyHandler(store, logger),
		handler.NewCatalogHandler(cat, logger),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 8. Запуск и Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("langcatd started",
			zap.String("addr", srv.Addr),
			zap.String("backend", cfg.Storage.Backend),
			zap.String("default_policy", cfg.Policy.DefaultPolicyString()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("langcatd stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	// Гасим фоновые горутины и дожимаем буфер отложенной записи
	cancel()
	persister.Stop()
	logger.Info("langcatd exited properly")
}
