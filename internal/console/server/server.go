package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/RainBowCreation/LangCategory/internal/console/handler"
	"github.com/RainBowCreation/LangCategory/internal/engine"
	"github.com/RainBowCreation/LangCategory/internal/infra"
	"github.com/RainBowCreation/LangCategory/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Интерфейс для проверки токенов (RS256)
	// Реализуется через embedding BaseValidator в AuthService
	authValidator auth.TokenValidator

	// Обработчики
	authHandler    *handler.AuthHandler    // /auth/token
	policyHandler  *handler.PolicyHandler  // /v1/decide + /v1/policies
	catalogHandler *handler.CatalogHandler // /v1/categories

	metrics        *engine.Metrics
	metricsHandler http.Handler // /metrics (promhttp)
}

// NewConsoleServer инициализирует HTTP-слой сервиса со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	metrics *engine.Metrics,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	policyH *handler.PolicyHandler,
	catalogH *handler.CatalogHandler,
	metricsH http.Handler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:         chi.NewRouter(),
		logger:         logger.Named("http"),
		cfg:            cfg,
		authValidator:  validator,
		authHandler:    authH,
		policyHandler:  policyH,
		catalogHandler: catalogH,
		metrics:        metrics,
		metricsHandler: metricsH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(engine.TracingMiddleware)
	r.Use(engine.MetricsMiddleware(s.metrics))
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Горячий путь решений: это хук для внешних систем, токен здесь
		// стоил бы дороже самого решения
		r.Get("/v1/decide", s.policyHandler.Decide)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		if s.metricsHandler != nil {
			r.Handle("/metrics", s.metricsHandler)
		}
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		// Подключаем универсальный Middleware только для этой группы
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Политики идентичностей: просмотр и мутации 1:1 с переходами
		r.Route("/v1/policies/{identity}", func(r chi.Router) {
			r.Get("/", s.policyHandler.Show)
			r.Post("/enable-all", s.policyHandler.EnableAll)
			r.Post("/disable-all", s.policyHandler.DisableAll)
			r.Post("/enable", s.policyHandler.Enable)
			r.Post("/disable", s.policyHandler.Disable)
			r.Post("/enable-only", s.policyHandler.EnableOnly)
			r.Post("/disable-only", s.policyHandler.DisableOnly)
			r.Post("/toggle", s.policyHandler.Toggle)
		})

		// Справочник категорий
		r.Get("/v1/categories", s.catalogHandler.List)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
