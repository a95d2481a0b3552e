package http

import (
	"net/http"

	_ "github.com/DRSN-tech/visual-matcher/docs" // регистрация swagger-спецификации
	"github.com/DRSN-tech/visual-matcher/internal/cfg"
	"github.com/DRSN-tech/visual-matcher/internal/usecase"
	"github.com/DRSN-tech/visual-matcher/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

type Router struct {
	router *chi.Mux
	logger logger.Logger
}

func NewRouter(router *chi.Mux, logger logger.Logger) *Router {
	return &Router{router: router, logger: logger}
}

// Init регистрирует middleware и маршруты. metrics может быть nil, тогда /metrics не публикуется.
func (r *Router) Init(matchUC usecase.MatchUC, metrics http.Handler, cfg *cfg.Config) {
	r.router.Use(middleware.RequestID)
	r.router.Use(middleware.RealIP)
	r.router.Use(middleware.Recoverer)
	r.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Http.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	r.router.Use(limitBody(cfg.Http.MaxRequestSize))

	matchHandler := NewMatchHandler(matchUC, r.logger, cfg.Match, cfg.Images.MaxBytes)

	r.router.Get("/health", matchHandler.health)
	if metrics != nil {
		r.router.Method(http.MethodGet, "/metrics", metrics)
	}
	r.router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.router.Route("/api/v1", func(v1 chi.Router) {
		registerMatchRoutes(v1, matchHandler)
	})
}

func registerMatchRoutes(router chi.Router, h *MatchHandler) {
	router.Post("/match", h.match)
	router.Get("/categories", h.categories)
}

// limitBody ограничивает размер тела запроса. Превышение возвращается из чтения тела как *http.MaxBytesError.
func limitBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
