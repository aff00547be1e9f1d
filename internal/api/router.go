package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"energybot/internal/models"
	"energybot/internal/reports"
)

// StatsSource provides the admin dashboard numbers.
type StatsSource interface {
	Stats(ctx context.Context) (models.Stats, error)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies содержит зависимости для обработчиков API.
type Dependencies struct {
	Stats   StatsSource
	Export  reports.Source
	DB      Pinger
	Webhook http.Handler

	AdminToken     string
	BotToken       string // для проверки initData из Telegram WebApp
	OwnerChatID    int64
	InitDataMaxAge time.Duration // 0 отключает проверку auth_date
	CORSOrigins    []string

	Log *slog.Logger
}

// NewRouter настраивает все маршруты HTTP-сервера.
func NewRouter(deps Dependencies) *chi.Mux {
	h := &handlers{deps: deps, log: deps.Log.With("component", "api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	if deps.Webhook != nil {
		r.Method(http.MethodPost, "/webhook/yookassa", deps.Webhook)
	}

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSOrigins,
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Telegram-Auth"},
			ExposedHeaders:   []string{"Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
		r.Use(AdminMiddleware(deps.AdminToken, deps.BotToken, deps.OwnerChatID, deps.InitDataMaxAge, h.log))

		r.Get("/stats", h.stats)
		r.Get("/export.xlsx", h.export)
	})
	return r
}
