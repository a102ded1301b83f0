package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/onenesskingdom/oneness-ledger/api/controllers"
	"github.com/onenesskingdom/oneness-ledger/api/middleware"
	"github.com/onenesskingdom/oneness-ledger/internal/campaigns"
	"github.com/onenesskingdom/oneness-ledger/internal/exchange"
	"github.com/onenesskingdom/oneness-ledger/internal/ledger"
	"github.com/onenesskingdom/oneness-ledger/internal/posts"
	"github.com/onenesskingdom/oneness-ledger/internal/profiles"
	"github.com/onenesskingdom/oneness-ledger/internal/transactions"
	"github.com/onenesskingdom/oneness-ledger/pkg/config"
	"github.com/onenesskingdom/oneness-ledger/pkg/enums"
	"github.com/onenesskingdom/oneness-ledger/pkg/logger"
	pkgredis "github.com/onenesskingdom/oneness-ledger/pkg/redis"
)

// RedisStore is the slice of the redis client the HTTP layer needs.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Deps carries everything NewRouter mounts.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    RedisStore
	Metrics  http.Handler
	Now      func() time.Time
	Profiles profiles.Service
	Ledger   ledger.Service
	Txns     transactions.Service
	Posts    posts.Service
	Campaign campaigns.Service
	Exchange exchange.Service
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)
	if cfg.App.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.App.RequestTimeout))
	}

	writes := middleware.NewRateLimitPolicy("writes", cfg.App.WriteRateWindow, cfg.App.WriteRateLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"database": d.DB,
			"redis":    d.Redis,
		}, logg))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(writes, d.Redis, logg))
		r.Use(middleware.Idempotency(d.Redis, logg))

		r.Route("/profile", func(r chi.Router) {
			r.Post("/", controllers.CreateProfile(d.Profiles, logg))
			r.Get("/", controllers.GetProfile(d.Profiles, d.Now, logg))
		})
		r.Get("/ledger", controllers.ListLedger(d.Ledger, logg))
		r.Get("/transactions", controllers.ListTransactions(d.Txns, logg))

		r.Post("/posts/{postId}/tip", controllers.TipPost(d.Posts, logg))

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", controllers.Donate(d.Campaign, logg))
			r.Get("/{campaignId}", controllers.GetCampaign(d.Campaign, logg))
		})

		r.Route("/exchange", func(r chi.Router) {
			r.Post("/preview", controllers.PreviewExchange(d.Exchange, logg))
			r.Post("/", controllers.CreateExchange(d.Exchange, logg))
			r.Get("/", controllers.ListExchanges(d.Exchange, logg))
			r.Get("/{requestId}", controllers.GetExchange(d.Exchange, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
		r.Use(middleware.Idempotency(d.Redis, logg))

		r.Post("/exchange/{requestId}/transition", controllers.TransitionExchange(d.Exchange, logg))
	})

	return r
}
