package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/custshop/custshop/internal/auth"
	"github.com/custshop/custshop/internal/cart"
	"github.com/custshop/custshop/internal/catalog"
	"github.com/custshop/custshop/internal/designs"
	"github.com/custshop/custshop/internal/observability"
	"github.com/custshop/custshop/internal/orders"
	"github.com/custshop/custshop/internal/platform/httpx"
	"github.com/custshop/custshop/internal/roles"
	"github.com/custshop/custshop/internal/users"
	"github.com/custshop/custshop/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	Authenticator *auth.Authenticator
	Metrics       *observability.Metrics
	Pool          *pgxpool.Pool
	Redis         *redis.Client

	AuthHandler    *auth.Handler
	RolesHandler   *roles.Handler
	UsersHandler   *users.Handler
	CatalogHandler *catalog.Handler
	DesignsHandler *designs.Handler
	CartHandler    *cart.Handler
	OrdersHandler  *orders.Handler
	JobHandler     *jobs.Handler
}

// NewRouter constructs the chi.Router with CustShop defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:        params.Logger,
		Config:        params.Config,
		Metrics:       params.Metrics,
		Authenticator: params.Authenticator,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})

	r.Get("/healthz", healthz(params.Pool, params.Redis))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
		r.Route("/permissions", params.RolesHandler.MountPermissionRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.CatalogHandler != nil {
		params.CatalogHandler.MountRoutes(r)
	}
	if params.DesignsHandler != nil {
		r.Route("/designs", params.DesignsHandler.MountRoutes)
	}
	if params.CartHandler != nil {
		r.Route("/cart", params.CartHandler.MountRoutes)
	}
	if params.OrdersHandler != nil {
		r.Route("/orders", params.OrdersHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	return r
}

type healthStatus struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
}

// healthz pings the database and Redis when they are configured.
func healthz(pool *pgxpool.Pool, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		out := healthStatus{Status: "ok", Services: map[string]string{}}
		if pool != nil {
			out.Services["postgres"] = probe(pool.Ping(ctx))
		}
		if rdb != nil {
			out.Services["redis"] = probe(rdb.Ping(ctx).Err())
		}
		status := http.StatusOK
		for _, s := range out.Services {
			if s != "ok" {
				out.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		httpx.JSON(w, status, out)
	}
}

func probe(err error) string {
	if err != nil {
		return "down"
	}
	return "ok"
}
