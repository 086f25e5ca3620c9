package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"finanzas/internal/budget"
	"finanzas/internal/cache"
	"finanzas/internal/connectivity"
	"finanzas/internal/dataapi"
	"finanzas/internal/log"
	"finanzas/internal/offline"
	"finanzas/internal/report"
	"finanzas/internal/services"
)

// Deps are the components the API serves. Pinger may be nil.
type Deps struct {
	Budgets      *budget.Manager
	Reports      *report.Generator
	Transactions *services.TransactionService
	Families     *services.FamilyService
	Stats        *services.StatsService
	Queue        *offline.Queue
	Monitor      *connectivity.Monitor
	Cache        *cache.Store
	Pinger       dataapi.Pinger

	CORSOrigins []string
	// WriteLimit caps mutating requests per client IP and minute.
	WriteLimit int
	Now        func() time.Time
	Logger     *log.Logger
}

type Server struct {
	http.Server
	limiter      *rateLimiter
	shutdownOnce sync.Once
}

type handlers struct {
	Deps
	logger *log.Logger
}

// NewServer wires the routes and returns a ready-to-run server.
func NewServer(addr string, d Deps) (*Server, error) {
	if d.Budgets == nil || d.Reports == nil || d.Transactions == nil || d.Families == nil ||
		d.Stats == nil || d.Queue == nil || d.Monitor == nil || d.Cache == nil {
		return nil, errors.New("http: every service dependency is required")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = log.Nop()
	}
	logger := d.Logger.WithComponent(log.ComponentHTTP)
	h := &handlers{Deps: d, logger: logger}
	limiter := newRateLimiter(d.WriteLimit, d.Now)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           h.routes(limiter),
			ReadHeaderTimeout: 10 * time.Second,
		},
		limiter: limiter,
	}
	go limiter.startCleanup(5 * time.Minute)
	return s, nil
}

func (h *handlers) routes(limiter *rateLimiter) http.Handler {
	origins := h.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(h.logger))
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", userHeader},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.health)
	r.Get("/readyz", h.ready)

	r.Route("/api", func(r chi.Router) {
		r.Use(limiter.limitWrites)

		r.Get("/categories", h.listCategories)
		r.Route("/connectivity", func(r chi.Router) {
			r.Get("/", h.connectivityStatus)
			r.Post("/events", h.connectivityEvent)
		})
		r.Route("/offline", func(r chi.Router) {
			r.Get("/stats", h.offlineStats)
			r.Get("/actions", h.offlineActions)
			r.Post("/drain", h.offlineDrain)
			r.Delete("/failed", h.offlineClearFailed)
		})
		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", h.cacheStats)
			r.Get("/entries", h.cacheEntries)
			r.Delete("/", h.cacheClear)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Route("/budgets", func(r chi.Router) {
				r.Get("/", h.listBudgets)
				r.Post("/", h.createBudget)
				r.Get("/summary", h.budgetSummary)
				r.Get("/alerts", h.budgetAlerts)
				r.Get("/check", h.checkBudget)
				r.Get("/{id}/progress", h.budgetProgress)
				r.Patch("/{id}", h.updateBudget)
				r.Post("/{id}/deactivate", h.deactivateBudget)
				r.Delete("/{id}", h.deleteBudget)
			})
			r.Get("/reports/{period}", h.getReport)
			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", h.listTransactions)
				r.Post("/", h.createTransaction)
				r.Post("/batch", h.createTransactions)
				r.Patch("/batch", h.updateTransactions)
				r.Patch("/{id}", h.updateTransaction)
				r.Delete("/{id}", h.deleteTransaction)
			})
			r.Get("/stats", h.monthStats)
			r.Route("/families", func(r chi.Router) {
				r.Post("/", h.createFamily)
				r.Get("/{id}", h.getFamily)
				r.Post("/{id}/members", h.joinFamily)
			})
		})
	})
	return r
}

// Shutdown stops background cleanup and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ready reports whether the data API answers. The service keeps working
// offline, so a failed ping is reported but is not fatal.
func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	status := h.Monitor.Status()
	if h.Pinger != nil {
		if err := h.Pinger.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"ready": false, "online": status.Online, "error": err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true, "online": status.Online})
}
