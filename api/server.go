/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  unique ID per request, echoed in the access log
  2. RealIP:     client address from X-Forwarded-For / X-Real-IP
  3. Logger:     zap access log (api.http)
  4. Recoverer:  panic recovery (500 instead of crash)
  5. CORS:       cross-origin requests for the HR frontend

ROUTE GROUPS:
  /api/accruals/*       Monthly batch, CCL expiry, run history
  /api/annual-reset/*   CL reset
  /api/employees/*      Employees, ledger, balances, settings, attendance
  /api/ccl/*            Compensatory leave workflow
  /api/cycles           Payroll cycle lookup
  /api/holidays         Company holidays
  /healthz              Liveness and DB ping

SECURITY NOTE:
  No authentication middleware. The CCL actor is taken from request headers
  and must be set by an authenticating proxy.

SEE ALSO:
  - handlers.go:        handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	AllowedOrigins []string
}

// NewRouter creates a router with every route configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderActorID, HeaderActorRoles},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/accruals", func(r chi.Router) {
			r.Post("/run", h.RunAccruals)
			r.Post("/expire-ccl", h.ExpireCCL)
			r.Get("/runs", h.ListRuns)
		})

		r.Route("/annual-reset", func(r chi.Router) {
			r.Post("/run", h.RunAnnualReset)
			r.Get("/next", h.NextReset)
		})

		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetEmployee)
				r.Get("/ledger", h.GetLedger)
				r.Post("/ledger", h.PostTransaction)
				r.Post("/ledger/batch", h.PostTransactions)
				r.Post("/adjustments", h.PostAdjustment)
				r.Get("/balances", h.GetBalances)
				r.Get("/reconcile", h.Reconcile)
				r.Post("/reconcile", h.SyncBalances)
				r.Get("/settings", h.GetEmployeeSettings)
				r.Get("/ccl", h.ListEmployeeCCL)
				r.Post("/punches", h.RecordPunch)
				r.Post("/on-duty", h.RecordOnDuty)
			})
		})

		r.Route("/ccl", func(r chi.Router) {
			r.Post("/", h.FileCCL)
			r.Post("/drafts", h.SaveCCLDraft)
			r.Get("/pending", h.PendingCCL)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetCCL)
				r.Post("/submit", h.SubmitCCL)
				r.Post("/approve", h.ApproveCCL)
				r.Post("/reject", h.RejectCCL)
				r.Post("/cancel", h.CancelCCL)
				r.Post("/use", h.UseCCL)
			})
		})

		r.Get("/cycles", h.GetCycle)
		r.Get("/holidays", h.ListHolidays)
		r.Post("/holidays", h.CreateHoliday)
	})

	return r
}

// Health pings the database.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Code: "unavailable", Error: "database unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger writes one structured access-log line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("remote", r.RemoteAddr),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				}
				if ww.Status() >= http.StatusInternalServerError {
					logger.Warn("request", fields...)
					return
				}
				logger.Info("request", fields...)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
