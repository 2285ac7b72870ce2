/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. CSRF:       Only when a key is configured; JSON bodies are exempt
  6. Actor:      401 on writes without an actor when RequireActor is set

ROUTE GROUPS:
  /api/grades/*, /api/tahfidz-grades/*   Grade sheets
  /api/payments/*                        Payment sheets and generation
  /api/attendance                        Daily attendance
  /api/permissions/*                     Leave requests
  /api/students/*                        Roster import and listing
  /api/export/*                          CSV exports
  /api/scenarios/*                       Demo data (only when enabled)
  /api/views/*                           Stale view bookkeeping

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/csrf"

	"github.com/warp/records-engine/config"
	"github.com/warp/records-engine/generic"
)

// RouterOptions configures the web protections.
type RouterOptions struct {
	CORSOrigins []string
	// CSRFKey is a 32-byte key; empty disables CSRF protection.
	CSRFKey []byte
	// Scenarios mounts the demo scenario endpoints, which reset the store.
	Scenarios bool
}

// OptionsFor derives the router options from the server config.
func OptionsFor(sc config.ServerConfig) RouterOptions {
	return RouterOptions{
		CORSOrigins: sc.CORSOrigins,
		CSRFKey:     []byte(sc.CSRFKey),
		Scenarios:   sc.Demo,
	}
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", "X-Actor-ID", "X-CSRF-Token"},
		AllowCredentials: true,
	}))
	if len(opts.CSRFKey) > 0 {
		r.Use(CSRF(opts.CSRFKey, opts.CORSOrigins))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(h.RequireActorMiddleware)

		r.Post("/grades/batch", h.SubmitBatch(generic.EntityGrade))
		r.Post("/tahfidz-grades/batch", h.SubmitBatch(generic.EntityTahfidzGrade))
		r.Post("/attendance", h.SubmitBatch(generic.EntityAttendance))

		r.Route("/payments", func(r chi.Router) {
			r.Post("/bulk", h.SubmitBatch(generic.EntityPayment))
			r.Post("/generate", h.GeneratePayments)
		})

		r.Route("/permissions", func(r chi.Router) {
			r.Get("/", h.ListPermissions)
			r.Post("/", h.CreatePermission)
			r.Get("/pending", h.ListPendingPermissions)
			r.Get("/{id}", h.GetPermission)
			r.Post("/{id}/approve", h.ApprovePermission)
			r.Post("/{id}/reject", h.RejectPermission)
		})

		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.ListStudents)
			r.Post("/import", h.ImportStudents)
		})

		r.Get("/export/{entity}", h.ExportEntity)

		r.Route("/views", func(r chi.Router) {
			r.Get("/stale", h.ListStaleViews)
			r.Post("/clear", h.ClearView)
		})

		if opts.Scenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		}

		r.Get("/health", h.CheckHealth)
		r.Get("/csrf-token", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"token": csrf.Token(r)})
		})
	})

	return r
}

// CSRF protects non-JSON submissions such as YAML bodies. JSON requests
// are exempt.
func CSRF(authKey []byte, trustedOrigins []string) func(http.Handler) http.Handler {
	hosts := make([]string, 0, len(trustedOrigins))
	for _, o := range trustedOrigins {
		hosts = append(hosts, strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://"))
	}
	protect := csrf.Protect(
		authKey,
		csrf.Secure(false),
		csrf.Path("/"),
		csrf.TrustedOrigins(hosts),
	)

	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
				next.ServeHTTP(w, r)
				return
			}
			protected.ServeHTTP(w, r)
		})
	}
}
