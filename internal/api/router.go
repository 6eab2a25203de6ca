/**
 * @description
 * HTTP router setup for the momo-service using go-chi/chi.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the auth settings of the router.
type RouterConfig struct {
	JWTSecret      string
	JWTAudience    string
	InternalAPIKey string
	AllowedOrigins []string
}

// NewRouter creates a new Chi router and registers the momo-service routes.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	// An empty origin list would allow every origin, so CORS is only enabled
	// for explicitly configured origins.
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key", callbackSignatureHeader},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// MoMo sends callbacks with POST or PUT depending on the product.
	r.Post("/webhooks/momo", h.handleMomoWebhook)
	r.Put("/webhooks/momo", h.handleMomoWebhook)

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
		r.Post("/auto-savings/execute", h.handleExecuteAutoSavings)
		r.Post("/payments/reconcile", h.handleReconcile)
	})

	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(cfg.JWTSecret, cfg.JWTAudience))
		r.Post("/payments/topups", h.handleInitiateTopUp)
		r.Get("/payments/topups/{referenceId}/status", h.handleTopUpStatus)
		r.Post("/payments/withdrawals", h.handleInitiateWithdrawal)
		r.Get("/payments/withdrawals/{referenceId}/status", h.handleWithdrawalStatus)
	})

	return r
}
