package handler

import (
	"net/http"

	"proxpay/internal/middleware"
	"proxpay/pkg/config"
	"proxpay/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

// NewRouter assembles the HTTP surface with the standard middleware chain.
// The rate limiter is attached only when a Redis client is available.
func NewRouter(
	cfg *config.Config,
	txHandler *TransactionHandler,
	regHandler *RegistrationHandler,
	wsHandler *WSHandler,
	redisClient *redis.Client,
	log logger.Logger,
) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.CORS)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)
	r.Use(middleware.BodyLimit(1 << 20))
	if redisClient != nil {
		limiter := middleware.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		r.Use(limiter.Limit)
	}

	// Preflight requests must match a route for the middleware chain to
	// run; the CORS middleware answers them before this handler is reached.
	r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/transaction/validate", txHandler.ValidateTransaction).Methods("POST")
	api.HandleFunc("/transaction/verify-2fa", txHandler.VerifyTwoFactor).Methods("POST")
	api.HandleFunc("/transactions/history", txHandler.GetHistory).Methods("GET")

	api.HandleFunc("/card/register", regHandler.RegisterCard).Methods("POST")
	api.HandleFunc("/register-device", regHandler.RegisterDevice).Methods("POST")
	api.HandleFunc("/prove-location", regHandler.ProveLocation).Methods("POST")

	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "proxpay-api",
		})
	}).Methods("GET")

	r.HandleFunc("/ws", wsHandler.ServeWS)

	return r
}
