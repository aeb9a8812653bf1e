package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proxpay/internal/geo"
	"proxpay/internal/handler"
	"proxpay/internal/phoneverify"
	"proxpay/internal/policy"
	"proxpay/internal/proof"
	"proxpay/internal/registry"
	"proxpay/internal/stepup"
	"proxpay/internal/store"
	"proxpay/internal/transaction"
	"proxpay/internal/ws"
	"proxpay/pkg/config"
	"proxpay/pkg/logger"
	"proxpay/pkg/validator"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("proxpay-api")
	val := validator.New()

	log.Info("Starting ProxyPay API", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	// Registries. All state is in-memory and lost on restart.
	secretSeed := cfg.Device.SecretSeed
	if secretSeed == "" {
		secretSeed = registry.DefaultSecretSeed
	}
	devices := registry.NewDeviceRegistry(registry.DeriveSharedSecret(secretSeed))
	cards := registry.NewCardRegistry()
	sessions := registry.NewSessionRegistry()

	// Domain collaborators.
	geoSvc := geo.NewService(cfg.Policy.MaxDistanceMiles)
	decisionPolicy := policy.New(cfg.Policy)
	verifier := proof.NewVerifier(devices, geoSvc, decisionPolicy, cfg.Protocol.ProofMaxAge)

	// Transaction state machine.
	pending := store.NewPendingStore()
	history := store.NewHistoryStore()
	hub := ws.NewHub(log)
	coordinator := transaction.NewCoordinator(
		sessions, verifier, pending, history, hub,
		cfg.Protocol.ConfirmationTimeout, log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coordinator.StartSweeper(ctx, cfg.Protocol.PendingSweepEvery, cfg.Protocol.PendingMaxAge)

	// Phone verification provider for the step-up path.
	provider := buildProvider(cfg, log)
	stepupSvc := stepup.NewService(provider, cfg.Protocol.StepUpTTL, log)

	// Optional Redis for rate limiting.
	redisClient := buildRedis(cfg, log)

	txHandler := handler.NewTransactionHandler(cards, geoSvc, stepupSvc, coordinator, val, cfg.Policy, cfg.Cards, log)
	regHandler := handler.NewRegistrationHandler(cards, devices, verifier, val, cfg.Cards, log)
	wsHandler := handler.NewWSHandler(hub, devices, sessions, coordinator, val, log)

	router := handler.NewRouter(cfg, txHandler, regHandler, wsHandler, redisClient, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("ProxyPay API started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down ProxyPay API...", nil)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("ProxyPay API stopped gracefully", nil)
}

// buildProvider selects the phone-verification provider. Twilio is used
// only when fully configured; otherwise the local HOTP provider logs codes.
func buildProvider(cfg *config.Config, log logger.Logger) phoneverify.Provider {
	if cfg.PhoneVerify.Provider == "twilio" {
		tw := phoneverify.NewTwilioProvider(
			cfg.PhoneVerify.TwilioAccountSID,
			cfg.PhoneVerify.TwilioAuthToken,
			cfg.PhoneVerify.TwilioVerifySID,
			log,
		)
		if tw.Configured() {
			log.Info("Using Twilio Verify provider", nil)
			return tw
		}
		log.Warn("Twilio provider selected but not configured, falling back to local", nil)
	}

	log.Info("Using local HOTP verification provider", nil)
	return phoneverify.NewLocalProvider(cfg.PhoneVerify.LocalProviderSeed, log)
}

// buildRedis connects to Redis when configured. Returns nil on failure so
// the service runs without rate limiting rather than not at all.
func buildRedis(cfg *config.Config, log logger.Logger) *redis.Client {
	if cfg.Redis.URL == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("Redis unavailable, rate limiting disabled", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	log.Info("Connected to Redis", map[string]interface{}{"addr": cfg.Redis.URL})
	return client
}
