package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/devlance/auth-service/internal/http/handlers"
	"github.com/devlance/auth-service/internal/mailer"
	"github.com/devlance/auth-service/internal/otp"
	"github.com/devlance/auth-service/internal/ratelimit"
	"github.com/devlance/auth-service/internal/repo/postgres"
	"github.com/devlance/auth-service/internal/service"
	"github.com/devlance/auth-service/pkg/config"
	"github.com/devlance/auth-service/pkg/events"
	"github.com/devlance/auth-service/pkg/logger"
	mw "github.com/devlance/auth-service/pkg/middleware"
	"github.com/devlance/auth-service/pkg/tokens"
)

func main() {
	// Missing .env is fine outside development.
	_ = godotenv.Load()

	cfg := config.Load()
	ctx := context.Background()

	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, cfg.Database.URL); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	issuer, err := tokens.NewIssuer(
		cfg.Auth.AccessSecret,
		cfg.Auth.RefreshSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	if err != nil {
		logger.Error("Invalid token configuration", "error", err)
		os.Exit(1)
	}

	// Counter store: Redis when the service runs in multiple instances,
	// in-process counters otherwise.
	var counterStore ratelimit.CounterStore
	if cfg.Redis.Enabled {
		store, err := ratelimit.NewRedisStoreFromURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		counterStore = store
		logger.Info("Rate limiting backed by Redis")
	} else {
		memStore := ratelimit.NewMemoryStore()
		counterStore = memStore
		go sweepLoop(ctx, memStore)
	}
	limiter := ratelimit.NewLimiter(counterStore)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATS.Enabled {
		natsPub, err := events.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		publisher = natsPub
	}
	defer publisher.Close()

	accountRepo := postgres.NewAccountRepository(pool)
	refreshRepo := postgres.NewRefreshRepository(pool)
	otpRepo := postgres.NewOTPRepository(pool)

	engine := otp.NewEngine(otpRepo, selectMailer(cfg), cfg.Auth.OTPTTL)
	authService := service.NewAuthService(accountRepo, refreshRepo, engine, issuer, limiter, publisher)

	go expirySweepLoop(ctx, otpRepo, refreshRepo)

	h := handlers.New(authService, issuer, cfg)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(mw.CORS(cfg.Server.AllowedOrigins))
	h.Routes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down auth service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Auth service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting auth service", "port", cfg.Server.Port, "env", cfg.Server.Env)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Auth service error", "error", err)
		os.Exit(1)
	}
}

func selectMailer(cfg *config.Config) mailer.Service {
	switch {
	case cfg.Email.DevMode:
		logger.Info("Using dev mailer, codes go to the log")
		return mailer.NewDevMailer()
	case cfg.Email.MailerSendKey != "":
		return mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.SMTPFrom)
	default:
		return mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPFrom, cfg.Email.SMTPUser, cfg.Email.SMTPPass)
	}
}

// sweepLoop evicts stale in-process rate limit windows.
func sweepLoop(ctx context.Context, store *ratelimit.MemoryStore) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Sweep()
		}
	}
}

// expirySweepLoop clears expired one-time codes and refresh credentials so
// dead rows do not pile up. Lookups already filter on expiry; this is pure
// housekeeping.
func expirySweepLoop(ctx context.Context, otpRepo postgres.OTPRepository, refreshRepo postgres.RefreshRepository) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := otpRepo.DeleteExpired(ctx); err != nil {
				logger.Warn("One-time code sweep failed", "error", err)
			} else if n > 0 {
				logger.Info("Swept expired one-time codes", "deleted", n)
			}
			if n, err := refreshRepo.DeleteExpired(ctx); err != nil {
				logger.Warn("Refresh credential sweep failed", "error", err)
			} else if n > 0 {
				logger.Info("Swept expired refresh credentials", "deleted", n)
			}
		}
	}
}
