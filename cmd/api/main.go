package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/tapcard/tapcard-api/internal/app"
	"github.com/tapcard/tapcard-api/internal/config"
	"github.com/tapcard/tapcard-api/internal/domain/balance"
	"github.com/tapcard/tapcard-api/internal/domain/card"
	"github.com/tapcard/tapcard-api/internal/domain/payment"
	"github.com/tapcard/tapcard-api/internal/domain/split"
	"github.com/tapcard/tapcard-api/internal/domain/topup"
	"github.com/tapcard/tapcard-api/internal/domain/wallet"
	"github.com/tapcard/tapcard-api/internal/middleware"
	"github.com/tapcard/tapcard-api/internal/pkg/jwt"
	"github.com/tapcard/tapcard-api/internal/pkg/logger"
	pkgresponse "github.com/tapcard/tapcard-api/internal/pkg/response"
)

const version = "1.0.0"

// handlers are the HTTP surfaces mounted under /api/v1
type handlers struct {
	cards    *card.Handler
	balances *balance.Handler
	payments *payment.Handler
	topups   *topup.Handler
	splits   *split.Handler
	wallet   *wallet.Handler
}

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env, LogFile: cfg.LogFile}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("currency", cfg.Currency).
		Msg("Starting TapCard API")

	c, err := app.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open components")
	}
	defer c.Close()

	archive, err := app.NewArchive(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open reconciliation archive")
	}

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- WebSocket hub ----------
	hub := topup.NewHub(c.Redis)
	go hub.Run()
	defer hub.Shutdown()

	// ---------- Services ----------
	cardService := card.NewService(card.NewRepository(c.DB))
	topupService := c.TopUpService(hub)

	paymentService := payment.NewService(
		cardService,
		c.Accounts,
		c.Ledger,
		topupService,
		payment.NewAuditRepository(c.DB),
		payment.Config{PinThreshold: cfg.PinThreshold, Currency: cfg.Currency},
	)
	paymentService.SetNotifier(c.SMS)

	booker := split.NewBooker(c.Ledger, cfg.Currency)
	booker.SetArchive(archive)
	splitService := split.NewService(booker, c.Accounts, cfg.PlatformBalanceID, cfg.PartnerBalanceID)

	walletService := wallet.NewService(wallet.NewRepository(c.DB), c.Accounts, c.Ledger, cfg.Currency)
	walletService.SetNotifier(c.SMS)

	// ---------- Handlers ----------
	h := handlers{
		cards:    card.NewHandler(cardService),
		balances: balance.NewHandler(c.Accounts),
		payments: payment.NewHandler(paymentService),
		topups:   topup.NewHandler(topupService, hub, cfg.AllowedOrigins),
		splits:   split.NewHandler(splitService),
		wallet:   wallet.NewHandler(walletService),
	}

	router := newRouter(cfg, h, middleware.Auth(jwtService), middleware.Idempotency(c.Redis))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

func newRouter(cfg *config.Config, h handlers, authMiddleware, idempotency func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// Browsers cannot set headers on websocket upgrades
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		if token := r.URL.Query().Get("token"); token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		authMiddleware(http.HandlerFunc(h.topups.WebSocket)).ServeHTTP(w, r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/cards", h.cards.Routes(authMiddleware))
		r.Mount("/balances", h.balances.Routes(authMiddleware))
		r.Mount("/payments", h.payments.Routes(authMiddleware, idempotency))
		r.Mount("/momo", h.topups.Routes(authMiddleware))
		r.Mount("/orders", h.splits.Routes(authMiddleware))
		r.Mount("/wallet", h.wallet.Routes(authMiddleware, idempotency))
	})

	return r
}
