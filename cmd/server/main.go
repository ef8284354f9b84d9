package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/rjsfud9894/paper-trade/internal/auth"
	"github.com/rjsfud9894/paper-trade/internal/catalog"
	"github.com/rjsfud9894/paper-trade/internal/metrics"
	"github.com/rjsfud9894/paper-trade/internal/portfolio"
	"github.com/rjsfud9894/paper-trade/internal/quote"
	"github.com/rjsfud9894/paper-trade/internal/store"
	"github.com/rjsfud9894/paper-trade/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		slog.Warn("JWT_SECRET not set, using insecure development secret")
		secret = "dev-secret"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Instrument seed ---
	if err := catalog.Seed(context.Background(), st); err != nil {
		slog.Error("instrument seeding failed", "err", err)
		os.Exit(1)
	}

	// --- Quote oracle ---
	var quotes quote.Provider
	if os.Getenv("DISABLE_QUOTES") == "" {
		quotes = quote.NewYahooProvider()
	}

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Services ---
	authSvc := auth.NewService(st, []byte(secret))
	catalogSvc := catalog.NewService(st, quotes)
	tradeSvc := trade.NewService(st, wsHub)
	portfolioAgg := portfolio.NewAggregator(st, quotes)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"paper-trade"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	// WebSocket feed of settled trades.
	r.Get("/ws", wsHub.HandleWS)

	// Authentication.
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authSvc.HandleRegister)
		r.Post("/login", authSvc.HandleLogin)
		r.With(authSvc.Middleware).Get("/me", authSvc.HandleMe)
	})

	// Instrument catalog (public).
	r.Route("/stocks", func(r chi.Router) {
		r.Get("/", catalogSvc.HandleList)
		r.Post("/", catalogSvc.HandleCreate)
		r.Get("/{symbol}", catalogSvc.HandleGet)
		r.Get("/{symbol}/quote", catalogSvc.HandleQuote)
	})

	// Trading (authenticated).
	r.Route("/trades", func(r chi.Router) {
		r.Use(authSvc.Middleware)
		r.Post("/buy", tradeSvc.HandleBuy)
		r.Post("/sell", tradeSvc.HandleSell)
		r.Get("/history", tradeSvc.HandleHistory)
		r.Get("/holdings", portfolioAgg.HandleHoldings)
	})

	// Portfolio (authenticated).
	r.Route("/portfolio", func(r chi.Router) {
		r.Use(authSvc.Middleware)
		r.Get("/summary", portfolioAgg.HandleSummary)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("paper-trade listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down paper-trade...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("paper-trade stopped")
}
