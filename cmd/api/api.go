package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paygate/internal/domain/paymentsrepo"
	"paygate/internal/payments"
	"paygate/internal/ratelimiter"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type application struct {
	config      config
	logger      *zap.SugaredLogger
	payments    *payments.Manager
	records     paymentsrepo.Store
	failures    paymentsrepo.LogsStore
	registry    *prometheus.Registry
	rateLimiter ratelimiter.Limiter
}

type config struct {
	addr        string
	env         string
	db          dbConfig
	redis       redisConfig
	auth        authConfig
	httpTimeout time.Duration
	providers   string
	rateLimiter ratelimiter.Config
}

type authConfig struct {
	basic basicConfig
}

type basicConfig struct {
	user     string
	passHash string // bcrypt
}

type dbConfig struct {
	addr        string
	maxConns    int32
	maxIdleTime string
}

type redisConfig struct {
	addr     string
	password string
	db       int
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	// Provider round trips are bounded by the outbound client timeout; this
	// caps the whole request.
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", app.healthCheckHandler)

		r.With(app.BasicAuthMiddleware()).Get("/metrics",
			promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}).ServeHTTP)

		r.Route("/payments", func(r chi.Router) {
			r.Use(app.CorrelationMiddleware)
			r.Use(app.RateLimiterMiddleware)

			r.Get("/providers", app.listProvidersHandler)
			r.Post("/{provider}/pay", app.payHandler)
			// Providers call back with GET redirects or POST webhooks.
			r.Get("/{provider}/verify", app.verifyHandler)
			r.Post("/{provider}/verify", app.verifyHandler)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(app.BasicAuthMiddleware())
			r.Get("/payments", app.adminListPaymentsHandler)
			r.Get("/payments/failures", app.adminListFailuresHandler)
			r.Get("/payments/{code}", app.adminGetPaymentHandler)
			r.Post("/payments/{provider}/refund", app.adminRefundHandler)
		})
	})

	return r
}

func (app *application) run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 90,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	// Implementing graceful shutdown
	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env, "providers", app.payments.Providers())

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
