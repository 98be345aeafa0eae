package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"paygate/internal/cache"
	"paygate/internal/db"
	"paygate/internal/domain/paymentsrepo"
	"paygate/internal/httpx"
	"paygate/internal/metrics"
	"paygate/internal/payments"
	"paygate/internal/ratelimiter"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	defaultRequests := 60
	defaultEnabled := true

	requestsPerTimeFrame := defaultRequests
	if val, exists := os.LookupEnv("RATELIMITER_REQUESTS_COUNT"); exists {
		if parsedVal, err := strconv.Atoi(val); err == nil && parsedVal > 0 {
			requestsPerTimeFrame = parsedVal
		} else {
			fmt.Println("Invalid RATELIMITER_REQUESTS_COUNT, defaulting to", defaultRequests)
		}
	}

	enabled := defaultEnabled
	if val, exists := os.LookupEnv("RATE_LIMITER_ENABLED"); exists {
		if parsedVal, err := strconv.ParseBool(val); err == nil {
			enabled = parsedVal
		} else {
			fmt.Println("Invalid RATE_LIMITER_ENABLED, defaulting to", defaultEnabled)
		}
	}

	return ratelimiter.Config{
		RequestsPerTimeFrame: requestsPerTimeFrame,
		TimeFrame:            5 * time.Second,
		Enabled:              enabled,
	}
}

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)

	level := zapcore.InfoLevel

	core := zapcore.NewCore(consoleEncoder, zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), level)

	logger := zap.New(core)

	return logger.Sugar(), nil
}

var version = "1.0.0"

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		fmt.Printf("Invalid %s, defaulting to %d\n", key, fallback)
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		fmt.Printf("Invalid %s, defaulting to %s\n", key, fallback)
	}
	return fallback
}

// loadProviders parses the comma separated PAYMENT_PROVIDERS list.
func loadProviders(raw string) ([]payments.Provider, error) {
	var out []payments.Provider
	var errs error
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p, err := payments.ParseProvider(name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out = append(out, p)
	}
	return out, errs
}

// loadPaymentsConfig reads every provider section. Unset keys stay empty so
// the struct defaults apply.
func loadPaymentsConfig() payments.Config {
	return payments.Config{
		App: payments.App{
			VerifyURL: os.Getenv("PAYMENT_VERIFY_URL"),
			Mode:      os.Getenv("PAYMENT_MODE"),
			Name:      os.Getenv("APP_NAME"),
		},
		Fawry: payments.FawryConfig{
			URL:       os.Getenv("FAWRY_URL"),
			PayURL:    os.Getenv("FAWRY_PAY_URL"),
			Merchant:  os.Getenv("FAWRY_MERCHANT"),
			Secret:    os.Getenv("FAWRY_SECRET"),
			ReturnURL: os.Getenv("FAWRY_RETURN_URL"),
			Language:  os.Getenv("FAWRY_LANGUAGE"),
		},
		HyperPay: payments.HyperPayConfig{
			URL:      os.Getenv("HYPERPAY_URL"),
			BaseURL:  os.Getenv("HYPERPAY_BASE_URL"),
			Token:    os.Getenv("HYPERPAY_TOKEN"),
			Currency: os.Getenv("HYPERPAY_CURRENCY"),
			CreditID: os.Getenv("HYPERPAY_CREDIT_ID"),
			MadaID:   os.Getenv("HYPERPAY_MADA_ID"),
			AppleID:  os.Getenv("HYPERPAY_APPLE_ID"),
		},
		Kashier: payments.KashierConfig{
			URL:        os.Getenv("KASHIER_URL"),
			AccountKey: os.Getenv("KASHIER_ACCOUNT_KEY"),
			IframeKey:  os.Getenv("KASHIER_IFRAME_KEY"),
			Token:      os.Getenv("KASHIER_TOKEN"),
			APIURL:     os.Getenv("KASHIER_API_URL"),
			Currency:   os.Getenv("KASHIER_CURRENCY"),
		},
		Opay: payments.OpayConfig{
			BaseURL:    os.Getenv("OPAY_BASE_URL"),
			SecretKey:  os.Getenv("OPAY_SECRET_KEY"),
			PublicKey:  os.Getenv("OPAY_PUBLIC_KEY"),
			MerchantID: os.Getenv("OPAY_MERCHANT_ID"),
			Country:    os.Getenv("OPAY_COUNTRY"),
			Currency:   os.Getenv("OPAY_CURRENCY"),
		},
		PayPal: payments.PayPalConfig{
			BaseURL:  os.Getenv("PAYPAL_BASE_URL"),
			ClientID: os.Getenv("PAYPAL_CLIENT_ID"),
			Secret:   os.Getenv("PAYPAL_SECRET"),
			Currency: os.Getenv("PAYPAL_CURRENCY"),
		},
		Paymob: payments.PaymobConfig{
			BaseURL:             os.Getenv("PAYMOB_BASE_URL"),
			APIKey:              os.Getenv("PAYMOB_API_KEY"),
			IntegrationID:       os.Getenv("PAYMOB_INTEGRATION_ID"),
			WalletIntegrationID: os.Getenv("PAYMOB_WALLET_INTEGRATION_ID"),
			IframeID:            os.Getenv("PAYMOB_IFRAME_ID"),
			HMAC:                os.Getenv("PAYMOB_HMAC"),
			Currency:            os.Getenv("PAYMOB_CURRENCY"),
		},
		Paytabs: payments.PaytabsConfig{
			BaseURL:   os.Getenv("PAYTABS_BASE_URL"),
			ProfileID: os.Getenv("PAYTABS_PROFILE_ID"),
			ServerKey: os.Getenv("PAYTABS_SERVER_KEY"),
			Currency:  os.Getenv("PAYTABS_CURRENCY"),
			Lang:      os.Getenv("PAYTABS_LANG"),
			HashSalt:  os.Getenv("PAYTABS_HASH_SALT"),
		},
		Tap: payments.TapConfig{
			BaseURL:          os.Getenv("TAP_BASE_URL"),
			SecretKey:        os.Getenv("TAP_SECRET_KEY"),
			PublicKey:        os.Getenv("TAP_PUBLIC_KEY"),
			Currency:         os.Getenv("TAP_CURRENCY"),
			LangCode:         os.Getenv("TAP_LANG_CODE"),
			PhoneCountryCode: os.Getenv("TAP_PHONE_COUNTRY_CODE"),
		},
		Thawani: payments.ThawaniConfig{
			URL:            os.Getenv("THAWANI_URL"),
			APIKey:         os.Getenv("THAWANI_API_KEY"),
			PublishableKey: os.Getenv("THAWANI_PUBLISHABLE_KEY"),
		},
		Khalti: payments.KhaltiConfig{
			BaseURL:    os.Getenv("KHALTI_BASE_URL"),
			SecretKey:  os.Getenv("KHALTI_SECRET_KEY"),
			WebsiteURL: os.Getenv("KHALTI_WEBSITE_URL"),
			ReturnURL:  os.Getenv("KHALTI_RETURN_URL"),
		},
		Esewa: payments.EsewaConfig{
			MerchantCode: os.Getenv("ESEWA_MERCHANT_CODE"),
			SecretKey:    os.Getenv("ESEWA_SECRET_KEY"),
			FormURL:      os.Getenv("ESEWA_FORM_URL"),
			StatusURL:    os.Getenv("ESEWA_STATUS_URL"),
		},
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file loaded, using process environment")
	}

	cfg := config{
		addr: os.Getenv("ADDR"),
		env:  os.Getenv("ENV"),
		db: dbConfig{
			addr:        os.Getenv("DB_ADDR"),
			maxConns:    int32(envInt("DB_MAX_CONNS", 10)),
			maxIdleTime: os.Getenv("DB_MAX_IDLE_TIME"),
		},
		redis: redisConfig{
			addr:     os.Getenv("REDIS_ADDR"),
			password: os.Getenv("REDIS_PASSWORD"),
			db:       envInt("REDIS_DB", 0),
		},
		auth: authConfig{
			basic: basicConfig{
				user:     os.Getenv("AUTH_BASIC_USER"),
				passHash: os.Getenv("AUTH_BASIC_PASS_HASH"),
			},
		},
		httpTimeout: envDuration("HTTP_TIMEOUT", httpx.DefaultTimeout),
		providers:   os.Getenv("PAYMENT_PROVIDERS"),
		rateLimiter: LoadRateLimiterConfig(),
	}
	if cfg.addr == "" {
		cfg.addr = ":8080"
	}

	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}

	var closers []func() error
	defer func() {
		var errs error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = multierr.Append(errs, closers[i]())
		}
		if errs != nil {
			logger.Errorw("shutdown cleanup failed", "error", errs)
		}
		_ = logger.Sync()
	}()

	// Record store: postgres when configured, in-process otherwise.
	var (
		records  paymentsrepo.Store
		failures paymentsrepo.LogsStore
	)
	if cfg.db.addr != "" {
		pool, err := db.New(cfg.db.addr, cfg.db.maxConns, cfg.db.maxIdleTime)
		if err != nil {
			logger.Errorw("database connection failed", "error", err)
			return
		}
		closers = append(closers, func() error { pool.Close(); return nil })

		if err := db.Migrate(context.Background(), pool); err != nil {
			logger.Errorw("database migration failed", "error", err)
			return
		}
		logger.Info("database connection pool established")
		records = paymentsrepo.NewRepository(pool)
		failures = paymentsrepo.NewLogsRepository(pool)
	} else {
		logger.Warn("DB_ADDR not set, payment records are kept in memory")
		mem := paymentsrepo.NewMemory()
		records, failures = mem, mem
	}

	var store cache.Store = cache.NewMemory()
	if cfg.redis.addr != "" {
		rdb, err := cache.NewRedis(context.Background(), cfg.redis.addr, cfg.redis.password, cfg.redis.db)
		if err != nil {
			logger.Errorw("redis connection failed", "error", err)
			return
		}
		closers = append(closers, rdb.Close)
		store = rdb
		logger.Info("redis cache connected")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	providers, err := loadProviders(cfg.providers)
	if err != nil {
		logger.Errorw("invalid PAYMENT_PROVIDERS", "error", err)
		return
	}
	if len(providers) == 0 {
		providers = []payments.Provider{payments.CashOnDelivery}
	}

	manager, err := payments.Build(providers, loadPaymentsConfig(), payments.Deps{
		Store:   records,
		Logs:    failures,
		Cache:   store,
		Client:  httpx.New(cfg.httpTimeout, httpx.WithObserver(m)),
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		for _, e := range multierr.Errors(err) {
			logger.Errorw("payment provider misconfigured", "error", e)
		}
		return
	}

	rateLimiter := ratelimiter.NewFixedWindowLimiter(
		cfg.rateLimiter.RequestsPerTimeFrame,
		cfg.rateLimiter.TimeFrame,
	)
	closers = append(closers, func() error { rateLimiter.Stop(); return nil })

	app := &application{
		config:      cfg,
		logger:      logger,
		payments:    manager,
		records:     records,
		failures:    failures,
		registry:    registry,
		rateLimiter: rateLimiter,
	}

	mux := app.mount()

	if err := app.run(mux); err != nil {
		logger.Errorw("server error", "error", err)
	}
}
