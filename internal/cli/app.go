// Package cli provides the command-line interface of the dashboard.
package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dealpop/dashboard/config"
	"github.com/dealpop/dashboard/internal/availability"
	httpDelivery "github.com/dealpop/dashboard/internal/delivery/http"
	"github.com/dealpop/dashboard/internal/domain"
	"github.com/dealpop/dashboard/internal/infrastructure/api"
	"github.com/dealpop/dashboard/internal/infrastructure/cache"
	"github.com/dealpop/dashboard/internal/infrastructure/extension"
	"github.com/dealpop/dashboard/internal/infrastructure/extractor"
	"github.com/dealpop/dashboard/internal/infrastructure/local"
	"github.com/dealpop/dashboard/internal/infrastructure/token"
	"github.com/dealpop/dashboard/internal/metrics"
	"github.com/dealpop/dashboard/internal/usecase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Version   string
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Data      *availability.DataAdapter
	Identity  *availability.IdentityAdapter
	Alerts    *usecase.AlertStore
	Dashboard *usecase.DashboardService
	Extension *extension.Storage

	db          *sql.DB
	cache       *cache.MemoryCache
	unsubscribe func()
}

// NewApp wires the live backend (when configured), the local fallback and
// the dashboard services.
func NewApp(cfg *config.Config, logger zerolog.Logger, version string) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	db, err := local.Open(cfg.Fallback.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open fallback store: %w", err)
	}
	logger.Debug().Str("path", cfg.Fallback.DBPath).Msg("Fallback store opened")

	tokens := token.Service{
		Secret:   []byte(cfg.Identity.JWTSecret),
		Issuer:   cfg.Identity.Issuer,
		Duration: cfg.Identity.TokenTTL,
	}
	fallbackData := local.NewBackend(db, logger, local.BackendConfig{SeedDemoData: cfg.Fallback.SeedDemo})
	fallbackIdentity := local.NewIdentity(db, tokens, logger)

	var (
		liveData       domain.DataBackend
		liveIdentity   domain.IdentityBackend
		dataProber     domain.Prober
		identityProber domain.Prober
	)
	if cfg.LiveBackendConfigured() {
		client := api.NewClient(api.Config{
			BaseURL:     cfg.Backend.BaseURL,
			Timeout:     cfg.Backend.Timeout,
			RateLimit:   cfg.Backend.RateLimit,
			Burst:       cfg.Backend.Burst,
			MaxAttempts: cfg.Backend.MaxAttempts,
			UserAgent:   "DealPop-Dashboard/" + version,
		}, logger)
		client.SetDebug(cfg.Environment() == "development")
		identityClient := api.NewIdentityClient(client, tokens)

		liveData, dataProber = client, client
		liveIdentity, identityProber = identityClient, identityClient
		logger.Info().Str("base_url", cfg.Backend.BaseURL).Msg("Live backend configured")
	} else {
		logger.Info().Msg("No live backend configured, using the local fallback")
	}

	memoryCache := cache.NewMemoryCache(cfg.Cache.CleanupInterval)

	data := availability.NewDataAdapter(liveData, fallbackData,
		availability.NewProbe("data", dataProber, availability.ProbeConfig{
			Timeout:       cfg.Backend.ProbeTimeout,
			ForceFallback: cfg.Backend.ForceFallback,
			Metrics:       m,
		}, logger),
		logger,
		availability.DataConfig{Cache: memoryCache, CacheTTL: cfg.Cache.TTL, Metrics: m},
	)
	identity := availability.NewIdentityAdapter(liveIdentity, fallbackIdentity,
		availability.NewProbe("identity", identityProber, availability.ProbeConfig{
			Timeout:       cfg.Backend.ProbeTimeout,
			ForceFallback: cfg.Identity.ForceFallback,
			Metrics:       m,
		}, logger),
		logger,
	)

	alerts := usecase.NewAlertStore(data, logger, usecase.AlertStoreConfig{Metrics: m})
	storage := extension.NewStorage(cfg.Extension.Path, logger)
	dashboard := usecase.NewDashboardService(data, alerts, usecase.NewSearchService(usecase.SearchConfig{}), logger,
		usecase.DashboardConfig{
			Extension: storage,
			Extractor: extractor.New(),
		})

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Version:   version,
		Registry:  reg,
		Metrics:   m,
		Data:      data,
		Identity:  identity,
		Alerts:    alerts,
		Dashboard: dashboard,
		Extension: storage,
		db:        db,
		cache:     memoryCache,
	}

	// the alert state follows the signed-in identity
	app.unsubscribe = identity.OnAuthStateChanged(func(user *domain.User) {
		if err := alerts.SetIdentity(context.Background(), user); err != nil {
			logger.Warn().Err(err).Msg("Failed to load alerts for identity change")
		}
	})

	return app, nil
}

// SignIn starts a session for commands that act on user data
func (a *App) SignIn(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := a.Identity.SignInWithEmail(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("sign-in failed: %w", err)
	}
	if current := a.Alerts.User(); current == nil || current.ID != user.ID {
		if err := a.Alerts.SetIdentity(ctx, user); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// Handler builds the HTTP handler over the app's services
func (a *App) Handler(hub *httpDelivery.Hub) *httpDelivery.Handler {
	return httpDelivery.NewHandler(httpDelivery.HandlerConfig{
		Dashboard:      a.Dashboard,
		Identity:       a.Identity,
		DataStatus:     a.Data,
		IdentityStatus: a.Identity,
		Hub:            hub,
		Logger:         a.Logger,
		Version:        a.Version,
	})
}

// Close releases the app's resources
func (a *App) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.cache.Close()
	if err := a.db.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close fallback store")
	}
}
