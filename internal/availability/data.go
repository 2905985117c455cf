package availability

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/dealpop/dashboard/internal/infrastructure/cache"
	"github.com/dealpop/dashboard/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	backendLive     = "live"
	backendFallback = "fallback"

	defaultCacheTTL = 5 * time.Minute
)

// DataConfig configures the data adapter
type DataConfig struct {
	// Cache holds search suggestions and vendor lists. Nil disables caching.
	Cache    domain.CacheRepository
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
}

// DataAdapter routes every data operation to the live backend or the
// fallback, whichever the probe selected. Callers cannot tell them apart.
type DataAdapter struct {
	live     domain.DataBackend
	fallback domain.DataBackend
	probe    *Probe
	cache    domain.CacheRepository
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	// cached lists are keyed by a per backend and user version that every
	// product write bumps, so one write retires all of them
	versionMu sync.Mutex
	versions  map[string]uint64
}

// NewDataAdapter creates an adapter over live and fallback. live may be nil
// when no live backend is configured; probe must then target nothing.
func NewDataAdapter(live, fallback domain.DataBackend, probe *Probe, logger zerolog.Logger, config DataConfig) *DataAdapter {
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &DataAdapter{
		live:     live,
		fallback: fallback,
		probe:    probe,
		cache:    config.Cache,
		cacheTTL: ttl,
		metrics:  config.Metrics,
		logger:   logger.With().Str("component", "data_adapter").Logger(),
		versions: make(map[string]uint64),
	}
}

// IsUsingFallback reports whether calls go to the fallback, probing on first use
func (a *DataAdapter) IsUsingFallback(ctx context.Context) bool {
	return a.probe.Decide(ctx).UsingFallback
}

// Decision returns the probe decision, probing on first use
func (a *DataAdapter) Decision(ctx context.Context) Decision {
	return a.probe.Decide(ctx)
}

// Decided returns the probe decision without probing; false until the first
// data call has been routed
func (a *DataAdapter) Decided() (Decision, bool) {
	return a.probe.Decided()
}

func (a *DataAdapter) backend(ctx context.Context) (domain.DataBackend, string) {
	if a.probe.Decide(ctx).UsingFallback || a.live == nil {
		return a.fallback, backendFallback
	}
	return a.live, backendLive
}

func (a *DataAdapter) observe(name, op string, err error) {
	a.metrics.ObserveBackendCall(name, op, err)
	if err != nil {
		a.logger.Debug().Err(err).Str("backend", name).Str("op", op).Msg("Backend call failed")
	}
}

func (a *DataAdapter) ListProducts(ctx context.Context, query domain.ProductQuery) ([]domain.Product, error) {
	b, name := a.backend(ctx)
	products, err := b.ListProducts(ctx, query)
	a.observe(name, "list_products", err)
	return products, err
}

func (a *DataAdapter) CreateProduct(ctx context.Context, input domain.ProductInput) (domain.ProductID, error) {
	b, name := a.backend(ctx)
	id, err := b.CreateProduct(ctx, input)
	a.observe(name, "create_product", err)
	if err == nil {
		a.invalidate(ctx, name)
	}
	return id, err
}

func (a *DataAdapter) UpdateProduct(ctx context.Context, id domain.ProductID, patch domain.ProductPatch) error {
	b, name := a.backend(ctx)
	err := b.UpdateProduct(ctx, id, patch)
	a.observe(name, "update_product", err)
	if err == nil {
		a.invalidate(ctx, name)
	}
	return err
}

func (a *DataAdapter) DeleteProduct(ctx context.Context, id domain.ProductID) error {
	b, name := a.backend(ctx)
	err := b.DeleteProduct(ctx, id)
	a.observe(name, "delete_product", err)
	if err == nil {
		a.invalidate(ctx, name)
	}
	return err
}

func (a *DataAdapter) ListAlerts(ctx context.Context, query domain.AlertQuery) ([]domain.Alert, error) {
	b, name := a.backend(ctx)
	alerts, err := b.ListAlerts(ctx, query)
	a.observe(name, "list_alerts", err)
	return alerts, err
}

func (a *DataAdapter) CreateAlert(ctx context.Context, input domain.AlertInput) (string, error) {
	b, name := a.backend(ctx)
	id, err := b.CreateAlert(ctx, input)
	a.observe(name, "create_alert", err)
	if err == nil {
		// the fallback adopts unknown products on alert creation
		a.invalidate(ctx, name)
	}
	return id, err
}

func (a *DataAdapter) DeleteAlert(ctx context.Context, id string) error {
	b, name := a.backend(ctx)
	err := b.DeleteAlert(ctx, id)
	a.observe(name, "delete_alert", err)
	return err
}

func (a *DataAdapter) AlertHistory(ctx context.Context, alertID string) ([]domain.AlertHistory, error) {
	b, name := a.backend(ctx)
	history, err := b.AlertHistory(ctx, alertID)
	a.observe(name, "alert_history", err)
	return history, err
}

func (a *DataAdapter) GetPreferences(ctx context.Context) (*domain.Preferences, error) {
	b, name := a.backend(ctx)
	prefs, err := b.GetPreferences(ctx)
	a.observe(name, "get_preferences", err)
	return prefs, err
}

func (a *DataAdapter) UpdatePreferences(ctx context.Context, prefs domain.Preferences) error {
	b, name := a.backend(ctx)
	err := b.UpdatePreferences(ctx, prefs)
	a.observe(name, "update_preferences", err)
	return err
}

func (a *DataAdapter) SearchSuggestions(ctx context.Context, query string) ([]string, error) {
	b, name := a.backend(ctx)
	key := a.cacheKey(ctx, name, "suggestions", strings.ToLower(strings.TrimSpace(query)))

	var cached []string
	if a.cache != nil && cache.GetJSON(ctx, a.cache, key, &cached) == nil {
		return cached, nil
	}

	suggestions, err := b.SearchSuggestions(ctx, query)
	a.observe(name, "search_suggestions", err)
	if err != nil {
		return nil, err
	}
	a.store(ctx, key, suggestions)
	return suggestions, nil
}

func (a *DataAdapter) Vendors(ctx context.Context) ([]string, error) {
	b, name := a.backend(ctx)
	key := a.cacheKey(ctx, name, "vendors")

	var cached []string
	if a.cache != nil && cache.GetJSON(ctx, a.cache, key, &cached) == nil {
		return cached, nil
	}

	vendors, err := b.Vendors(ctx)
	a.observe(name, "vendors", err)
	if err != nil {
		return nil, err
	}
	a.store(ctx, key, vendors)
	return vendors, nil
}

func (a *DataAdapter) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	b, name := a.backend(ctx)
	stats, err := b.Stats(ctx)
	a.observe(name, "stats", err)
	return stats, err
}

func scope(ctx context.Context, backend string) string {
	uid := ""
	if u := domain.UserFromContext(ctx); u != nil {
		uid = u.ID
	}
	return backend + ":" + uid
}

// cacheKey scopes cached lists by backend, user and write version
func (a *DataAdapter) cacheKey(ctx context.Context, backend string, parts ...string) string {
	sc := scope(ctx, backend)
	a.versionMu.Lock()
	version := a.versions[sc]
	a.versionMu.Unlock()
	return strings.Join(append([]string{sc, "v" + strconv.FormatUint(version, 10)}, parts...), ":")
}

func (a *DataAdapter) store(ctx context.Context, key string, value any) {
	if a.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, a.cache, key, value, a.cacheTTL); err != nil {
		a.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache result")
	}
}

// invalidate retires every cached list of the caller on backend. Entries
// under the old version expire with the cache TTL.
func (a *DataAdapter) invalidate(ctx context.Context, backend string) {
	if a.cache == nil {
		return
	}
	sc := scope(ctx, backend)
	a.versionMu.Lock()
	a.versions[sc]++
	a.versionMu.Unlock()
}
