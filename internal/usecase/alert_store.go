package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/dealpop/dashboard/internal/metrics"
	"github.com/rs/zerolog"
)

// StoreEventType names a change of the alert collection
type StoreEventType string

const (
	StoreEventReloaded StoreEventType = "reloaded"
	StoreEventCreated  StoreEventType = "created"
	StoreEventUpdated  StoreEventType = "updated"
	StoreEventDeleted  StoreEventType = "deleted"
	StoreEventCleared  StoreEventType = "cleared"
)

// StoreEvent is delivered to subscribers after the collection changes
type StoreEvent struct {
	Type    StoreEventType    `json:"type"`
	AlertID string            `json:"alertId,omitempty"`
	Stats   domain.AlertStats `json:"stats"`
}

// AlertStoreConfig holds optional dependencies of the alert store
type AlertStoreConfig struct {
	Metrics *metrics.Metrics
	// Now stamps synthesized alerts; defaults to time.Now
	Now func() time.Time
}

// AlertStore holds the alert collection of the current identity.
//
// Every mutation and identity change bumps a generation counter; a reload
// only applies its result if no newer generation started meanwhile, so a
// late response never overwrites newer state. Update re-runs a reload that a
// local mutation discarded. The lock is never held across backend calls.
type AlertStore struct {
	backend domain.DataBackend
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	user    *domain.User
	alerts  []domain.Alert
	loading bool
	err     error
	gen     uint64
	// generation of the newest reload started
	reloadGen uint64

	subMu   sync.Mutex
	subs    map[int]func(StoreEvent)
	nextSub int
}

// NewAlertStore creates an empty store. Call SetIdentity to load alerts.
func NewAlertStore(backend domain.DataBackend, logger zerolog.Logger, config AlertStoreConfig) *AlertStore {
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &AlertStore{
		backend: backend,
		logger:  logger.With().Str("component", "alert_store").Logger(),
		metrics: config.Metrics,
		now:     now,
		subs:    make(map[int]func(StoreEvent)),
	}
}

// SetIdentity switches the store to user and reloads. A nil user clears the
// collection.
func (s *AlertStore) SetIdentity(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	s.user = user
	s.gen++
	if user == nil {
		s.alerts = nil
		s.err = nil
		s.loading = false
		s.mu.Unlock()
		s.metrics.ObserveReload("cleared")
		s.notify(StoreEvent{Type: StoreEventCleared})
		return nil
	}
	s.mu.Unlock()

	return s.Reload(ctx)
}

// User returns the identity the store is loaded for
func (s *AlertStore) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Reload fetches the whole collection. It is also the manual retry after a
// failed load.
func (s *AlertStore) Reload(ctx context.Context) error {
	_, err := s.reload(ctx)
	return err
}

// reload reports whether its result was applied. A result is dropped when a
// newer generation started while the backend call was in flight.
func (s *AlertStore) reload(ctx context.Context) (bool, error) {
	s.mu.Lock()
	user := s.user
	if user == nil {
		s.mu.Unlock()
		return false, domain.ErrNotAuthenticated
	}
	s.gen++
	gen := s.gen
	s.reloadGen = gen
	s.loading = true
	s.mu.Unlock()

	alerts, err := s.backend.ListAlerts(domain.ContextWithUser(ctx, user), domain.AlertQuery{})

	s.mu.Lock()
	if gen != s.gen {
		// no newer reload is in flight to clear the flag
		if s.reloadGen == gen {
			s.loading = false
		}
		s.mu.Unlock()
		s.metrics.ObserveReload("stale")
		s.logger.Debug().Uint64("generation", gen).Msg("Discarding stale alert reload")
		return false, nil
	}
	s.loading = false
	if err != nil {
		s.err = err
		s.mu.Unlock()
		s.metrics.ObserveReload("error")
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to load alerts")
		return false, fmt.Errorf("failed to load alerts: %w", err)
	}
	s.alerts = alerts
	s.err = nil
	s.mu.Unlock()

	s.metrics.ObserveReload("ok")
	s.logger.Debug().Int("count", len(alerts)).Str("user_id", user.ID).Msg("Alerts loaded")
	s.notify(StoreEvent{Type: StoreEventReloaded})
	return true, nil
}

// Create validates and submits a new alert. The backend acknowledges with an
// id only, so the full record is synthesized from the input and prepended
// without a reload.
func (s *AlertStore) Create(ctx context.Context, input domain.AlertInput) (*domain.Alert, error) {
	if err := ValidateAlert(input); err != nil {
		return nil, err
	}
	user, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	if input.AlertType == "" {
		input.AlertType = domain.AlertTypePriceDrop
	}

	id, err := s.backend.CreateAlert(domain.ContextWithUser(ctx, user), input)
	if err != nil {
		s.logger.Error().Err(err).Str("product_id", input.ProductID.String()).Msg("Failed to create alert")
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	now := s.now()
	alert := domain.Alert{
		ID:                      id,
		UserID:                  user.ID,
		ProductID:               input.ProductID,
		ProductName:             input.ProductName,
		ProductURL:              input.ProductURL,
		ProductImageURL:         input.ProductImageURL,
		CurrentPrice:            input.CurrentPrice,
		TargetPrice:             input.TargetPrice,
		AlertType:               input.AlertType,
		Status:                  domain.AlertStatusActive,
		NotificationPreferences: input.NotificationPreferences,
		Thresholds:              input.Thresholds,
		CreatedAt:               now,
		UpdatedAt:               now,
		LastCheckedAt:           now,
		ExpiresAt:               input.ExpiresAt,
	}

	s.mu.Lock()
	s.gen++
	s.alerts = append([]domain.Alert{alert}, s.alerts...)
	s.mu.Unlock()

	s.logger.Info().Str("alert_id", id).Str("product_id", alert.ProductID.String()).Msg("Alert created")
	s.notify(StoreEvent{Type: StoreEventCreated, AlertID: id})
	return &alert, nil
}

// Update applies a status or target price edit. Both are product state, so
// the edit goes through the product and the collection is reloaded.
func (s *AlertStore) Update(ctx context.Context, alertID string, update domain.AlertUpdate) error {
	if update.Status != nil && !update.Status.Valid() {
		return &domain.ValidationError{Errors: []domain.FieldError{{
			Field: "status", Message: "Unknown alert status", Code: "INVALID_STATUS",
		}}}
	}
	if update.TargetPrice != nil && *update.TargetPrice <= 0 {
		return &domain.ValidationError{Errors: []domain.FieldError{{
			Field: "targetPrice", Message: "Target price must be a valid positive number", Code: CodeInvalidTargetPrice,
		}}}
	}
	user, err := s.requireUser()
	if err != nil {
		return err
	}
	alert, ok := s.Alert(alertID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAlertNotFound, alertID)
	}

	patch := update.ProductPatch()
	if patch.Empty() {
		return nil
	}
	if err := s.backend.UpdateProduct(domain.ContextWithUser(ctx, user), alert.ProductID, patch); err != nil {
		s.logger.Error().Err(err).Str("alert_id", alertID).Msg("Failed to update alert")
		return fmt.Errorf("failed to update alert: %w", err)
	}

	s.logger.Info().Str("alert_id", alertID).Str("product_id", alert.ProductID.String()).Msg("Alert updated")
	applied, err := s.reload(ctx)
	if err == nil && !applied {
		// a create or delete landed mid-reload; load again so the edit shows
		_, err = s.reload(ctx)
	}
	if err != nil {
		return err
	}
	s.notify(StoreEvent{Type: StoreEventUpdated, AlertID: alertID})
	return nil
}

// Dismiss marks an alert dismissed
func (s *AlertStore) Dismiss(ctx context.Context, alertID string) error {
	status := domain.AlertStatusDismissed
	return s.Update(ctx, alertID, domain.AlertUpdate{Status: &status})
}

// Delete removes an alert at the backend, then locally
func (s *AlertStore) Delete(ctx context.Context, alertID string) error {
	user, err := s.requireUser()
	if err != nil {
		return err
	}
	if err := s.backend.DeleteAlert(domain.ContextWithUser(ctx, user), alertID); err != nil {
		s.logger.Error().Err(err).Str("alert_id", alertID).Msg("Failed to delete alert")
		return fmt.Errorf("failed to delete alert: %w", err)
	}

	s.mu.Lock()
	s.gen++
	kept := s.alerts[:0:0]
	for _, a := range s.alerts {
		if a.ID != alertID {
			kept = append(kept, a)
		}
	}
	s.alerts = kept
	s.mu.Unlock()

	s.logger.Info().Str("alert_id", alertID).Msg("Alert deleted")
	s.notify(StoreEvent{Type: StoreEventDeleted, AlertID: alertID})
	return nil
}

// History returns the event history of an alert
func (s *AlertStore) History(ctx context.Context, alertID string) ([]domain.AlertHistory, error) {
	user, err := s.requireUser()
	if err != nil {
		return nil, err
	}
	return s.backend.AlertHistory(domain.ContextWithUser(ctx, user), alertID)
}

// Preferences loads the user's preferences, or the defaults when none are saved
func (s *AlertStore) Preferences(ctx context.Context) (domain.Preferences, error) {
	user, err := s.requireUser()
	if err != nil {
		return domain.Preferences{}, err
	}
	prefs, err := s.backend.GetPreferences(domain.ContextWithUser(ctx, user))
	if err != nil {
		return domain.Preferences{}, fmt.Errorf("failed to load preferences: %w", err)
	}
	if prefs == nil {
		defaults := domain.DefaultPreferences()
		defaults.UserID = user.ID
		return defaults, nil
	}
	return *prefs, nil
}

// UpdatePreferences saves the user's preferences
func (s *AlertStore) UpdatePreferences(ctx context.Context, prefs domain.Preferences) error {
	user, err := s.requireUser()
	if err != nil {
		return err
	}
	prefs.UserID = user.ID
	if err := s.backend.UpdatePreferences(domain.ContextWithUser(ctx, user), prefs); err != nil {
		return fmt.Errorf("failed to update preferences: %w", err)
	}
	return nil
}

// Stats counts the collection by status. It is computed on every call.
func (s *AlertStore) Stats() domain.AlertStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return statsOf(s.alerts)
}

func statsOf(alerts []domain.Alert) domain.AlertStats {
	stats := domain.AlertStats{Total: len(alerts)}
	for _, a := range alerts {
		switch a.Status {
		case domain.AlertStatusActive:
			stats.Active++
		case domain.AlertStatusTriggered:
			stats.Triggered++
		case domain.AlertStatusDismissed:
			stats.Dismissed++
		case domain.AlertStatusExpired:
			stats.Expired++
		}
	}
	return stats
}

// Alerts returns a copy of the collection
func (s *AlertStore) Alerts() []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// ActiveAlerts returns the alerts with status active
func (s *AlertStore) ActiveAlerts() []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if a.Status == domain.AlertStatusActive {
			out = append(out, a)
		}
	}
	return out
}

// Alert returns one alert by id
func (s *AlertStore) Alert(id string) (domain.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Alert{}, false
}

// Err returns the error of the last collection load, if it failed
func (s *AlertStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Loading reports whether a reload is in flight
func (s *AlertStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Subscribe registers fn for change events. The returned func unsubscribes.
func (s *AlertStore) Subscribe(fn func(StoreEvent)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *AlertStore) notify(event StoreEvent) {
	event.Stats = s.Stats()

	s.subMu.Lock()
	fns := make([]func(StoreEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

func (s *AlertStore) requireUser() (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, domain.ErrNotAuthenticated
	}
	return s.user, nil
}
