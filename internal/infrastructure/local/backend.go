package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxSuggestions = 5

// popularSearches seed search suggestions next to the user's own products
var popularSearches = []string{
	"MacBook Pro", "iPhone 15", "Sony Headphones", "DJI Drone", "Apple Watch",
	"Samsung TV", "Nike Shoes", "Instant Pot", "Dyson Vacuum", "Canon Camera",
	"Anker Power Bank", "La Roche-Posay",
}

// BackendConfig configures the fallback data backend
type BackendConfig struct {
	// SeedDemoData gives every new user the demo product set once
	SeedDemoData bool
	Now          func() time.Time
}

// Backend is the local fallback data backend. Data is scoped by the user id
// carried in the call context. Alert status and target price are stored on
// the product row and projected into every alert read.
type Backend struct {
	db     *sql.DB
	logger zerolog.Logger
	seed   bool
	now    func() time.Time
	seeded sync.Map
}

// NewBackend creates a fallback backend over an opened database
func NewBackend(db *sql.DB, logger zerolog.Logger, config BackendConfig) *Backend {
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Backend{
		db:     db,
		logger: logger.With().Str("component", "fallback_backend").Logger(),
		seed:   config.SeedDemoData,
		now:    now,
	}
}

// userID returns the scoping user of a call and seeds their demo data
func (b *Backend) userID(ctx context.Context) (string, error) {
	user := domain.UserFromContext(ctx)
	if user == nil || user.ID == "" {
		return "", domain.ErrNotAuthenticated
	}
	if b.seed {
		if err := b.ensureSeeded(ctx, user.ID); err != nil {
			return "", err
		}
	}
	return user.ID, nil
}

func (b *Backend) ListProducts(ctx context.Context, query domain.ProductQuery) ([]domain.Product, error) {
	uid, err := b.userID(ctx)
	if err != nil {
		return nil, err
	}

	stmt := `SELECT id, title, vendor, brand, color, capacity, current_price, target_price,
		expires_in, status, url, image_url, extracted_at
		FROM products WHERE user_id = ?`
	args := []any{uid}
	if query.Status != "" {
		stmt += ` AND status = ?`
		args = append(args, string(query.Status))
	}
	if query.Vendor != "" {
		stmt += ` AND vendor LIKE ?`
		args = append(args, "%"+query.Vendor+"%")
	}
	if query.Search != "" {
		stmt += ` AND title LIKE ?`
		args = append(args, "%"+query.Search+"%")
	}
	stmt += ` ORDER BY extracted_at DESC, id DESC`

	rows, err := b.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var (
			p           domain.Product
			status      string
			extractedAt string
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.Vendor, &p.Brand, &p.Color, &p.Capacity,
			&p.CurrentPrice, &p.TargetPrice, &p.ExpiresIn, &status, &p.URL, &p.ImageURL, &extractedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Status = domain.ProductStatus(status)
		p.ExtractedAt = parseTime(extractedAt)
		p.Source = domain.SourceBackend
		products = append(products, p)
	}
	return products, rows.Err()
}

func (b *Backend) CreateProduct(ctx context.Context, input domain.ProductInput) (domain.ProductID, error) {
	uid, err := b.userID(ctx)
	if err != nil {
		return 0, err
	}
	status := input.Status
	if status == "" {
		status = domain.ProductStatusTracking
	}

	var id domain.ProductID
	err = b.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM products WHERE user_id = ?`, uid).Scan(&id); err != nil {
			return fmt.Errorf("next product id: %w", err)
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO products
			(user_id, id, title, vendor, brand, color, capacity, current_price, target_price, expires_in, status, url, image_url, extracted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uid, id, input.Title, input.Vendor, input.Brand, input.Color, input.Capacity,
			input.CurrentPrice, input.TargetPrice, input.ExpiresIn, string(status), input.URL, input.ImageURL,
			formatTime(b.now()))
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (b *Backend) UpdateProduct(ctx context.Context, id domain.ProductID, patch domain.ProductPatch) error {
	uid, err := b.userID(ctx)
	if err != nil {
		return err
	}

	return b.withTx(ctx, func(tx *sql.Tx) error {
		var oldTarget float64
		var oldAlertStatus string
		err := tx.QueryRowContext(ctx, `SELECT target_price, alert_status FROM products WHERE user_id = ? AND id = ?`, uid, id).
			Scan(&oldTarget, &oldAlertStatus)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}

		var sets []string
		var args []any
		if patch.Status != nil {
			sets = append(sets, "status = ?")
			args = append(args, string(*patch.Status))
		}
		if patch.TargetPrice != nil {
			sets = append(sets, "target_price = ?")
			args = append(args, *patch.TargetPrice)
		}
		if patch.CurrentPrice != nil {
			sets = append(sets, "current_price = ?")
			args = append(args, *patch.CurrentPrice)
		}
		if patch.AlertStatus != nil {
			sets = append(sets, "alert_status = ?")
			args = append(args, string(*patch.AlertStatus))
		}
		if len(sets) == 0 {
			return nil
		}
		args = append(args, uid, id)
		if _, err := tx.ExecContext(ctx, `UPDATE products SET `+strings.Join(sets, ", ")+` WHERE user_id = ? AND id = ?`, args...); err != nil {
			return fmt.Errorf("update product: %w", err)
		}

		now := formatTime(b.now())
		if _, err := tx.ExecContext(ctx, `UPDATE alerts SET updated_at = ? WHERE user_id = ? AND product_id = ?`, now, uid, id); err != nil {
			return fmt.Errorf("touch alerts: %w", err)
		}
		if patch.AlertStatus != nil && string(*patch.AlertStatus) != oldAlertStatus {
			if *patch.AlertStatus == domain.AlertStatusTriggered {
				if _, err := tx.ExecContext(ctx, `UPDATE alerts SET triggered_at = ? WHERE user_id = ? AND product_id = ?`, now, uid, id); err != nil {
					return fmt.Errorf("mark triggered: %w", err)
				}
			}
			event := statusEvent(*patch.AlertStatus)
			if err := b.recordProductEvent(ctx, tx, uid, id, event, nil, nil, "Alert "+string(event)); err != nil {
				return err
			}
		}
		if patch.TargetPrice != nil && *patch.TargetPrice != oldTarget {
			oldPrice, newPrice := oldTarget, *patch.TargetPrice
			msg := fmt.Sprintf("Target price changed from %.2f to %.2f", oldPrice, newPrice)
			if err := b.recordProductEvent(ctx, tx, uid, id, domain.AlertEventUpdated, &oldPrice, &newPrice, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

func statusEvent(status domain.AlertStatus) domain.AlertEventType {
	switch status {
	case domain.AlertStatusTriggered:
		return domain.AlertEventTriggered
	case domain.AlertStatusDismissed:
		return domain.AlertEventDismissed
	case domain.AlertStatusExpired:
		return domain.AlertEventExpired
	default:
		return domain.AlertEventUpdated
	}
}

// recordProductEvent appends a history event to every alert of a product
func (b *Backend) recordProductEvent(ctx context.Context, tx *sql.Tx, uid string, productID domain.ProductID, event domain.AlertEventType, oldPrice, newPrice *float64, message string) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM alerts WHERE user_id = ? AND product_id = ?`, uid, productID)
	if err != nil {
		return fmt.Errorf("query product alerts: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan alert id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, alertID := range ids {
		if err := b.insertHistory(ctx, tx, alertID, event, oldPrice, newPrice, message); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) insertHistory(ctx context.Context, tx *sql.Tx, alertID string, event domain.AlertEventType, oldPrice, newPrice *float64, message string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO alert_history (id, alert_id, event_type, old_price, new_price, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), alertID, string(event), nullFloat(oldPrice), nullFloat(newPrice), message, formatTime(b.now()))
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (b *Backend) DeleteProduct(ctx context.Context, id domain.ProductID) error {
	uid, err := b.userID(ctx)
	if err != nil {
		return err
	}
	res, err := b.db.ExecContext(ctx, `DELETE FROM products WHERE user_id = ? AND id = ?`, uid, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	}
	return nil
}

func (b *Backend) ListAlerts(ctx context.Context, query domain.AlertQuery) ([]domain.Alert, error) {
	uid, err := b.userID(ctx)
	if err != nil {
		return nil, err
	}

	stmt := `SELECT a.id, a.user_id, a.product_id, a.product_name, a.product_url, a.product_image_url,
		a.current_price, p.target_price, a.alert_type, p.alert_status,
		a.notify_email, a.notify_push, a.notify_sms, a.drop_percentage, a.absolute_drop,
		a.created_at, a.updated_at, a.last_checked_at, a.triggered_at, a.expires_at
		FROM alerts a JOIN products p ON p.user_id = a.user_id AND p.id = a.product_id
		WHERE a.user_id = ?`
	args := []any{uid}
	if query.Status != "" {
		stmt += ` AND p.alert_status = ?`
		args = append(args, string(query.Status))
	}
	if query.ProductID != nil {
		stmt += ` AND a.product_id = ?`
		args = append(args, int64(*query.ProductID))
	}
	stmt += ` ORDER BY a.created_at DESC, a.rowid DESC`

	rows, err := b.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []domain.Alert{}
	for rows.Next() {
		var (
			a                               domain.Alert
			alertType, status               string
			createdAt, updatedAt, checkedAt string
			triggeredAt, expiresAt          sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.ProductID, &a.ProductName, &a.ProductURL, &a.ProductImageURL,
			&a.CurrentPrice, &a.TargetPrice, &alertType, &status,
			&a.NotificationPreferences.Email, &a.NotificationPreferences.Push, &a.NotificationPreferences.SMS,
			&a.Thresholds.PriceDropPercentage, &a.Thresholds.AbsolutePriceDrop,
			&createdAt, &updatedAt, &checkedAt, &triggeredAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.AlertType = domain.AlertType(alertType)
		a.Status = domain.AlertStatus(status)
		a.CreatedAt = parseTime(createdAt)
		a.UpdatedAt = parseTime(updatedAt)
		a.LastCheckedAt = parseTime(checkedAt)
		a.TriggeredAt = parseNullTime(triggeredAt)
		a.ExpiresAt = parseNullTime(expiresAt)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// CreateAlert stores an active alert. A product the backend has not seen,
// such as an extension capture, is adopted from the alert's fields.
func (b *Backend) CreateAlert(ctx context.Context, input domain.AlertInput) (string, error) {
	uid, err := b.userID(ctx)
	if err != nil {
		return "", err
	}
	alertType := input.AlertType
	if alertType == "" {
		alertType = domain.AlertTypePriceDrop
	}

	id := uuid.NewString()
	now := formatTime(b.now())
	err = b.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO products
			(user_id, id, title, current_price, target_price, status, url, image_url, extracted_at)
			VALUES (?, ?, ?, ?, ?, 'tracking', ?, ?, ?)`,
			uid, int64(input.ProductID), input.ProductName, input.CurrentPrice, input.TargetPrice,
			input.ProductURL, input.ProductImageURL, now); err != nil {
			return fmt.Errorf("adopt product: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE products SET target_price = ?, alert_status = 'active', status = 'tracking'
			WHERE user_id = ? AND id = ?`, input.TargetPrice, uid, int64(input.ProductID)); err != nil {
			return fmt.Errorf("activate product: %w", err)
		}

		var expiresAt any
		if input.ExpiresAt != nil {
			expiresAt = formatTime(*input.ExpiresAt)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO alerts
			(id, user_id, product_id, product_name, product_url, product_image_url, current_price, alert_type,
			 notify_email, notify_push, notify_sms, drop_percentage, absolute_drop,
			 created_at, updated_at, last_checked_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, uid, int64(input.ProductID), input.ProductName, input.ProductURL, input.ProductImageURL,
			input.CurrentPrice, string(alertType),
			input.NotificationPreferences.Email, input.NotificationPreferences.Push, input.NotificationPreferences.SMS,
			input.Thresholds.PriceDropPercentage, input.Thresholds.AbsolutePriceDrop,
			now, now, now, expiresAt); err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}

		target := input.TargetPrice
		return b.insertHistory(ctx, tx, id, domain.AlertEventCreated, nil, &target,
			fmt.Sprintf("Alert created with target price %.2f", target))
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (b *Backend) DeleteAlert(ctx context.Context, id string) error {
	uid, err := b.userID(ctx)
	if err != nil {
		return err
	}
	res, err := b.db.ExecContext(ctx, `DELETE FROM alerts WHERE user_id = ? AND id = ?`, uid, id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAlertNotFound, id)
	}
	return nil
}

func (b *Backend) AlertHistory(ctx context.Context, alertID string) ([]domain.AlertHistory, error) {
	uid, err := b.userID(ctx)
	if err != nil {
		return nil, err
	}

	var exists int
	err = b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE user_id = ? AND id = ?`, uid, alertID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check alert: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlertNotFound, alertID)
	}

	rows, err := b.db.QueryContext(ctx, `SELECT id, alert_id, event_type, old_price, new_price, message, timestamp
		FROM alert_history WHERE alert_id = ? ORDER BY timestamp DESC, rowid DESC`, alertID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	history := []domain.AlertHistory{}
	for rows.Next() {
		var (
			h                  domain.AlertHistory
			event, timestamp   string
			oldPrice, newPrice sql.NullFloat64
		)
		if err := rows.Scan(&h.ID, &h.AlertID, &event, &oldPrice, &newPrice, &h.Message, &timestamp); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.EventType = domain.AlertEventType(event)
		h.Timestamp = parseTime(timestamp)
		if oldPrice.Valid {
			h.OldPrice = &oldPrice.Float64
		}
		if newPrice.Valid {
			h.NewPrice = &newPrice.Float64
		}
		if oldPrice.Valid && newPrice.Valid {
			change := newPrice.Float64 - oldPrice.Float64
			h.PriceChange = &change
			if oldPrice.Float64 > 0 {
				pct := change / oldPrice.Float64 * 100
				h.PriceChangePercentage = &pct
			}
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func (b *Backend) GetPreferences(ctx context.Context) (*domain.Preferences, error) {
	uid, err := b.userID(ctx)
	if err != nil {
		return nil, err
	}
	var data string
	err = b.db.QueryRowContext(ctx, `SELECT data FROM preferences WHERE user_id = ?`, uid).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	var prefs domain.Preferences
	if err := json.Unmarshal([]byte(data), &prefs); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	return &prefs, nil
}

func (b *Backend) UpdatePreferences(ctx context.Context, prefs domain.Preferences) error {
	uid, err := b.userID(ctx)
	if err != nil {
		return err
	}
	prefs.UserID = uid
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `INSERT INTO preferences (user_id, data) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET data = excluded.data`, uid, string(data))
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// SearchSuggestions matches the user's product titles, then popular
// searches, case-insensitively. At most five are returned.
func (b *Backend) SearchSuggestions(ctx context.Context, query string) ([]string, error) {
	products, err := b.ListProducts(ctx, domain.ProductQuery{})
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	seen := make(map[string]struct{})
	suggestions := []string{}
	add := func(s string) {
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup || len(suggestions) >= maxSuggestions {
			return
		}
		if strings.Contains(key, needle) {
			seen[key] = struct{}{}
			suggestions = append(suggestions, s)
		}
	}
	for _, p := range products {
		add(p.Title)
	}
	for _, s := range popularSearches {
		add(s)
	}
	return suggestions, nil
}

func (b *Backend) Vendors(ctx context.Context) ([]string, error) {
	uid, err := b.userID(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := b.db.QueryContext(ctx, `SELECT DISTINCT vendor FROM products WHERE user_id = ? AND vendor != ''`, uid)
	if err != nil {
		return nil, fmt.Errorf("query vendors: %w", err)
	}
	defer rows.Close()

	vendors := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	sort.Strings(vendors)
	return vendors, rows.Err()
}

// Stats summarises the user's products and alerts. TotalSavings sums the
// gap between current and target price of products still above target,
// rounded to cents.
func (b *Backend) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	products, err := b.ListProducts(ctx, domain.ProductQuery{})
	if err != nil {
		return nil, err
	}
	alerts, err := b.ListAlerts(ctx, domain.AlertQuery{})
	if err != nil {
		return nil, err
	}

	stats := &domain.DashboardStats{TotalProducts: len(products)}
	var savings float64
	for _, p := range products {
		switch p.Status {
		case domain.ProductStatusTracking:
			stats.TrackingProducts++
		case domain.ProductStatusCompleted:
			stats.CompletedProducts++
		}
		if p.TargetPrice > 0 && p.CurrentPrice > p.TargetPrice {
			savings += p.CurrentPrice - p.TargetPrice
		}
	}
	for _, a := range alerts {
		switch a.Status {
		case domain.AlertStatusActive:
			stats.ActiveAlerts++
		case domain.AlertStatusTriggered:
			stats.TriggeredAlerts++
		}
	}
	stats.TotalSavings = math.Round(savings*100) / 100
	return stats, nil
}

func (b *Backend) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
