package local

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/google/uuid"
)

type demoProduct struct {
	input     domain.ProductInput
	withAlert bool
	alertDrop float64
}

var demoProducts = []demoProduct{
	{
		input: domain.ProductInput{
			Title:        "MacBook Pro 14-inch M3 Pro",
			Vendor:       "Apple Store",
			Brand:        "Apple",
			Color:        "Space Gray",
			Capacity:     "512GB SSD",
			CurrentPrice: 1999,
			TargetPrice:  1799,
			ExpiresIn:    "30 days",
			Status:       domain.ProductStatusTracking,
			URL:          "https://www.apple.com/macbook-pro/",
			ImageURL:     "https://store.storeimages.cdn-apple.com/macbook-pro-14.jpg",
		},
		withAlert: true,
		alertDrop: 10,
	},
	{
		input: domain.ProductInput{
			Title:        "Sony WH-1000XM5 Wireless Headphones",
			Vendor:       "Amazon",
			Brand:        "Sony",
			Color:        "Black",
			CurrentPrice: 349.99,
			TargetPrice:  299.99,
			ExpiresIn:    "15 days",
			Status:       domain.ProductStatusTracking,
			URL:          "https://www.amazon.com/dp/B09XS7JWHH",
		},
	},
	{
		input: domain.ProductInput{
			Title:        "DJI Mini 3 Pro Drone",
			Vendor:       "Best Buy",
			Brand:        "DJI",
			Color:        "Gray",
			CurrentPrice: 759,
			TargetPrice:  699,
			ExpiresIn:    "45 days",
			Status:       domain.ProductStatusPaused,
			URL:          "https://www.bestbuy.com/site/dji-mini-3-pro",
		},
		withAlert: true,
		alertDrop: 8,
	},
}

// ensureSeeded gives a user the demo products once. The seeded_users table
// remembers across restarts, the map within a process.
func (b *Backend) ensureSeeded(ctx context.Context, uid string) error {
	if _, done := b.seeded.Load(uid); done {
		return nil
	}

	err := b.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO seeded_users (user_id) VALUES (?)`, uid)
		if err != nil {
			return fmt.Errorf("mark seeded: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		now := formatTime(b.now())
		for i, demo := range demoProducts {
			in := demo.input
			id := i + 1
			_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO products
				(user_id, id, title, vendor, brand, color, capacity, current_price, target_price, expires_in, status, url, image_url, extracted_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				uid, id, in.Title, in.Vendor, in.Brand, in.Color, in.Capacity,
				in.CurrentPrice, in.TargetPrice, in.ExpiresIn, string(in.Status), in.URL, in.ImageURL, now)
			if err != nil {
				return fmt.Errorf("seed product %d: %w", id, err)
			}
			if !demo.withAlert {
				continue
			}
			alertID := uuid.NewString()
			_, err = tx.ExecContext(ctx, `INSERT INTO alerts
				(id, user_id, product_id, product_name, product_url, product_image_url, current_price, alert_type,
				 notify_email, notify_push, notify_sms, drop_percentage, absolute_drop,
				 created_at, updated_at, last_checked_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, 1, 0, ?, 0, ?, ?, ?)`,
				alertID, uid, id, in.Title, in.URL, in.ImageURL, in.CurrentPrice, string(domain.AlertTypePriceDrop),
				demo.alertDrop, now, now, now)
			if err != nil {
				return fmt.Errorf("seed alert for product %d: %w", id, err)
			}
			target := in.TargetPrice
			if err := b.insertHistory(ctx, tx, alertID, domain.AlertEventCreated, nil, &target,
				fmt.Sprintf("Alert created with target price %.2f", target)); err != nil {
				return err
			}
		}
		b.logger.Info().Str("user_id", uid).Int("products", len(demoProducts)).Msg("Seeded demo data")
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to seed demo data: %w", err)
	}
	b.seeded.Store(uid, struct{}{})
	return nil
}
