// Package repository records successful price fetches in Postgres so the
// host can plot trends. The refresh loop works fine without it.
package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"keywatch/internal/model"
)

type PriceHistory struct {
	DB *pgxpool.Pool
}

// PricePoint is one historical observation of a tracked game.
type PricePoint struct {
	LowPrice   *float64
	BestSeller string
	OfferCount int
	FetchedAt  time.Time
}

func (r *PriceHistory) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS price_history (
			id BIGSERIAL PRIMARY KEY,
			product_id TEXT NOT NULL,
			currency TEXT NOT NULL,
			low_price NUMERIC,
			best_seller TEXT NOT NULL DEFAULT '',
			offer_count INT NOT NULL,
			fetched_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS price_history_product_idx
		ON price_history (product_id, currency, fetched_at DESC)
	`)
	return err
}

func (r *PriceHistory) InsertPrice(ctx context.Context, rec *model.PriceRecord) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO price_history
		(product_id, currency, low_price, best_seller, offer_count, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ProductID, rec.Currency, rec.LowPrice, rec.BestSeller, rec.OfferCount, rec.FetchedAt)
	return err
}

func (r *PriceHistory) RecentPrices(ctx context.Context, productID string, currency model.Currency, limit int) ([]PricePoint, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT low_price, best_seller, offer_count, fetched_at
		FROM price_history
		WHERE product_id = $1 AND currency = $2
		ORDER BY fetched_at DESC
		LIMIT $3
	`, productID, currency, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.LowPrice, &p.BestSeller, &p.OfferCount, &p.FetchedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
