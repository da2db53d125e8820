package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"closet_server/core/domain"
	"closet_server/core/port/out"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// WardrobeAdapter persists wardrobe records. A unique index on
// (user_id, fingerprint) is the last line of dedup defense.
type WardrobeAdapter struct {
	db *sqlx.DB
}

var _ out.WardrobeRepository = (*WardrobeAdapter)(nil)

func NewWardrobeAdapter(db *sqlx.DB) *WardrobeAdapter {
	return &WardrobeAdapter{db: db}
}

const wardrobeColumns = `
	id, user_id, fingerprint, brand, name, price, original_price, discount,
	size, color, quantity, image_url, product_link, category, retailer,
	source_email_id, order_id, normalized_image_url, reference,
	dominant_color, color_tag, created_at, updated_at`

func (a *WardrobeAdapter) ListByUser(ctx context.Context, userID string) ([]*domain.WardrobeRecord, error) {
	query := `SELECT ` + wardrobeColumns + `
		FROM wardrobe_items
		WHERE user_id = $1
		ORDER BY created_at DESC`

	var records []*domain.WardrobeRecord
	if err := a.db.SelectContext(ctx, &records, query, userID); err != nil {
		return nil, err
	}
	return records, nil
}

func (a *WardrobeAdapter) FindByFingerprint(ctx context.Context, userID, fingerprint string) (*domain.WardrobeRecord, error) {
	query := `SELECT ` + wardrobeColumns + `
		FROM wardrobe_items
		WHERE user_id = $1 AND fingerprint = $2`

	var record domain.WardrobeRecord
	if err := a.db.GetContext(ctx, &record, query, userID, fingerprint); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, out.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (a *WardrobeAdapter) Insert(ctx context.Context, record *domain.WardrobeRecord) error {
	query := `
		INSERT INTO wardrobe_items
			(user_id, fingerprint, brand, name, price, original_price, discount,
			 size, color, quantity, image_url, product_link, category, retailer,
			 source_email_id, order_id, normalized_image_url, reference,
			 dominant_color, color_tag, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, NOW(), NOW())
		RETURNING id`

	err := a.db.QueryRowContext(ctx, query,
		record.UserID, record.Fingerprint, record.Brand, record.Name,
		record.Price, record.OriginalPrice, record.Discount,
		record.Size, record.Color, record.Quantity,
		record.ImageURL, record.ProductLink, record.Category, record.Retailer,
		record.SourceEmailID, record.OrderID, record.NormalizedImageURL,
		record.Reference, record.DominantColor, record.ColorTag,
	).Scan(&record.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return out.ErrDuplicate
		}
		return err
	}
	return nil
}

func (a *WardrobeAdapter) UpdateColorTag(ctx context.Context, id int64, colorTag, dominantColor string) error {
	query := `
		UPDATE wardrobe_items
		SET color_tag = $1, dominant_color = $2, updated_at = NOW()
		WHERE id = $3`

	result, err := a.db.ExecContext(ctx, query, colorTag, dominantColor, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return out.ErrNotFound
	}
	return nil
}

func (a *WardrobeAdapter) ListUntagged(ctx context.Context, userID string, limit int) ([]*domain.WardrobeRecord, error) {
	query := `SELECT ` + wardrobeColumns + `
		FROM wardrobe_items
		WHERE user_id = $1 AND (color_tag = '' OR color_tag = 'unknown')
		ORDER BY created_at DESC
		LIMIT $2`

	var records []*domain.WardrobeRecord
	if err := a.db.SelectContext(ctx, &records, query, userID, limit); err != nil {
		return nil, err
	}
	return records, nil
}

func (a *WardrobeAdapter) ListUsersWithUntagged(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT DISTINCT user_id
		FROM wardrobe_items
		WHERE color_tag = '' OR color_tag = 'unknown'
		LIMIT $1`

	var userIDs []string
	if err := a.db.SelectContext(ctx, &userIDs, query, limit); err != nil {
		return nil, err
	}
	return userIDs, nil
}

// isUniqueViolation matches Postgres error 23505.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key value")
}
