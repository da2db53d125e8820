package domain

import (
	"time"

	"github.com/google/uuid"
)

// WardrobeRecord is a persisted wardrobe item. Created once per fingerprint;
// only color tag and dominant color may change after creation.
type WardrobeRecord struct {
	ID            int64     `json:"id" db:"id"`
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	Brand         string    `json:"brand,omitempty" db:"brand"`
	Name          string    `json:"name" db:"name"`
	Price         float64   `json:"price,omitempty" db:"price"`
	OriginalPrice float64   `json:"original_price,omitempty" db:"original_price"`
	Discount      string    `json:"discount,omitempty" db:"discount"`
	Size          string    `json:"size,omitempty" db:"size"`
	Color         string    `json:"color,omitempty" db:"color"`
	Quantity      int       `json:"quantity,omitempty" db:"quantity"`
	Category      string    `json:"category,omitempty" db:"category"`
	ImageURL      string    `json:"image_url,omitempty" db:"image_url"`
	ProductLink   string    `json:"product_link,omitempty" db:"product_link"`

	Retailer           string `json:"retailer" db:"retailer"`
	SourceEmailID      string `json:"source_email_id" db:"source_email_id"`
	OrderID            string `json:"order_id,omitempty" db:"order_id"`
	NormalizedImageURL string `json:"normalized_image_url,omitempty" db:"normalized_image_url"`
	Reference          string `json:"reference,omitempty" db:"reference"`
	Fingerprint        string `json:"-" db:"fingerprint"`

	DominantColor string `json:"dominant_color,omitempty" db:"dominant_color"`
	ColorTag      string `json:"color_tag,omitempty" db:"color_tag"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IngestResult summarizes one deduplicated ingest call.
type IngestResult struct {
	TotalItems        int `json:"total_items"`
	AddedItems        int `json:"added_items"`
	DuplicatesSkipped int `json:"duplicates_skipped"`
	Failed            int `json:"failed"`
}
