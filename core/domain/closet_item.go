package domain

// ExtractedItem is one product pulled out of an order-confirmation email.
// Never mutated after creation; a re-extraction supersedes it.
type ExtractedItem struct {
	Brand         string `json:"brand,omitempty"`
	Name          string `json:"name"`
	Price         float64 `json:"price,omitempty"`
	OriginalPrice float64 `json:"original_price,omitempty"`
	Discount      string  `json:"discount,omitempty"`
	Size          string `json:"size,omitempty"`
	Color         string `json:"color,omitempty"`
	Quantity      int    `json:"quantity,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
	ProductLink   string `json:"product_link,omitempty"`
	Category      string `json:"category,omitempty"`

	Retailer      string `json:"retailer"`
	SourceEmailID string `json:"source_email_id"`
	OrderID       string `json:"order_id,omitempty"`

	// Derived
	NormalizedImageURL string `json:"normalized_image_url,omitempty"`
	Reference          string `json:"reference,omitempty"`
}

// OrderInfo is the extraction pipeline output for one email.
type OrderInfo struct {
	OrderID   string          `json:"order_id,omitempty"`
	OrderDate string          `json:"order_date,omitempty"`
	Total     string          `json:"total,omitempty"`
	Items     []ExtractedItem `json:"items"`
}
