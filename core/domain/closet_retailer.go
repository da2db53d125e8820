package domain

// Canonical retailer identifiers. RetailerUnknown marks emails that matched
// no table entry; they still pass through the generic and AI tiers.
const (
	RetailerMyntra  = "myntra"
	RetailerHM      = "hm"
	RetailerZara    = "zara"
	RetailerUnknown = "unknown"
)

// Retailer is one entry of the classification table. Adding a retailer means
// adding a table entry plus, optionally, a custom parser under the same id.
type Retailer struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	DomainPatterns  []string `json:"domain_patterns"`
	SubjectKeywords []string `json:"subject_keywords"`
	HasCustomParser bool     `json:"has_custom_parser"`

	// Gmail search hints
	SearchQuery string `json:"search_query,omitempty"`
}
