package extraction

import (
	"context"
	"strings"
	"unicode/utf8"

	"closet_server/core/domain"
	"closet_server/core/port/out"

	"github.com/microcosm-cc/bluemonday"
)

// AIParser is the last extraction tier. It flattens the email to plain
// text and hands it to the model behind the ItemExtractor port. Never run
// before the rule-based tiers.
type AIParser struct {
	extractor out.ItemExtractor
	policy    *bluemonday.Policy
	maxChars  int
}

// NewAIParser wraps an extractor. maxChars bounds the flattened input; a
// non-positive value keeps the default of 32000.
func NewAIParser(extractor out.ItemExtractor, maxChars int) *AIParser {
	if maxChars <= 0 {
		maxChars = 32000
	}
	return &AIParser{
		extractor: extractor,
		policy:    bluemonday.StrictPolicy(),
		maxChars:  maxChars,
	}
}

func (p *AIParser) Parse(ctx context.Context, content *domain.NormalizedContent, retailer string) ([]domain.ExtractedItem, error) {
	flat := p.flatten(content)
	if flat == "" {
		return nil, nil
	}
	return p.extractor.ExtractItems(ctx, flat, retailer)
}

// flatten prefers the plain text body and strips the HTML body to text
// otherwise. Long inputs are truncated so model costs stay bounded.
func (p *AIParser) flatten(content *domain.NormalizedContent) string {
	flat := strings.TrimSpace(content.Text)
	if flat == "" && content.HTML != "" {
		flat = cleanText(p.policy.Sanitize(content.HTML))
	}
	if len(flat) > p.maxChars {
		// Back the cut up to a rune boundary so a multi-byte character
		// is never split in half.
		cut := p.maxChars
		for cut > 0 && !utf8.RuneStart(flat[cut]) {
			cut--
		}
		flat = flat[:cut] + "..."
	}
	return flat
}
