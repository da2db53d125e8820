// Package extraction turns normalized email content into product items
// through a fixed tier order: retailer-specific parser, generic parser,
// then the AI fallback. A tier that errors or panics contributes nothing;
// extraction itself never aborts the email.
package extraction

import (
	"context"
	"fmt"
	"strings"

	"closet_server/core/domain"
	"closet_server/pkg/logger"
)

// Tier names for traces and logs.
const (
	TierCustom  = "custom"
	TierGeneric = "generic"
	TierAI      = "ai"
)

// CustomParser is a retailer-specific template parser.
type CustomParser interface {
	Retailer() string
	Parse(content string) ([]domain.ExtractedItem, error)
}

// TierResult records one tier attempt for the trace.
type TierResult struct {
	Tier      string `json:"tier"`
	Attempted bool   `json:"attempted"`
	ItemCount int    `json:"itemCount"`
	Err       string `json:"error,omitempty"`
}

// Trace is the per-email extraction audit trail.
type Trace struct {
	EmailID     string       `json:"emailId"`
	Retailer    string       `json:"retailer"`
	WinningTier string       `json:"winningTier,omitempty"`
	Tiers       []TierResult `json:"tiers"`
}

// Pipeline runs the tiers in order and keeps the first non-empty result.
type Pipeline struct {
	custom  map[string]CustomParser
	generic *GenericParser
	ai      *AIParser
}

// NewPipeline assembles the pipeline. ai may be nil when no model is
// configured; the AI tier is then skipped.
func NewPipeline(ai *AIParser, custom ...CustomParser) *Pipeline {
	byRetailer := make(map[string]CustomParser, len(custom))
	for _, p := range custom {
		byRetailer[p.Retailer()] = p
	}
	return &Pipeline{
		custom:  byRetailer,
		generic: &GenericParser{},
		ai:      ai,
	}
}

// Extract runs the tiers for one email. The returned trace records every
// attempted tier; items may be empty when all tiers come up dry.
func (p *Pipeline) Extract(ctx context.Context, emailID, retailer string, content *domain.NormalizedContent) ([]domain.ExtractedItem, *Trace) {
	trace := &Trace{EmailID: emailID, Retailer: retailer}

	if parser, ok := p.custom[retailer]; ok {
		items := p.runTier(trace, TierCustom, func() ([]domain.ExtractedItem, error) {
			return parser.Parse(content.HTML)
		})
		if len(items) > 0 {
			trace.WinningTier = TierCustom
			return p.finalize(items, emailID, retailer), trace
		}
	}

	items := p.runTier(trace, TierGeneric, func() ([]domain.ExtractedItem, error) {
		return p.generic.Parse(content.HTML)
	})
	if len(items) > 0 {
		trace.WinningTier = TierGeneric
		return p.finalize(items, emailID, retailer), trace
	}

	if p.ai != nil {
		items = p.runTier(trace, TierAI, func() ([]domain.ExtractedItem, error) {
			return p.ai.Parse(ctx, content, retailer)
		})
		if len(items) > 0 {
			trace.WinningTier = TierAI
			return p.finalize(items, emailID, retailer), trace
		}
	}

	return nil, trace
}

// runTier executes one tier with panic isolation. A panicking parser is
// a data problem in one email, never a reason to kill the job.
func (p *Pipeline) runTier(trace *Trace, tier string, fn func() ([]domain.ExtractedItem, error)) (items []domain.ExtractedItem) {
	result := TierResult{Tier: tier, Attempted: true}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[Pipeline] Tier %s panicked for email %s: %v", tier, trace.EmailID, r)
			result.Err = fmt.Sprintf("panic: %v", r)
			items = nil
		}
		result.ItemCount = len(items)
		trace.Tiers = append(trace.Tiers, result)
	}()

	items, err := fn()
	if err != nil {
		logger.Warn("[Pipeline] Tier %s failed for email %s: %v", tier, trace.EmailID, err)
		result.Err = err.Error()
		return nil
	}
	return items
}

// finalize drops unusable rows and fills derived fields.
func (p *Pipeline) finalize(items []domain.ExtractedItem, emailID, retailer string) []domain.ExtractedItem {
	out := make([]domain.ExtractedItem, 0, len(items))
	for _, item := range items {
		item.Name = cleanText(item.Name)
		if item.Name == "" {
			continue
		}
		if item.Quantity < 1 {
			item.Quantity = 1
		}
		if item.Retailer == "" {
			item.Retailer = retailer
		}
		item.SourceEmailID = emailID
		item.NormalizedImageURL = NormalizeImageURL(item.ImageURL)
		item.Size = strings.TrimSpace(item.Size)
		item.Color = strings.TrimSpace(item.Color)
		out = append(out, item)
	}
	return out
}
