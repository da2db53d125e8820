// Package retailer maps incoming emails to a known retailer via a
// registry of domain patterns and subject keywords.
package retailer

import (
	"strings"

	"closet_server/core/domain"
	"closet_server/pkg/logger"
)

// Confidence scoring. An exact sender domain match is authoritative, a
// subdomain match slightly less so, and subject keywords are a weak hint
// used for forwarded emails where the sender is the forwarding user.
const (
	domainScore    = 1.0
	subdomainScore = 0.95
	subjectScore   = 0.6
	threshold      = 0.5
)

// Match is one classification outcome.
type Match struct {
	Retailer   string
	Confidence float64
}

// Classifier holds the retailer registry.
type Classifier struct {
	registry []*domain.Retailer
}

// NewClassifier creates a classifier seeded with the built-in retailers.
func NewClassifier() *Classifier {
	c := &Classifier{}
	for _, r := range builtinRetailers() {
		c.Register(r)
	}
	return c
}

// Register adds a retailer definition. Later registrations of the same id
// replace the earlier one.
func (c *Classifier) Register(r *domain.Retailer) {
	for i, existing := range c.registry {
		if existing.ID == r.ID {
			c.registry[i] = r
			return
		}
	}
	c.registry = append(c.registry, r)
}

// Retailers returns the registered definitions in registration order.
func (c *Classifier) Retailers() []*domain.Retailer {
	return c.registry
}

// Get returns a retailer definition by id, or nil.
func (c *Classifier) Get(id string) *domain.Retailer {
	for _, r := range c.registry {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Classify resolves the retailer for an email from its sender address and
// subject. Below the confidence threshold the email is RetailerUnknown.
func (c *Classifier) Classify(from, subject string) Match {
	senderDomain := extractDomain(from)
	lowerSubject := strings.ToLower(subject)

	best := Match{Retailer: domain.RetailerUnknown}

	for _, r := range c.registry {
		score := 0.0
		for _, pattern := range r.DomainPatterns {
			if senderDomain == pattern {
				score = domainScore
				break
			}
			if strings.HasSuffix(senderDomain, "."+pattern) {
				if subdomainScore > score {
					score = subdomainScore
				}
			}
		}
		if score == 0 {
			for _, kw := range r.SubjectKeywords {
				if strings.Contains(lowerSubject, strings.ToLower(kw)) {
					score = subjectScore
					break
				}
			}
		}
		if score > best.Confidence {
			best = Match{Retailer: r.ID, Confidence: score}
		}
	}

	if best.Confidence < threshold {
		logger.Debug("[Classifier] No retailer match for sender %q", senderDomain)
		return Match{Retailer: domain.RetailerUnknown}
	}
	return best
}

// BuildQuery returns the mailbox search query for a retailer. The query
// searches all folders and accepts forwarded subjects so confirmations
// forwarded from another mailbox still surface.
func (c *Classifier) BuildQuery(retailerID string) string {
	r := c.Get(retailerID)
	if r == nil || r.SearchQuery == "" {
		// Cross-retailer sweep over everything that looks like an order
		// confirmation, original or forwarded.
		return `in:anywhere (from:myntra.com OR from:delivery.hm.com OR from:noreply@zara.com OR subject:(FW OR Fwd OR FWD))`
	}
	return "in:anywhere (" + r.SearchQuery + " OR subject:(FW OR Fwd OR FWD))"
}

// extractDomain pulls the bare domain out of a From header value such as
// "Myntra <noreply@myntra.com>".
func extractDomain(from string) string {
	addr := from
	if start := strings.LastIndex(from, "<"); start >= 0 {
		end := strings.Index(from[start:], ">")
		if end > 0 {
			addr = from[start+1 : start+end]
		}
	}
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(addr[at+1:]))
}

func builtinRetailers() []*domain.Retailer {
	return []*domain.Retailer{
		{
			ID:              domain.RetailerMyntra,
			Name:            "Myntra",
			DomainPatterns:  []string{"myntra.com"},
			SubjectKeywords: []string{"myntra"},
			HasCustomParser: true,
			SearchQuery:     `from:myntra.com`,
		},
		{
			ID:              domain.RetailerHM,
			Name:            "H&M",
			DomainPatterns:  []string{"hm.com", "delivery.hm.com", "www2.hm.com"},
			SubjectKeywords: []string{"h&m"},
			HasCustomParser: true,
			SearchQuery:     `from:delivery.hm.com subject:"Order Confirmation"`,
		},
		{
			ID:              domain.RetailerZara,
			Name:            "Zara",
			DomainPatterns:  []string{"zara.com"},
			SubjectKeywords: []string{"zara"},
			HasCustomParser: true,
			SearchQuery:     `from:noreply@zara.com`,
		},
	}
}
