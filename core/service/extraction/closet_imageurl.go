package extraction

import (
	"regexp"
	"strings"
)

var (
	sizeSegmentRe = regexp.MustCompile(`(?i)/(thumb|small|medium|large|xl|xxl)/`)
	dimensionRe   = regexp.MustCompile(`_\d+x\d+\.`)
)

// NormalizeImageURL canonicalizes a product image URL so the same product
// photo served at different sizes compares equal. Query strings, size path
// segments and _WxH dimension suffixes are stripped.
func NormalizeImageURL(raw string) string {
	if raw == "" {
		return ""
	}
	u := raw
	if idx := strings.Index(u, "?"); idx >= 0 {
		u = u[:idx]
	}
	u = sizeSegmentRe.ReplaceAllString(u, "/")
	u = dimensionRe.ReplaceAllString(u, ".")
	return strings.ToLower(strings.TrimSpace(u))
}
