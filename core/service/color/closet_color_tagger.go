// Package color assigns closet filter tags from free-form product color
// names. Name resolution is deterministic and never calls out; only the
// maintenance sweep may sample item images.
package color

import (
	"context"
	"math"
	"strconv"
	"strings"

	"closet_server/core/domain"
	"closet_server/core/port/out"
	"closet_server/pkg/logger"
)

// TagUnknown marks colors no rule could place.
const TagUnknown = "unknown"

// palette maps canonical tags to their reference hex value, used for
// nearest-color resolution of raw hex inputs.
var palette = map[string]string{
	"black":  "#000000",
	"white":  "#ffffff",
	"grey":   "#808080",
	"beige":  "#f5f5dc",
	"red":    "#ff0000",
	"orange": "#ffa500",
	"yellow": "#ffff00",
	"green":  "#008000",
	"blue":   "#0000ff",
	"purple": "#800080",
	"pink":   "#ffc0cb",
	"brown":  "#a52a2a",
	"navy":   "#000080",
}

// variants maps marketing color names onto canonical tags.
var variants = map[string]string{
	"charcoal":      "black",
	"off white":     "white",
	"ivory":         "white",
	"cream":         "beige",
	"silver":        "grey",
	"gray":          "grey",
	"khaki":         "beige",
	"tan":           "beige",
	"nude":          "beige",
	"maroon":        "red",
	"burgundy":      "red",
	"crimson":       "red",
	"coral":         "orange",
	"peach":         "orange",
	"mustard":       "yellow",
	"gold":          "yellow",
	"olive":         "green",
	"emerald":       "green",
	"sage":          "green",
	"mint":          "green",
	"light blue":    "blue",
	"sky blue":      "blue",
	"turquoise":     "blue",
	"teal":          "blue",
	"violet":        "purple",
	"lavender":      "purple",
	"mauve":         "purple",
	"rose":          "pink",
	"magenta":       "pink",
	"chocolate":     "brown",
	"coffee":        "brown",
	"mocha":         "brown",
	"navy blue":     "navy",
	"midnight blue": "navy",
}

// families folds tags that belong to a broader filter group.
var families = map[string]string{
	"navy": "blue",
}

// Tagger resolves and persists color tags.
type Tagger struct {
	repo    out.WardrobeRepository
	sampler *ImageSampler
}

func NewTagger(repo out.WardrobeRepository) *Tagger {
	return &Tagger{repo: repo}
}

// NewTaggerWithSampler enables the image fallback for the sweep.
func NewTaggerWithSampler(repo out.WardrobeRepository, sampler *ImageSampler) *Tagger {
	return &Tagger{repo: repo, sampler: sampler}
}

// ResolveName maps a free-form color name to a canonical tag. Order:
// exact palette tag, known variant, substring of either, raw hex by
// nearest palette color, then a per-word retry. Unresolvable names get
// TagUnknown.
func ResolveName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return TagUnknown
	}

	if _, ok := palette[n]; ok {
		return n
	}
	if tag, ok := variants[n]; ok {
		return tag
	}

	// Longer variant keys first so "navy blue" beats "blue".
	if tag := substringMatch(n); tag != "" {
		return tag
	}

	if hex, ok := parseHex(n); ok {
		return NearestTag(hex[0], hex[1], hex[2])
	}

	for _, word := range strings.Fields(n) {
		if _, ok := palette[word]; ok {
			return word
		}
		if tag, ok := variants[word]; ok {
			return tag
		}
	}

	return TagUnknown
}

func substringMatch(n string) string {
	best := ""
	bestLen := 0
	for key, tag := range variants {
		if strings.Contains(n, key) && len(key) > bestLen {
			best, bestLen = tag, len(key)
		}
	}
	for key := range palette {
		if strings.Contains(n, key) && len(key) > bestLen {
			best, bestLen = key, len(key)
		}
	}
	return best
}

// NearestTag returns the palette tag closest to an RGB value by Euclidean
// distance.
func NearestTag(r, g, b int) string {
	best := TagUnknown
	bestDist := math.MaxFloat64
	for tag, hex := range palette {
		rgb, _ := parseHex(hex)
		dr := float64(r - rgb[0])
		dg := float64(g - rgb[1])
		db := float64(b - rgb[2])
		dist := dr*dr + dg*dg + db*db
		if dist < bestDist {
			bestDist = dist
			best = tag
		}
	}
	return best
}

// Family returns the broad filter group for a tag. Most tags are their
// own family.
func Family(tag string) string {
	if f, ok := families[tag]; ok {
		return f
	}
	return tag
}

func parseHex(s string) ([3]int, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return [3]int{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return [3]int{}, false
	}
	return [3]int{int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)}, true
}

// TagRecord resolves the tag for one wardrobe record from its color name,
// falling back to the dominant color hex when the name resolves to
// nothing.
func (t *Tagger) TagRecord(record *domain.WardrobeRecord) string {
	tag := ResolveName(record.Color)
	if tag == TagUnknown && record.DominantColor != "" {
		if rgb, ok := parseHex(record.DominantColor); ok {
			tag = NearestTag(rgb[0], rgb[1], rgb[2])
		}
	}
	return tag
}

// TagBatch tags freshly inserted records and persists the result. Tagging
// failures are logged and skipped; enrichment never fails an ingest.
func (t *Tagger) TagBatch(ctx context.Context, records []*domain.WardrobeRecord) {
	for _, record := range records {
		tag := t.TagRecord(record)
		record.ColorTag = tag
		if err := t.repo.UpdateColorTag(ctx, record.ID, tag, record.DominantColor); err != nil {
			logger.Warn("[ColorTagger] Failed to tag record %d: %v", record.ID, err)
		}
	}
}

// Sweep retags records that are still untagged, for backfills after
// palette changes.
func (t *Tagger) Sweep(ctx context.Context, userID string, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	records, err := t.repo.ListUntagged(ctx, userID, limit)
	if err != nil {
		return 0, err
	}
	tagged := 0
	for _, record := range records {
		tag := t.TagRecord(record)
		if tag == TagUnknown {
			tag = t.sampleImage(ctx, record)
		}
		if tag == TagUnknown {
			continue
		}
		if err := t.repo.UpdateColorTag(ctx, record.ID, tag, record.DominantColor); err != nil {
			logger.Warn("[ColorTagger] Sweep failed for record %d: %v", record.ID, err)
			continue
		}
		tagged++
	}
	return tagged, nil
}

// sampleImage estimates a dominant color from the item image when neither
// the stated color nor a stored hex resolved. Best effort.
func (t *Tagger) sampleImage(ctx context.Context, record *domain.WardrobeRecord) string {
	if t.sampler == nil || record.DominantColor != "" {
		return TagUnknown
	}
	url := record.ImageURL
	if url == "" {
		return TagUnknown
	}

	hex, err := t.sampler.Dominant(ctx, url)
	if err != nil {
		logger.Debug("[ColorTagger] Image sampling failed for record %d: %v", record.ID, err)
		return TagUnknown
	}

	rgb, ok := parseHex(hex)
	if !ok {
		return TagUnknown
	}
	record.DominantColor = hex
	return NearestTag(rgb[0], rgb[1], rgb[2])
}
