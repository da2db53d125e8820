// Package dedup guards the wardrobe against double ingestion. Writes for
// one user are serialized so re-running a sync is idempotent.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"closet_server/core/domain"
	"closet_server/core/port/out"
	"closet_server/pkg/logger"

	"github.com/google/uuid"
)

// similarityThreshold is the Jaccard word overlap above which two items
// from the same brand in compatible sizes count as the same product.
const similarityThreshold = 0.7

// Engine ingests extracted items into the wardrobe exactly once.
type Engine struct {
	repo out.WardrobeRepository

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

func NewEngine(repo out.WardrobeRepository) *Engine {
	return &Engine{
		repo:  repo,
		users: make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing ingestion for one user.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.users[userID]; ok {
		return m
	}
	m := &sync.Mutex{}
	e.users[userID] = m
	return m
}

// Fingerprint derives the stable identity of an extracted item. Items
// carrying an order id use retailer, order id, normalized name and size;
// without an order id the normalized image URL identifies the product.
func Fingerprint(item *domain.ExtractedItem) string {
	name := normalizeName(item.Name)
	if item.OrderID != "" {
		return hashKey(item.Retailer, item.OrderID, name, strings.ToLower(item.Size))
	}
	if item.NormalizedImageURL != "" {
		return hashKey(item.Retailer, item.NormalizedImageURL)
	}
	return hashKey(item.Retailer, item.OrderID, name, strings.ToLower(item.Size))
}

func hashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// IngestBatch writes a batch of extracted items for one user. Duplicates
// are counted, never errors. The caller gets the inserted records back for
// downstream enrichment.
func (e *Engine) IngestBatch(ctx context.Context, userID uuid.UUID, items []domain.ExtractedItem) (*domain.IngestResult, []*domain.WardrobeRecord, error) {
	lock := e.userLock(userID.String())
	lock.Lock()
	defer lock.Unlock()

	result := &domain.IngestResult{TotalItems: len(items)}
	if len(items) == 0 {
		return result, nil, nil
	}

	existing, err := e.repo.ListByUser(ctx, userID.String())
	if err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool)
	var inserted []*domain.WardrobeRecord

	for i := range items {
		item := &items[i]
		fp := Fingerprint(item)

		if seen[fp] {
			result.DuplicatesSkipped++
			continue
		}
		seen[fp] = true

		record, err := e.ingestOne(ctx, userID, item, fp, existing)
		if err != nil {
			logger.Warn("[DedupEngine] Failed to ingest item %q for user %s: %v", item.Name, userID, err)
			result.Failed++
			continue
		}
		if record == nil {
			result.DuplicatesSkipped++
			continue
		}
		result.AddedItems++
		inserted = append(inserted, record)
		existing = append(existing, record)
	}

	return result, inserted, nil
}

// ingestOne inserts one item unless a stored record already covers it.
// Returns (nil, nil) for a duplicate.
func (e *Engine) ingestOne(ctx context.Context, userID uuid.UUID, item *domain.ExtractedItem, fp string, existing []*domain.WardrobeRecord) (*domain.WardrobeRecord, error) {
	match, err := e.repo.FindByFingerprint(ctx, userID.String(), fp)
	if err != nil && !errors.Is(err, out.ErrNotFound) {
		return nil, err
	}
	if match != nil {
		return nil, nil
	}

	if e.findSimilar(item, existing) != nil {
		return nil, nil
	}

	now := time.Now()
	record := &domain.WardrobeRecord{
		UserID:             userID,
		Fingerprint:        fp,
		Brand:              item.Brand,
		Name:               item.Name,
		Price:              item.Price,
		OriginalPrice:      item.OriginalPrice,
		Discount:           item.Discount,
		Size:               item.Size,
		Color:              item.Color,
		Quantity:           item.Quantity,
		ImageURL:           item.ImageURL,
		ProductLink:        item.ProductLink,
		Category:           item.Category,
		Retailer:           item.Retailer,
		SourceEmailID:      item.SourceEmailID,
		OrderID:            item.OrderID,
		NormalizedImageURL: item.NormalizedImageURL,
		Reference:          item.Reference,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = e.repo.Insert(ctx, record)
	if err != nil && !errors.Is(err, out.ErrDuplicate) {
		// Transient store errors get one retry before the item is skipped.
		logger.Warn("[DedupEngine] Insert failed for %q, retrying once: %v", item.Name, err)
		err = e.repo.Insert(ctx, record)
	}
	if err != nil {
		if errors.Is(err, out.ErrDuplicate) {
			// Lost a race against another writer; the unique index on the
			// fingerprint is the source of truth.
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// findSimilar catches near-duplicates whose fingerprints differ because a
// retailer reworded the product name between emails.
func (e *Engine) findSimilar(item *domain.ExtractedItem, existing []*domain.WardrobeRecord) *domain.WardrobeRecord {
	for _, rec := range existing {
		if rec.Retailer != item.Retailer {
			continue
		}
		if !strings.EqualFold(rec.Brand, item.Brand) {
			continue
		}
		if !sizesCompatible(rec.Size, item.Size) {
			continue
		}
		if jaccard(rec.Name, item.Name) > similarityThreshold {
			return rec
		}
	}
	return nil
}

// sizesCompatible treats a missing size as matching anything.
func sizesCompatible(a, b string) bool {
	if a == "" || b == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// jaccard computes word-set overlap over words longer than three
// characters, so filler like "the" and "fit" never dominates.
func jaccard(a, b string) float64 {
	setA := significantWords(a)
	setB := significantWords(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func significantWords(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if len(w) > 3 {
			words[w] = true
		}
	}
	return words
}
