package dedup

import (
	"context"
	"sync"
	"testing"

	"closet_server/core/domain"
	"closet_server/core/port/out"

	"github.com/google/uuid"
)

type fakeWardrobeRepo struct {
	mu      sync.Mutex
	records []*domain.WardrobeRecord
	nextID  int64
}

func (f *fakeWardrobeRepo) ListByUser(ctx context.Context, userID string) ([]*domain.WardrobeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var outRecs []*domain.WardrobeRecord
	for _, r := range f.records {
		if r.UserID.String() == userID {
			outRecs = append(outRecs, r)
		}
	}
	return outRecs, nil
}

func (f *fakeWardrobeRepo) FindByFingerprint(ctx context.Context, userID, fingerprint string) (*domain.WardrobeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.UserID.String() == userID && r.Fingerprint == fingerprint {
			return r, nil
		}
	}
	return nil, out.ErrNotFound
}

func (f *fakeWardrobeRepo) Insert(ctx context.Context, record *domain.WardrobeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.UserID == record.UserID && r.Fingerprint == record.Fingerprint {
			return out.ErrDuplicate
		}
	}
	f.nextID++
	record.ID = f.nextID
	f.records = append(f.records, record)
	return nil
}

func (f *fakeWardrobeRepo) UpdateColorTag(ctx context.Context, id int64, colorTag, dominantColor string) error {
	return nil
}

func (f *fakeWardrobeRepo) ListUntagged(ctx context.Context, userID string, limit int) ([]*domain.WardrobeRecord, error) {
	return nil, nil
}

func (f *fakeWardrobeRepo) ListUsersWithUntagged(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}

func sampleItems() []domain.ExtractedItem {
	return []domain.ExtractedItem{
		{Retailer: domain.RetailerMyntra, OrderID: "MON1", Name: "Cotton Shirt", Brand: "Roadster", Size: "M", Price: 999, OriginalPrice: 1299, Quantity: 2, Reference: "0970819001"},
		{Retailer: domain.RetailerMyntra, OrderID: "MON1", Name: "Slim Jeans", Brand: "Roadster", Size: "32", Price: 1499},
	}
}

func TestIngestBatch(t *testing.T) {
	userID := uuid.New()

	t.Run("fresh batch inserts everything", func(t *testing.T) {
		engine := NewEngine(&fakeWardrobeRepo{})
		result, inserted, err := engine.IngestBatch(context.Background(), userID, sampleItems())
		if err != nil {
			t.Fatalf("IngestBatch failed: %v", err)
		}
		if result.AddedItems != 2 || result.DuplicatesSkipped != 0 {
			t.Errorf("result = %+v, want 2 added", result)
		}
		if len(inserted) != 2 {
			t.Fatalf("inserted = %d records, want 2", len(inserted))
		}
		first := inserted[0]
		if first.Price != 999 || first.OriginalPrice != 1299 {
			t.Errorf("prices = %v/%v, want 999/1299", first.Price, first.OriginalPrice)
		}
		if first.Quantity != 2 {
			t.Errorf("quantity = %d, want 2", first.Quantity)
		}
		if first.Reference != "0970819001" {
			t.Errorf("reference = %q, want 0970819001", first.Reference)
		}
	})

	t.Run("re-ingesting the same batch is idempotent", func(t *testing.T) {
		engine := NewEngine(&fakeWardrobeRepo{})
		items := sampleItems()

		first, _, err := engine.IngestBatch(context.Background(), userID, items)
		if err != nil {
			t.Fatalf("first ingest failed: %v", err)
		}
		if first.AddedItems != 2 {
			t.Fatalf("first ingest added %d, want 2", first.AddedItems)
		}

		second, inserted, err := engine.IngestBatch(context.Background(), userID, items)
		if err != nil {
			t.Fatalf("second ingest failed: %v", err)
		}
		if second.AddedItems != 0 {
			t.Errorf("second ingest added %d, want 0", second.AddedItems)
		}
		if second.DuplicatesSkipped != second.TotalItems {
			t.Errorf("duplicates = %d, want %d", second.DuplicatesSkipped, second.TotalItems)
		}
		if len(inserted) != 0 {
			t.Errorf("second ingest returned %d records, want 0", len(inserted))
		}
	})

	t.Run("intra-batch duplicates collapse", func(t *testing.T) {
		engine := NewEngine(&fakeWardrobeRepo{})
		items := append(sampleItems(), sampleItems()[0])

		result, _, err := engine.IngestBatch(context.Background(), userID, items)
		if err != nil {
			t.Fatalf("IngestBatch failed: %v", err)
		}
		if result.AddedItems != 2 || result.DuplicatesSkipped != 1 {
			t.Errorf("result = %+v, want 2 added 1 skipped", result)
		}
	})

	t.Run("reworded near-duplicate is skipped", func(t *testing.T) {
		engine := NewEngine(&fakeWardrobeRepo{})
		original := []domain.ExtractedItem{
			{Retailer: domain.RetailerMyntra, OrderID: "MON2", Name: "Roadster Classic Cotton Casual Shirt", Brand: "Roadster", Size: "M"},
		}
		if _, _, err := engine.IngestBatch(context.Background(), userID, original); err != nil {
			t.Fatalf("seed ingest failed: %v", err)
		}

		reworded := []domain.ExtractedItem{
			{Retailer: domain.RetailerMyntra, OrderID: "MON3", Name: "Classic Cotton Casual Shirt Roadster", Brand: "Roadster", Size: "M"},
		}
		result, _, err := engine.IngestBatch(context.Background(), userID, reworded)
		if err != nil {
			t.Fatalf("IngestBatch failed: %v", err)
		}
		if result.AddedItems != 0 || result.DuplicatesSkipped != 1 {
			t.Errorf("result = %+v, want near-duplicate skipped", result)
		}
	})

	t.Run("different sizes are distinct items", func(t *testing.T) {
		engine := NewEngine(&fakeWardrobeRepo{})
		items := []domain.ExtractedItem{
			{Retailer: domain.RetailerZara, OrderID: "5100", Name: "Straight Fit Jeans", Brand: "Zara", Size: "30"},
			{Retailer: domain.RetailerZara, OrderID: "5100", Name: "Straight Fit Jeans", Brand: "Zara", Size: "32"},
		}
		result, _, err := engine.IngestBatch(context.Background(), userID, items)
		if err != nil {
			t.Fatalf("IngestBatch failed: %v", err)
		}
		if result.AddedItems != 2 {
			t.Errorf("result = %+v, want both sizes added", result)
		}
	})

	t.Run("users do not share fingerprints", func(t *testing.T) {
		engine := NewEngine(&fakeWardrobeRepo{})
		other := uuid.New()

		if _, _, err := engine.IngestBatch(context.Background(), userID, sampleItems()); err != nil {
			t.Fatalf("first user ingest failed: %v", err)
		}
		result, _, err := engine.IngestBatch(context.Background(), other, sampleItems())
		if err != nil {
			t.Fatalf("second user ingest failed: %v", err)
		}
		if result.AddedItems != 2 {
			t.Errorf("second user added %d, want 2", result.AddedItems)
		}
	})
}

func TestFingerprint(t *testing.T) {
	t.Run("stable across whitespace and case", func(t *testing.T) {
		a := Fingerprint(&domain.ExtractedItem{Retailer: "myntra", OrderID: "MON1", Name: "Cotton  Shirt", Size: "M"})
		b := Fingerprint(&domain.ExtractedItem{Retailer: "myntra", OrderID: "MON1", Name: "cotton shirt", Size: "m"})
		if a != b {
			t.Error("fingerprints should match across case and whitespace")
		}
	})

	t.Run("image fallback when order identity missing", func(t *testing.T) {
		a := Fingerprint(&domain.ExtractedItem{Retailer: "hm", Name: "Hoodie", NormalizedImageURL: "https://assets.hm.com/articles/1.jpg"})
		b := Fingerprint(&domain.ExtractedItem{Retailer: "hm", Name: "Regular Hoodie", NormalizedImageURL: "https://assets.hm.com/articles/1.jpg"})
		if a != b {
			t.Error("image fallback should ignore name differences")
		}
	})

	t.Run("image fallback wins over size when order id missing", func(t *testing.T) {
		a := Fingerprint(&domain.ExtractedItem{Retailer: "hm", Name: "Hoodie", Size: "M", NormalizedImageURL: "https://assets.hm.com/articles/1.jpg"})
		b := Fingerprint(&domain.ExtractedItem{Retailer: "hm", Name: "Hoodie", Size: "L", NormalizedImageURL: "https://assets.hm.com/articles/1.jpg"})
		if a != b {
			t.Error("without an order id the image URL is the identity, size must not split it")
		}
	})

	t.Run("retailer partitions the space", func(t *testing.T) {
		a := Fingerprint(&domain.ExtractedItem{Retailer: "myntra", OrderID: "1", Name: "Shirt", Size: "M"})
		b := Fingerprint(&domain.ExtractedItem{Retailer: "zara", OrderID: "1", Name: "Shirt", Size: "M"})
		if a == b {
			t.Error("different retailers must not collide")
		}
	})
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		high bool
	}{
		{"identical", "Classic Cotton Shirt", "Classic Cotton Shirt", true},
		{"reordered", "Classic Cotton Casual Shirt", "Casual Cotton Classic Shirt", true},
		{"unrelated", "Classic Cotton Shirt", "Leather Winter Jacket", false},
		{"short words ignored", "Top in red", "Top in blue", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jaccard(tt.a, tt.b)
			if tt.high && got <= similarityThreshold {
				t.Errorf("jaccard(%q, %q) = %v, want above threshold", tt.a, tt.b, got)
			}
			if !tt.high && got > similarityThreshold {
				t.Errorf("jaccard(%q, %q) = %v, want at or below threshold", tt.a, tt.b, got)
			}
		})
	}
}
