package color

import (
	"context"
	"testing"

	"closet_server/core/domain"
	"closet_server/core/port/out"

	"github.com/google/uuid"
)

func TestResolveName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"exact tag", "black", "black"},
		{"case insensitive", "Navy", "navy"},
		{"variant", "charcoal", "black"},
		{"two word variant", "Navy Blue", "navy"},
		{"variant beats base substring", "midnight blue", "navy"},
		{"substring", "Dark Olive Green Cargo", "green"},
		{"hex input", "#ff0001", "red"},
		{"hex near navy", "#00006f", "navy"},
		{"word split retry", "solid mustard print", "yellow"},
		{"unknown", "multicolour", TagUnknown},
		{"empty", "", TagUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveName(tt.input); got != tt.want {
				t.Errorf("ResolveName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNavyIsBlueFamily(t *testing.T) {
	tag := ResolveName("Navy")
	if tag != "navy" {
		t.Fatalf("ResolveName(Navy) = %q, want navy", tag)
	}
	if Family(tag) != "blue" {
		t.Errorf("Family(navy) = %q, want blue", Family(tag))
	}
}

func TestNearestTag(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b int
		want    string
	}{
		{"pure black", 0, 0, 0, "black"},
		{"near white", 250, 250, 250, "white"},
		{"dark blue", 10, 10, 120, "navy"},
		{"bright blue", 30, 30, 255, "blue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NearestTag(tt.r, tt.g, tt.b); got != tt.want {
				t.Errorf("NearestTag(%d,%d,%d) = %q, want %q", tt.r, tt.g, tt.b, got, tt.want)
			}
		})
	}
}

type recordingRepo struct {
	tags     map[int64]string
	untagged []*domain.WardrobeRecord
}

func (r *recordingRepo) ListByUser(ctx context.Context, userID string) ([]*domain.WardrobeRecord, error) {
	return nil, nil
}
func (r *recordingRepo) FindByFingerprint(ctx context.Context, userID, fingerprint string) (*domain.WardrobeRecord, error) {
	return nil, out.ErrNotFound
}
func (r *recordingRepo) Insert(ctx context.Context, record *domain.WardrobeRecord) error { return nil }
func (r *recordingRepo) UpdateColorTag(ctx context.Context, id int64, colorTag, dominantColor string) error {
	r.tags[id] = colorTag
	return nil
}
func (r *recordingRepo) ListUntagged(ctx context.Context, userID string, limit int) ([]*domain.WardrobeRecord, error) {
	return r.untagged, nil
}
func (r *recordingRepo) ListUsersWithUntagged(ctx context.Context, limit int) ([]string, error) {
	return nil, nil
}

func TestTagBatch(t *testing.T) {
	repo := &recordingRepo{tags: make(map[int64]string)}
	tagger := NewTagger(repo)

	records := []*domain.WardrobeRecord{
		{ID: 1, Color: "Charcoal"},
		{ID: 2, Color: "", DominantColor: "#fefefe"},
		{ID: 3, Color: "no such color"},
	}
	tagger.TagBatch(context.Background(), records)

	if repo.tags[1] != "black" {
		t.Errorf("record 1 tag = %q, want black", repo.tags[1])
	}
	if repo.tags[2] != "white" {
		t.Errorf("record 2 tag = %q, want white from dominant color", repo.tags[2])
	}
	if repo.tags[3] != TagUnknown {
		t.Errorf("record 3 tag = %q, want unknown", repo.tags[3])
	}
	if records[1].ColorTag != "white" {
		t.Errorf("in-memory record not updated: %q", records[1].ColorTag)
	}
}

func TestSweep(t *testing.T) {
	repo := &recordingRepo{tags: make(map[int64]string)}
	repo.untagged = []*domain.WardrobeRecord{
		{ID: 7, UserID: uuid.New(), Color: "Burgundy"},
		{ID: 8, UserID: uuid.New(), Color: "gibberish"},
	}
	tagger := NewTagger(repo)

	tagged, err := tagger.Sweep(context.Background(), uuid.NewString(), 0)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if tagged != 1 {
		t.Errorf("tagged = %d, want 1 (unknowns skipped)", tagged)
	}
	if repo.tags[7] != "red" {
		t.Errorf("record 7 tag = %q, want red", repo.tags[7])
	}
	if _, ok := repo.tags[8]; ok {
		t.Error("unresolvable record should not be written")
	}
}
