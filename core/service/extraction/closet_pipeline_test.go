package extraction

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"closet_server/core/domain"
)

type fakeExtractor struct {
	items []domain.ExtractedItem
	err   error
	calls int
}

func (f *fakeExtractor) ExtractItems(ctx context.Context, content, retailer string) ([]domain.ExtractedItem, error) {
	f.calls++
	return f.items, f.err
}

type panickingParser struct{ retailer string }

func (p *panickingParser) Retailer() string { return p.retailer }
func (p *panickingParser) Parse(content string) ([]domain.ExtractedItem, error) {
	panic("malformed template")
}

type failingParser struct{ retailer string }

func (p *failingParser) Retailer() string { return p.retailer }
func (p *failingParser) Parse(content string) ([]domain.ExtractedItem, error) {
	return nil, errors.New("parse error")
}

func TestExtractTierOrder(t *testing.T) {
	t.Run("custom tier wins when it yields", func(t *testing.T) {
		ai := &fakeExtractor{items: []domain.ExtractedItem{{Name: "From AI"}}}
		p := NewPipeline(NewAIParser(ai, 0), &MyntraParser{})

		content := &domain.NormalizedContent{HTML: myntraSample}
		items, trace := p.Extract(context.Background(), "msg-1", domain.RetailerMyntra, content)

		if len(items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(items))
		}
		if trace.WinningTier != TierCustom {
			t.Errorf("winning tier = %q, want custom", trace.WinningTier)
		}
		if ai.calls != 0 {
			t.Errorf("AI tier ran %d times, want 0", ai.calls)
		}
	})

	t.Run("panicking custom downgrades to generic", func(t *testing.T) {
		ai := &fakeExtractor{}
		p := NewPipeline(NewAIParser(ai, 0), &panickingParser{retailer: domain.RetailerMyntra})

		content := &domain.NormalizedContent{HTML: `<div class="product"><strong>Plain Tee</strong><span>₹499</span></div>`}
		items, trace := p.Extract(context.Background(), "msg-2", domain.RetailerMyntra, content)

		if len(items) != 1 || items[0].Name != "Plain Tee" {
			t.Fatalf("expected generic result, got %+v", items)
		}
		if trace.WinningTier != TierGeneric {
			t.Errorf("winning tier = %q, want generic", trace.WinningTier)
		}
		if trace.Tiers[0].Err == "" {
			t.Error("expected custom tier error recorded in trace")
		}
	})

	t.Run("AI runs only after rule tiers come up dry", func(t *testing.T) {
		ai := &fakeExtractor{items: []domain.ExtractedItem{{Name: "Knit Sweater", Price: 1200}}}
		p := NewPipeline(NewAIParser(ai, 0), &failingParser{retailer: domain.RetailerZara})

		content := &domain.NormalizedContent{Text: "your order of one knit sweater"}
		items, trace := p.Extract(context.Background(), "msg-3", domain.RetailerZara, content)

		if len(items) != 1 || items[0].Name != "Knit Sweater" {
			t.Fatalf("expected AI result, got %+v", items)
		}
		if trace.WinningTier != TierAI {
			t.Errorf("winning tier = %q, want ai", trace.WinningTier)
		}
		if ai.calls != 1 {
			t.Errorf("AI calls = %d, want 1", ai.calls)
		}
		if len(trace.Tiers) != 3 {
			t.Errorf("expected 3 tier attempts, got %d", len(trace.Tiers))
		}
	})

	t.Run("all tiers dry returns empty without error", func(t *testing.T) {
		ai := &fakeExtractor{err: errors.New("rate limited")}
		p := NewPipeline(NewAIParser(ai, 0))

		content := &domain.NormalizedContent{Text: "shipping update"}
		items, trace := p.Extract(context.Background(), "msg-4", domain.RetailerUnknown, content)

		if len(items) != 0 {
			t.Fatalf("expected no items, got %d", len(items))
		}
		if trace.WinningTier != "" {
			t.Errorf("winning tier = %q, want empty", trace.WinningTier)
		}
	})

	t.Run("nil AI parser skips the AI tier", func(t *testing.T) {
		p := NewPipeline(nil)
		content := &domain.NormalizedContent{Text: "nothing here"}
		items, trace := p.Extract(context.Background(), "msg-5", domain.RetailerUnknown, content)
		if len(items) != 0 {
			t.Fatalf("expected no items, got %d", len(items))
		}
		for _, tier := range trace.Tiers {
			if tier.Tier == TierAI {
				t.Error("AI tier should not be attempted without a parser")
			}
		}
	})
}

func TestFlattenTruncation(t *testing.T) {
	t.Run("cut backs up to a rune boundary", func(t *testing.T) {
		p := NewAIParser(&fakeExtractor{}, 10)
		// "Price is " is nine bytes; the rupee sign spans bytes 9 to 11,
		// so a byte-ten cut would land inside it.
		got := p.flatten(&domain.NormalizedContent{Text: "Price is ₹999"})
		if got != "Price is ..." {
			t.Errorf("flatten = %q, want %q", got, "Price is ...")
		}
		if !utf8.ValidString(got) {
			t.Errorf("flatten produced invalid UTF-8: %q", got)
		}
	})

	t.Run("short input passes through untouched", func(t *testing.T) {
		p := NewAIParser(&fakeExtractor{}, 100)
		got := p.flatten(&domain.NormalizedContent{Text: "₹499 tee"})
		if got != "₹499 tee" {
			t.Errorf("flatten = %q, want input unchanged", got)
		}
	})
}

func TestFinalize(t *testing.T) {
	p := NewPipeline(nil)
	items := p.finalize([]domain.ExtractedItem{
		{Name: "  Trimmed  Name ", ImageURL: "https://cdn.example/thumb/a.jpg?x=1"},
		{Name: ""},
		{Name: "Zero Qty", Quantity: 0},
	}, "msg-9", domain.RetailerHM)

	if len(items) != 2 {
		t.Fatalf("expected empty-name row dropped, got %d items", len(items))
	}
	if items[0].Name != "Trimmed Name" {
		t.Errorf("name = %q", items[0].Name)
	}
	if items[0].NormalizedImageURL != "https://cdn.example/a.jpg" {
		t.Errorf("normalized image = %q", items[0].NormalizedImageURL)
	}
	if items[0].SourceEmailID != "msg-9" || items[0].Retailer != domain.RetailerHM {
		t.Errorf("derived fields not filled: %+v", items[0])
	}
	if items[1].Quantity != 1 {
		t.Errorf("quantity = %d, want clamped to 1", items[1].Quantity)
	}
}
