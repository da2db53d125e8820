package normalize

import (
	"strings"
	"testing"

	"closet_server/core/domain"
)

func TestUnwrapText(t *testing.T) {
	n := New(0.5)

	t.Run("unwraps when forwarded block dominates", func(t *testing.T) {
		inner := "Your Myntra order OD12345 has been confirmed. " + strings.Repeat("Item details. ", 20)
		input := "FYI see below\n\nBegin forwarded message\n" + inner

		got := n.UnwrapText(input)
		if strings.Contains(got, "Begin forwarded message") {
			t.Errorf("marker should be stripped, got %q", got[:40])
		}
		if !strings.HasPrefix(got, "Your Myntra order") {
			t.Errorf("expected content after marker, got %q", got[:40])
		}
		if !strings.Contains(got, "OD12345") {
			t.Error("unwrapped content lost the order body")
		}
	})

	t.Run("keeps input when remainder is too short", func(t *testing.T) {
		// The marker sits at 90% depth, so the remainder is only 10% of the
		// original and the mention is treated as inline.
		long := strings.Repeat("This is the actual order confirmation body. ", 30)
		input := long + "Original Message footer"

		got := n.UnwrapText(input)
		if got != input {
			t.Errorf("expected input unchanged, got %q", got)
		}
	})

	t.Run("no marker returns input byte for byte", func(t *testing.T) {
		input := "Your order has shipped.\nTrack it here."
		if got := n.UnwrapText(input); got != input {
			t.Errorf("expected identical output, got %q", got)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if got := n.UnwrapText(""); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
	})
}

func TestUnwrapHTML(t *testing.T) {
	n := New(0.5)

	t.Run("unwraps past hr when retailer signal present", func(t *testing.T) {
		input := `<div>Check this out</div><hr><table>Order from myntra.com</table>`
		got := n.UnwrapHTML(input)
		if strings.Contains(got, "Check this out") {
			t.Errorf("wrapper should be stripped, got %q", got)
		}
		if !strings.Contains(got, "myntra.com") {
			t.Errorf("inner content lost, got %q", got)
		}
	})

	t.Run("keeps input when no retailer signal below separator", func(t *testing.T) {
		input := `<div>Newsletter from zara.com</div><hr><div>Unrelated footer</div>`
		if got := n.UnwrapHTML(input); got != input {
			t.Errorf("expected input unchanged, got %q", got)
		}
	})

	t.Run("gmail forward banner", func(t *testing.T) {
		input := `<div>fyi</div><div>-------- Forwarded message --------</div><div>From: noreply@zara.com</div>`
		got := n.UnwrapHTML(input)
		if strings.Contains(got, "fyi") {
			t.Error("expected wrapper stripped")
		}
		if !strings.Contains(got, "noreply@zara.com") {
			t.Error("expected inner content kept")
		}
	})

	t.Run("entity encoded brand counts as signal", func(t *testing.T) {
		input := `<p>see below</p><hr><p>Thanks for shopping at H&amp;M</p>`
		got := n.UnwrapHTML(input)
		if strings.Contains(got, "see below") {
			t.Errorf("wrapper should be stripped, got %q", got)
		}
		if !strings.Contains(got, "H&amp;M") {
			t.Errorf("inner content lost, got %q", got)
		}
	})
}

func TestNormalize(t *testing.T) {
	n := New(0.5)
	email := &domain.RawEmail{
		ID:       "msg-1",
		Subject:  "Fwd: Order Confirmation",
		BodyHTML: `<div>fyi</div><hr><div>Order from myntra</div>`,
		BodyText: "plain body",
	}

	content := n.Normalize(email)
	if strings.Contains(content.HTML, "fyi") || !strings.Contains(content.HTML, "Order from myntra") {
		t.Errorf("expected unwrapped HTML, got %q", content.HTML)
	}
	if content.Text != "plain body" {
		t.Errorf("unexpected text mutation: %q", content.Text)
	}
	if content.IsEmpty() {
		t.Error("content should not be empty")
	}
}

func TestNormalizeSubject(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		want    string
	}{
		{"plain", "Order Confirmation", "Order Confirmation"},
		{"fwd prefix", "Fwd: Order Confirmation", "Order Confirmation"},
		{"stacked prefixes", "Re: FW: fwd: Order Confirmation", "Order Confirmation"},
		{"leading whitespace", "  Fw: Your Zara order", "Your Zara order"},
		{"prefix mid subject kept", "Order Re: stock", "Order Re: stock"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeSubject(tt.subject); got != tt.want {
				t.Errorf("NormalizeSubject(%q) = %q, want %q", tt.subject, got, tt.want)
			}
		})
	}
}

func TestDecodeQuotedPrintable(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain passthrough", "hello world", "hello world"},
		{"soft line break", "hello=\r\nworld", "helloworld"},
		{"soft break unix", "hello=\nworld", "helloworld"},
		{"hex escape", "a=3Db", "a=b"},
		{"rupee sign multi byte", "=E2=82=B9999", "₹999"},
		{"invalid escape kept", "100=ZZ", "100=ZZ"},
		{"trailing equals kept", "dangling=", "dangling="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeQuotedPrintable(tt.input); got != tt.want {
				t.Errorf("DecodeQuotedPrintable(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
