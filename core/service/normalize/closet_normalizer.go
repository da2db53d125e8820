// Package normalize cleans forwarded wrapper noise out of raw email
// bodies before classification and extraction.
package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"closet_server/core/domain"
	"closet_server/pkg/logger"
)

// Markers that open a forwarded block in plain text bodies.
var forwardMarkers = []string{
	"Begin forwarded message",
	"Forwarded message",
	"-------- Forwarded message --------",
	"Original Message",
}

// Separators that open a forwarded block in HTML bodies.
var htmlSeparators = []string{
	"-------- Forwarded message --------",
	"<hr",
}

// Tokens whose presence below an HTML separator marks the inner content as
// the retailer's original email.
var retailerSignals = []string{
	"myntra",
	"myntra.com",
	"zara",
	"zara.com",
	"h&amp;m",
	"h&m",
	"hm.com",
	"www2.hm.com",
	"delivery.hm.com",
}

var (
	subjectPrefixRe = regexp.MustCompile(`(?i)^\s*((re|fwd?|fw)\s*:\s*)+`)
	softBreakRe     = regexp.MustCompile(`=\r?\n`)
)

// Normalizer unwraps forwarded emails. Unwrapping never errors; when no
// marker passes the gates the input comes back untouched.
type Normalizer struct {
	// Minimum fraction of the original length the unwrapped remainder must
	// keep for text unwrapping to apply.
	lengthRatio float64
}

// New creates a normalizer. ratio outside (0,1] falls back to 0.5.
func New(ratio float64) *Normalizer {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	return &Normalizer{lengthRatio: ratio}
}

// Normalize unwraps both bodies of a raw email and strips forward
// prefixes off the subject.
func (n *Normalizer) Normalize(email *domain.RawEmail) *domain.NormalizedContent {
	content := &domain.NormalizedContent{
		HTML: n.UnwrapHTML(email.BodyHTML),
		Text: n.UnwrapText(email.BodyText),
	}
	if content.HTML != email.BodyHTML || content.Text != email.BodyText {
		logger.Debug("[Normalizer] Unwrapped forwarded content for email %s", email.ID)
	}
	return content
}

// UnwrapText strips the forwarding preamble from a plain text body. The
// remainder must keep more than the length ratio of the original, otherwise
// the marker is treated as an inline mention and the input is returned
// unchanged.
func (n *Normalizer) UnwrapText(text string) string {
	if text == "" {
		return text
	}
	for _, marker := range forwardMarkers {
		idx := strings.Index(text, marker)
		if idx < 0 {
			continue
		}
		remainder := strings.TrimSpace(text[idx+len(marker):])
		if float64(len(remainder)) > n.lengthRatio*float64(len(text)) {
			return remainder
		}
	}
	return text
}

// UnwrapHTML strips the forwarding wrapper from an HTML body. The inner
// content must carry a retailer signal, otherwise the separator is assumed
// decorative and the input is returned unchanged.
func (n *Normalizer) UnwrapHTML(html string) string {
	if html == "" {
		return html
	}
	lower := strings.ToLower(html)
	for _, sep := range htmlSeparators {
		idx := strings.Index(lower, strings.ToLower(sep))
		if idx < 0 {
			continue
		}
		inner := html[idx+len(sep):]
		if hasRetailerSignal(strings.ToLower(inner)) {
			return inner
		}
	}
	return html
}

func hasRetailerSignal(lowerContent string) bool {
	for _, signal := range retailerSignals {
		if strings.Contains(lowerContent, signal) {
			return true
		}
	}
	return false
}

// NormalizeSubject removes stacked Re/Fwd/FW prefixes.
func NormalizeSubject(subject string) string {
	return strings.TrimSpace(subjectPrefixRe.ReplaceAllString(subject, ""))
}

// DecodeQuotedPrintable reverses quoted-printable transfer encoding.
// Invalid escapes are left as-is rather than failing the email.
func DecodeQuotedPrintable(s string) string {
	if !strings.Contains(s, "=") {
		return s
	}
	s = softBreakRe.ReplaceAllString(s, "")

	// Decode byte-wise so multi-byte UTF-8 sequences split across several
	// =XX escapes reassemble correctly.
	var b []byte
	for i := 0; i < len(s); i++ {
		if s[i] == '=' && i+2 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				b = append(b, byte(v))
				i += 2
				continue
			}
		}
		b = append(b, s[i])
	}
	return string(b)
}
