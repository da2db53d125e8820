package extraction

import (
	"regexp"
	"strings"

	"closet_server/core/domain"

	"golang.org/x/net/html"
)

var (
	zaraOrderNoRe  = regexp.MustCompile(`Order No\.?\s*(\d+)`)
	zaraUnitRe     = regexp.MustCompile(`(\d+)\s+unit\s*/\s*₹\s*([\d,]+\.?\d*)`)
	zaraCodeTailRe = regexp.MustCompile(`\s*\d+/\d+/\d+/\d+/\d+\s*$`)
	// Fit keywords that follow the product name in plain text layouts.
	zaraFitSplitRe = regexp.MustCompile(`\b(STRAIGHT|CURVED|FLARED|SKINNY|WIDE|NARROW|CROPPED|LONG|SHORT)\b`)
)

// ZaraParser reads Zara order confirmation templates. Rows are rd-product
// tables; the name is the uppercase 13px line and the color line carries a
// trailing article code that must be stripped.
type ZaraParser struct{}

func (p *ZaraParser) Retailer() string { return domain.RetailerZara }

func (p *ZaraParser) Parse(content string) ([]domain.ExtractedItem, error) {
	root, err := parseHTML(content)
	if err != nil {
		return nil, err
	}

	orderID := p.findOrderID(root, content)

	rows := findAllByTagClass(root, "tr", "rd-product-row")
	if len(rows) == 0 {
		rows = findAllByTagClass(root, "table", "rd-product")
	}

	var items []domain.ExtractedItem
	for _, row := range rows {
		item := p.parseRow(row)
		if item.Name == "" {
			continue
		}
		item.Retailer = domain.RetailerZara
		item.Brand = "Zara"
		item.OrderID = orderID
		items = append(items, item)
	}
	return items, nil
}

func (p *ZaraParser) parseRow(row *html.Node) domain.ExtractedItem {
	item := domain.ExtractedItem{Quantity: 1}

	// Product name renders uppercase at 13px; everything else in the row
	// is smaller or mixed case.
	walk(row, func(n *html.Node) {
		if item.Name != "" {
			return
		}
		style := strings.ToLower(attr(n, "style"))
		if !strings.Contains(style, "13px") {
			return
		}
		t := text(n)
		if t != "" && t == strings.ToUpper(t) && len(t) > 2 {
			item.Name = t
		}
	})

	for _, div := range findAllByTag(row, "div") {
		style := strings.ToLower(attr(div, "style"))
		if !strings.Contains(style, "#666666") {
			continue
		}
		t := text(div)
		if stripped := zaraCodeTailRe.ReplaceAllString(t, ""); stripped != "" && stripped != t {
			item.Color = cleanText(stripped)
			break
		}
		if item.Color == "" && t != "" {
			item.Color = t
		}
	}

	rowText := text(row)
	if m := zaraUnitRe.FindStringSubmatch(rowText); m != nil {
		if q := parseAmount(m[1]); q >= 1 {
			item.Quantity = int(q)
		}
		item.Price = parseAmount(m[2])
	} else if v := parsePrice(rowText); v > 0 {
		item.Price = v
	}

	for _, img := range findAllByTagClass(row, "img", "rd-product-img") {
		item.ImageURL = attr(img, "src")
		break
	}
	if item.ImageURL == "" {
		for _, img := range findAllByTag(row, "img") {
			if src := attr(img, "src"); src != "" && !isDecorativeImage(img) {
				item.ImageURL = src
				break
			}
		}
	}

	if item.Name == "" {
		// Plain text layout: the name runs up to the fit keyword.
		if loc := zaraFitSplitRe.FindStringIndex(rowText); loc != nil {
			candidate := cleanText(rowText[:loc[1]])
			if candidate != "" {
				item.Name = candidate
			}
		}
	}

	return item
}

func (p *ZaraParser) findOrderID(root *html.Node, content string) string {
	for _, n := range findAllByClass(root, "rd-section-title") {
		if m := zaraOrderNoRe.FindStringSubmatch(text(n)); m != nil {
			return m[1]
		}
	}
	if m := zaraOrderNoRe.FindStringSubmatch(content); m != nil {
		return m[1]
	}
	return ""
}
