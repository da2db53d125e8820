package extraction

import (
	"net/url"
	"strings"

	"closet_server/core/domain"

	"golang.org/x/net/html"
)

// HMParser reads H&M order confirmation templates. Each article is a
// pl-articles-table-row; field roles are encoded in font colors rather
// than classes.
type HMParser struct{}

const (
	hmNameColor  = "#222222"
	hmPriceColor = "#CE2129"
)

func (p *HMParser) Retailer() string { return domain.RetailerHM }

func (p *HMParser) Parse(content string) ([]domain.ExtractedItem, error) {
	root, err := parseHTML(content)
	if err != nil {
		return nil, err
	}

	var items []domain.ExtractedItem
	for _, row := range findAllByTagClass(root, "tr", "pl-articles-table-row") {
		item := p.parseRow(row)
		if item.Name == "" {
			continue
		}
		item.Retailer = domain.RetailerHM
		item.Brand = "H&M"
		items = append(items, item)
	}
	return items, nil
}

func (p *HMParser) parseRow(row *html.Node) domain.ExtractedItem {
	item := domain.ExtractedItem{Quantity: 1}

	for _, font := range findAllByTag(row, "font") {
		color := strings.ToUpper(attr(font, "color"))
		switch color {
		case strings.ToUpper(hmNameColor):
			if item.Name == "" {
				item.Name = text(font)
			}
		case strings.ToUpper(hmPriceColor):
			if item.Price == 0 {
				item.Price = parsePrice(text(font))
			}
		}
	}

	// The pre-discount price is the struck-through amount.
	for _, tag := range []string{"strike", "s", "del"} {
		for _, n := range findAllByTag(row, tag) {
			if v := parsePrice(text(n)); v > 0 {
				item.OriginalPrice = v
				break
			}
		}
		if item.OriginalPrice > 0 {
			break
		}
	}

	p.parseDetails(row, &item)

	for _, img := range findAllByAttrContains(row, "img", "src", "assets.hm.com/articles/") {
		item.ImageURL = attr(img, "src")
		break
	}

	for _, a := range findAllByAttrContains(row, "a", "href", "www2.hm.com/en_in/productpage.") {
		item.ProductLink = attr(a, "href")
		break
	}
	if item.ProductLink == "" {
		// Tracking links wrap the product URL in a redirect.
		for _, a := range findAllByAttrContains(row, "a", "href", "parcel-api.delivery.hm.com/click") {
			if target := redirectTarget(attr(a, "href")); target != "" {
				item.ProductLink = target
				break
			}
		}
	}

	return item
}

// parseDetails reads the label/value pairs under each article row
// (art. no, color, size, quantity).
func (p *HMParser) parseDetails(row *html.Node, item *domain.ExtractedItem) {
	cells := findAllByTag(row, "td")
	for i := 0; i < len(cells); i++ {
		label := strings.ToLower(text(cells[i]))
		value := ""
		if i+1 < len(cells) {
			value = text(cells[i+1])
		}
		switch {
		case strings.HasPrefix(label, "art.no") || strings.HasPrefix(label, "art. no"):
			item.Reference = value
		case label == "color" || label == "colour":
			item.Color = value
		case label == "size":
			item.Size = value
		case label == "quantity" || label == "qty":
			if q := parseAmount(numberRe.FindString(value)); q >= 1 {
				item.Quantity = int(q)
			}
		}
	}
}

// redirectTarget pulls the to= destination out of a click-tracking URL.
func redirectTarget(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	target := u.Query().Get("to")
	if target == "" {
		return ""
	}
	if decoded, err := url.QueryUnescape(target); err == nil {
		return decoded
	}
	return target
}
