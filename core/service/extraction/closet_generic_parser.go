package extraction

import (
	"strings"

	"closet_server/core/domain"

	"golang.org/x/net/html"
)

// GenericParser is the retailer-agnostic fallback. It tries a priority
// list of common product container shapes and takes the first one that
// yields items, then falls back to scanning table rows.
type GenericParser struct{}

func (p *GenericParser) Retailer() string { return domain.RetailerUnknown }

func (p *GenericParser) Parse(content string) ([]domain.ExtractedItem, error) {
	root, err := parseHTML(content)
	if err != nil {
		return nil, err
	}

	finders := []func(*html.Node) []*html.Node{
		func(n *html.Node) []*html.Node { return findAllByClass(n, "product") },
		func(n *html.Node) []*html.Node { return findAllByClass(n, "item") },
		func(n *html.Node) []*html.Node { return findAllByClass(n, "order-item") },
		func(n *html.Node) []*html.Node { return classContainsNodes(n, "product") },
		func(n *html.Node) []*html.Node { return classContainsNodes(n, "item") },
	}

	for _, find := range finders {
		containers := find(root)
		if len(containers) == 0 {
			continue
		}
		items := p.parseContainers(containers)
		if len(items) > 0 {
			return items, nil
		}
	}

	return p.parseTableRows(root), nil
}

func classContainsNodes(root *html.Node, substr string) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) {
		if classContains(n, substr) {
			out = append(out, n)
		}
	})
	return out
}

func (p *GenericParser) parseContainers(containers []*html.Node) []domain.ExtractedItem {
	var items []domain.ExtractedItem
	for _, c := range containers {
		item := p.parseContainer(c)
		if item.Name != "" {
			items = append(items, item)
		}
	}
	return items
}

func (p *GenericParser) parseContainer(c *html.Node) domain.ExtractedItem {
	item := domain.ExtractedItem{Quantity: 1}

	// Longest heading-ish line wins as the name; prices come from the
	// container text as a whole.
	for _, tag := range []string{"h1", "h2", "h3", "h4", "strong", "b", "a", "span", "td"} {
		for _, n := range findAllByTag(c, tag) {
			t := text(n)
			if len(t) > len(item.Name) && len(t) < 120 && !strings.Contains(t, "₹") {
				item.Name = t
			}
		}
		if item.Name != "" {
			break
		}
	}

	containerText := text(c)
	prices := parsePrices(containerText)
	switch len(prices) {
	case 0:
	case 1:
		item.Price = prices[0]
	default:
		item.OriginalPrice = prices[0]
		item.Price = prices[1]
		if item.Price > item.OriginalPrice {
			item.Price, item.OriginalPrice = item.OriginalPrice, item.Price
		}
	}

	if size := findLabeledValue(containerText, "size"); size != "" {
		item.Size = size
	}
	if color := findLabeledValue(containerText, "color"); color != "" {
		item.Color = color
	}

	for _, img := range findAllByTag(c, "img") {
		if src := attr(img, "src"); src != "" && !isDecorativeImage(img) {
			item.ImageURL = src
			break
		}
	}
	for _, a := range findAllByTag(c, "a") {
		href := attr(a, "href")
		if href == "" || isServiceLink(href) {
			continue
		}
		item.ProductLink = href
		break
	}

	return item
}

// parseTableRows is the last resort: treat each table row with a price as
// one item, name from the first non-price cell.
func (p *GenericParser) parseTableRows(root *html.Node) []domain.ExtractedItem {
	var items []domain.ExtractedItem
	for _, row := range findAllByTag(root, "tr") {
		rowText := text(row)
		prices := parsePrices(rowText)
		if len(prices) == 0 {
			continue
		}

		item := domain.ExtractedItem{Quantity: 1, Price: prices[0]}
		if len(prices) > 1 {
			item.OriginalPrice = prices[0]
			item.Price = prices[1]
			if item.Price > item.OriginalPrice {
				item.Price, item.OriginalPrice = item.OriginalPrice, item.Price
			}
		}

		for _, cell := range findAllByTag(row, "td") {
			t := text(cell)
			if t == "" || strings.Contains(t, "₹") {
				continue
			}
			if len(t) > len(item.Name) && len(t) < 120 {
				item.Name = t
			}
		}
		if item.Name == "" {
			continue
		}

		if size := findLabeledValue(rowText, "size"); size != "" {
			item.Size = size
		}
		if color := findLabeledValue(rowText, "color"); color != "" {
			item.Color = color
		}
		for _, img := range findAllByTag(row, "img") {
			if src := attr(img, "src"); src != "" && !isDecorativeImage(img) {
				item.ImageURL = src
				break
			}
		}

		items = append(items, item)
	}
	return items
}

// findLabeledValue pulls "Size: M" style values out of flat text.
func findLabeledValue(s, label string) string {
	lower := strings.ToLower(s)
	idx := strings.Index(lower, label+":")
	if idx < 0 {
		idx = strings.Index(lower, label+" :")
		if idx < 0 {
			return ""
		}
	}
	rest := s[idx+len(label):]
	rest = strings.TrimLeft(rest, " :")
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ",;")
}

// isDecorativeImage filters spacers, tracking pixels and logos.
func isDecorativeImage(img *html.Node) bool {
	src := strings.ToLower(attr(img, "src"))
	alt := strings.ToLower(attr(img, "alt"))
	for _, marker := range []string{"spacer", "pixel", "logo", "blank.gif", "transparent"} {
		if strings.Contains(src, marker) || strings.Contains(alt, marker) {
			return true
		}
	}
	w, h := attr(img, "width"), attr(img, "height")
	if w == "1" || h == "1" {
		return true
	}
	return false
}

// isServiceLink filters links that are clearly not product pages.
func isServiceLink(href string) bool {
	lower := strings.ToLower(href)
	for _, marker := range []string{"mailto:", "unsubscribe", "privacy", "terms", "help", "support", "facebook.com", "instagram.com", "twitter.com"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
