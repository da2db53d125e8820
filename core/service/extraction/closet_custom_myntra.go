package extraction

import (
	"regexp"
	"strings"

	"closet_server/core/domain"

	"golang.org/x/net/html"
)

var (
	myntraOrderIDRe  = regexp.MustCompile(`\b(MON\d+|OD\d+)\b`)
	myntraDiscountRe = regexp.MustCompile(`(\d+)%\s*OFF`)
)

// MyntraParser reads Myntra order confirmation templates. Product blocks
// live in productListContainer divs with stable id fragments per field.
type MyntraParser struct{}

func (p *MyntraParser) Retailer() string { return domain.RetailerMyntra }

func (p *MyntraParser) Parse(content string) ([]domain.ExtractedItem, error) {
	root, err := parseHTML(content)
	if err != nil {
		return nil, err
	}

	orderID := p.findOrderID(root, content)

	var items []domain.ExtractedItem
	for _, container := range findAllByClass(root, "productListContainer") {
		item := p.parseContainer(container)
		if item.Name == "" {
			continue
		}
		item.Retailer = domain.RetailerMyntra
		item.OrderID = orderID
		items = append(items, item)
	}
	return items, nil
}

func (p *MyntraParser) parseContainer(container *html.Node) domain.ExtractedItem {
	item := domain.ExtractedItem{Quantity: 1}

	if n := findFirstByIDContains(container, "ItemProductName"); n != nil {
		item.Name = text(n)
	}
	if n := findFirstByIDContains(container, "ItemProductBrandName"); n != nil {
		item.Brand = text(n)
	}
	if n := findFirstByIDContains(container, "ItemSize"); n != nil {
		item.Size = strings.TrimPrefix(text(n), "Size: ")
	}
	if n := findFirstByIDContains(container, "ItemQuantity"); n != nil {
		if q := parseAmount(numberRe.FindString(text(n))); q >= 1 {
			item.Quantity = int(q)
		}
	}

	// Templates print the struck original price before the payable price.
	// A single amount means the item was not discounted.
	containerText := text(container)
	prices := parsePrices(containerText)
	switch len(prices) {
	case 0:
	case 1:
		item.Price = prices[0]
	default:
		item.OriginalPrice = prices[0]
		item.Price = prices[1]
	}

	if m := myntraDiscountRe.FindStringSubmatch(containerText); m != nil {
		item.Discount = m[1] + "% OFF"
	}

	for _, img := range findAllByTag(container, "img") {
		if src := attr(img, "src"); src != "" && !isDecorativeImage(img) {
			item.ImageURL = src
			break
		}
	}
	for _, a := range findAllByTag(container, "a") {
		if href := attr(a, "href"); strings.Contains(href, "myntra.com") {
			item.ProductLink = href
			break
		}
	}

	return item
}

func (p *MyntraParser) findOrderID(root *html.Node, content string) string {
	if n := findByID(root, "OrderId"); n != nil {
		if id := myntraOrderIDRe.FindString(text(n)); id != "" {
			return id
		}
		return text(n)
	}
	return myntraOrderIDRe.FindString(content)
}
