package extraction

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Thin traversal helpers over x/net/html. Retailer templates are table
// soup, so everything works on attribute and class matching rather than
// full CSS selectors.

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	priceRe      = regexp.MustCompile(`₹\s*([\d,]+\.?\d*)`)
	numberRe     = regexp.MustCompile(`([\d,]+\.?\d*)`)
)

func parseHTML(s string) (*html.Node, error) {
	return html.Parse(strings.NewReader(s))
}

// walk visits every element node under root, including root itself.
func walk(root *html.Node, visit func(*html.Node)) {
	if root == nil {
		return
	}
	if root.Type == html.ElementNode {
		visit(root)
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func classContains(n *html.Node, substr string) bool {
	return strings.Contains(strings.ToLower(attr(n, "class")), strings.ToLower(substr))
}

func findByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) {
		if found == nil && attr(n, "id") == id {
			found = n
		}
	})
	return found
}

func findAllByClass(root *html.Node, class string) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) {
		if hasClass(n, class) {
			out = append(out, n)
		}
	})
	return out
}

func findAllByTag(root *html.Node, tag string) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) {
		if n.Data == tag {
			out = append(out, n)
		}
	})
	return out
}

func findAllByTagClass(root *html.Node, tag, class string) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) {
		if n.Data == tag && hasClass(n, class) {
			out = append(out, n)
		}
	})
	return out
}

func findAllByIDContains(root *html.Node, fragment string) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) {
		if strings.Contains(attr(n, "id"), fragment) {
			out = append(out, n)
		}
	})
	return out
}

func findFirstByIDContains(root *html.Node, fragment string) *html.Node {
	nodes := findAllByIDContains(root, fragment)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

func findAllByAttrContains(root *html.Node, tag, key, substr string) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) {
		if (tag == "" || n.Data == tag) && strings.Contains(attr(n, key), substr) {
			out = append(out, n)
		}
	})
	return out
}

// text concatenates all text nodes under n with whitespace collapsed.
func text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
			b.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return cleanText(b.String())
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// parsePrice extracts the first rupee amount in s. Returns 0 when absent.
func parsePrice(s string) float64 {
	m := priceRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	return parseAmount(m[1])
}

// parsePrices extracts every rupee amount in document order.
func parsePrices(s string) []float64 {
	var out []float64
	for _, m := range priceRe.FindAllStringSubmatch(s, -1) {
		out = append(out, parseAmount(m[1]))
	}
	return out
}

// parseAmount parses a bare numeric string that may carry thousands
// separators.
func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}
