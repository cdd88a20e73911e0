package scrape

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Selector is a compiled CSS selector group.
type Selector struct {
	group cascadia.SelectorGroup
}

// ParseSelector parses selectors such as "div", ".current", "#temp",
// "table#data > td.value" or "span:nth-of-type(2)".
func ParseSelector(text string) (Selector, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Selector{}, fmt.Errorf("empty selector")
	}
	group, err := cascadia.ParseGroup(text)
	if err != nil {
		return Selector{}, fmt.Errorf("invalid selector '%s': %w", text, err)
	}
	return Selector{group: group}, nil
}

// Select returns the matching elements in document order.
func (s Selector) Select(root *html.Node) []*html.Node {
	return cascadia.QueryAll(root, s.group)
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// Text returns the text content of a node. Script and style bodies are
// returned verbatim.
func Text(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "template") {
		return b.String()
	}
	return strings.TrimSpace(b.String())
}
