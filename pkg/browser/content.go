package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ExtractVisibleText reduces raw page HTML to the text a user would see:
// scripts, styles and other non-rendered subtrees are dropped, block
// boundaries become newlines, and runs of whitespace collapse.
func ExtractVisibleText(rawHTML string) (string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	var builder strings.Builder
	collectText(doc, &builder)
	return collapseWhitespace(builder.String()), nil
}

// PageTitle extracts the <title> text from raw page HTML, or "".
func PageTitle(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	return findTitle(doc)
}

func collectText(n *html.Node, builder *strings.Builder) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.ElementNode:
		if isHiddenElement(strings.ToLower(n.Data)) {
			return
		}
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			builder.WriteString(text)
			builder.WriteByte(' ')
		}
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, builder)
	}

	if n.Type == html.ElementNode && isBlockElement(strings.ToLower(n.Data)) {
		builder.WriteByte('\n')
	}
}

// isHiddenElement returns true for subtrees that never render text.
func isHiddenElement(tagName string) bool {
	switch tagName {
	case "script", "style", "noscript", "template", "iframe", "embed", "object", "svg", "head":
		return true
	}
	return false
}

// isBlockElement returns true for elements whose boundary should become a
// line break in the extracted text.
func isBlockElement(tagName string) bool {
	switch tagName {
	case "div", "p", "section", "article", "header", "footer", "nav", "main",
		"aside", "h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li",
		"table", "tr", "td", "th", "form", "fieldset", "blockquote", "pre", "br":
		return true
	}
	return false
}

// collapseWhitespace trims each line and drops empty ones.
func collapseWhitespace(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			return strings.TrimSpace(n.FirstChild.Data)
		}
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}
