package dispatch

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Extraction is page HTML reduced to its semantic structure.
type Extraction struct {
	HTML        string
	Title       string
	Description string
	Truncated   bool
}

var (
	droppedElements = setOf("script", "style", "noscript", "iframe", "embed", "object", "svg", "template")

	blockElements = setOf(
		"div", "p", "section", "article", "header", "footer", "nav", "main", "aside",
		"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li",
		"table", "tr", "td", "th", "form", "fieldset", "blockquote", "pre",
	)

	voidElements = setOf(
		"area", "base", "br", "col", "embed", "hr", "img", "input",
		"link", "meta", "param", "source", "track", "wbr",
	)

	keptAttributes = setOf("id", "class", "role", "name", "aria-label", "aria-describedby")

	// elementAttributes are kept only on the listed element
	elementAttributes = map[string]map[string]bool{
		"a":        setOf("href", "target"),
		"img":      setOf("src", "alt"),
		"input":    setOf("type", "placeholder", "value"),
		"textarea": setOf("placeholder"),
		"select":   setOf("multiple"),
		"button":   setOf("type"),
		"form":     setOf("action", "method"),
		"label":    setOf("for"),
	}
)

func setOf(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, item := range items {
		m[item] = true
	}
	return m
}

// extractHTML parses rawHTML and rewrites it without scripts, styles and
// presentational attributes, stopping once maxLength characters of output
// have been written.
func extractHTML(rawHTML string, maxLength int) (*Extraction, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	w := &htmlWriter{limit: maxLength}
	w.node(doc, 0)

	title, description := documentMeta(doc)
	return &Extraction{
		HTML:        w.b.String(),
		Title:       title,
		Description: description,
		Truncated:   w.full,
	}, nil
}

type htmlWriter struct {
	b     strings.Builder
	n     int
	limit int
	full  bool
}

func (w *htmlWriter) write(s string) {
	w.b.WriteString(s)
	w.n += len(s)
}

func (w *htmlWriter) node(n *html.Node, depth int) {
	if w.full {
		return
	}
	if w.n >= w.limit {
		w.full = true
		return
	}

	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return
	case html.TextNode:
		w.text(n.Data)
	case html.ElementNode:
		w.element(n, depth)
	default:
		w.children(n, depth)
	}
}

func (w *htmlWriter) text(data string) {
	text := strings.TrimSpace(data)
	if text == "" {
		return
	}
	if remaining := w.limit - w.n; len(text) > remaining {
		w.write(text[:remaining])
		w.b.WriteString("...")
		w.full = true
		return
	}
	w.write(text)
}

func (w *htmlWriter) element(n *html.Node, depth int) {
	tag := strings.ToLower(n.Data)
	if droppedElements[tag] {
		return
	}

	block := blockElements[tag]
	if block && depth > 0 {
		w.b.WriteString("\n" + strings.Repeat("  ", depth))
	}

	w.write("<" + tag)
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if keptAttributes[key] || strings.HasPrefix(key, "data-") || elementAttributes[tag][key] {
			w.write(fmt.Sprintf(` %s="%s"`, key, html.EscapeString(attr.Val)))
		}
	}
	w.write(">")

	w.children(n, depth+1)

	if voidElements[tag] {
		return
	}
	if block {
		w.b.WriteString("\n" + strings.Repeat("  ", depth))
	}
	w.write("</" + tag + ">")
}

func (w *htmlWriter) children(n *html.Node, depth int) {
	for c := n.FirstChild; c != nil && !w.full; c = c.NextSibling {
		w.node(c, depth)
	}
}

// documentMeta returns the first <title> text and the meta description.
func documentMeta(doc *html.Node) (title, description string) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				if description == "" && attr(n, "name") == "description" {
					description = strings.TrimSpace(attr(n, "content"))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, description
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
