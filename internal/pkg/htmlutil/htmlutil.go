// Package htmlutil normalizes HTML fragments from help-center articles and
// conversation messages into a minimal, predictable block structure.
package htmlutil

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blockTags = map[atom.Atom]bool{
	atom.P:          true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Blockquote: true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.Li:         true,
	atom.Div:        true,
	atom.Table:      true,
	atom.Tr:         true,
	atom.Td:         true,
	atom.Th:         true,
	atom.Pre:        true,
	atom.Hr:         true,
}

// Tags kept even when they contain no text.
var voidKeep = map[atom.Atom]bool{
	atom.Img: true,
	atom.Br:  true,
	atom.Hr:  true,
}

var noiseAttrs = map[string]bool{
	"class": true,
	"id":    true,
	"style": true,
}

// Normalize cleans an HTML fragment:
//
//   - whitespace in text nodes is collapsed, and trimmed at block boundaries
//   - class/id/style and data-* attributes are dropped
//   - elements with no visible text and no img/br/hr descendant are removed
//   - bare text runs and top-level inline elements are wrapped in <p>
//
// The result is stable: Normalize(Normalize(x)) == Normalize(x).
func Normalize(fragment string) string {
	nodes, err := parseFragment(fragment)
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	root := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	for _, n := range nodes {
		root.AppendChild(n)
	}

	cleanTree(root)
	prune(root)
	wrapInline(root)

	var sb strings.Builder
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&sb, c); err != nil {
			return strings.TrimSpace(fragment)
		}
	}
	return sb.String()
}

func parseFragment(fragment string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	return html.ParseFragment(strings.NewReader(fragment), ctx)
}

// cleanTree collapses whitespace and strips noise attributes, depth first.
func cleanTree(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		cleanTree(c)
	}
	switch n.Type {
	case html.TextNode:
		n.Data = normalizeText(n)
	case html.ElementNode:
		attrs := n.Attr[:0]
		for _, a := range n.Attr {
			if noiseAttrs[a.Key] || strings.HasPrefix(a.Key, "data-") {
				continue
			}
			attrs = append(attrs, a)
		}
		n.Attr = attrs
	}
}

func normalizeText(n *html.Node) string {
	s := strings.Join(strings.Fields(n.Data), " ")
	if s == "" {
		return ""
	}
	leading := n.Data[0] == ' ' || n.Data[0] == '\n' || n.Data[0] == '\t' || n.Data[0] == '\r'
	trailing := last(n.Data) == ' ' || last(n.Data) == '\n' || last(n.Data) == '\t' || last(n.Data) == '\r'
	if leading && !atBlockBoundary(n.PrevSibling) {
		s = " " + s
	}
	if trailing && !atBlockBoundary(n.NextSibling) {
		s += " "
	}
	return s
}

func last(s string) byte { return s[len(s)-1] }

// atBlockBoundary reports whether the sibling position ends an inline run,
// meaning surrounding whitespace carries no meaning.
func atBlockBoundary(sibling *html.Node) bool {
	if sibling == nil {
		return true
	}
	return sibling.Type == html.ElementNode && blockTags[sibling.DataAtom]
}

// prune removes comments, empty text nodes, and elements without visible
// content. Children are pruned before their parents so empty wrappers
// collapse in a single pass.
func prune(n *html.Node) {
	c := n.FirstChild
	for c != nil {
		next := c.NextSibling
		prune(c)
		if removable(c) {
			n.RemoveChild(c)
		}
		c = next
	}
}

func removable(n *html.Node) bool {
	switch n.Type {
	case html.CommentNode:
		return true
	case html.TextNode:
		return strings.TrimSpace(n.Data) == ""
	case html.ElementNode:
		if voidKeep[n.DataAtom] {
			return false
		}
		return !hasVisibleContent(n)
	}
	return false
}

func hasVisibleContent(n *html.Node) bool {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data) != ""
	}
	if n.Type == html.ElementNode && voidKeep[n.DataAtom] {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if hasVisibleContent(c) {
			return true
		}
	}
	return false
}

// wrapInline wraps runs of top-level text and inline elements into <p> so
// that the fragment is a flat sequence of block elements.
func wrapInline(root *html.Node) {
	c := root.FirstChild
	for c != nil {
		if !needsWrap(c) {
			c = c.NextSibling
			continue
		}

		p := &html.Node{Type: html.ElementNode, Data: "p", DataAtom: atom.P}
		root.InsertBefore(p, c)
		for c != nil && needsWrap(c) {
			next := c.NextSibling
			root.RemoveChild(c)
			p.AppendChild(c)
			c = next
		}
		trimEdges(p)
	}
}

func needsWrap(n *html.Node) bool {
	switch n.Type {
	case html.TextNode:
		return true
	case html.ElementNode:
		return !blockTags[n.DataAtom]
	}
	return false
}

// trimEdges strips the space a text node kept for an inline sibling that has
// since become the wrapper boundary.
func trimEdges(p *html.Node) {
	if f := p.FirstChild; f != nil && f.Type == html.TextNode {
		f.Data = strings.TrimLeft(f.Data, " ")
	}
	if l := p.LastChild; l != nil && l.Type == html.TextNode {
		l.Data = strings.TrimRight(l.Data, " ")
	}
}
