package pipeline

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// removableWhenEmpty lists the elements the pruner may drop once they hold
// no renderable content. Self-contained elements (img, hr, iframe and the
// like) are absent so they survive on their own, and table cells are absent
// because removing an empty cell shifts every column after it.
var removableWhenEmpty = map[string]bool{
	"p": true, "div": true, "span": true,
	"section": true, "article": true, "aside": true,
	"header": true, "footer": true, "main": true,
	"figure": true, "figcaption": true, "blockquote": true,
	"ul": true, "ol": true, "li": true,
	"dl": true, "dt": true, "dd": true,
	"em": true, "strong": true, "i": true, "b": true,
	"u": true, "s": true, "small": true, "mark": true,
	"sup": true, "sub": true, "a": true,
	"pre": true, "code": true,
}

// pruneEmpty removes elements that ended up with nothing to render, usually
// leftovers of unwrapped wrappers. Children are pruned before their parent
// so a container emptied by the walk is removed on the way back up.
func (p *Pipeline) pruneEmpty(doc *goquery.Document, result *Result) {
	body := doc.Find("body")
	if len(body.Nodes) == 0 {
		return
	}
	pruneChildren(body.Nodes[0], &result.Stats.EmptyElementRemovals)
}

func pruneChildren(n *html.Node, removed *int) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode {
			pruneChildren(c, removed)
			if removableWhenEmpty[c.Data] && !hasRenderableContent(c) {
				n.RemoveChild(c)
				*removed++
			}
		}
		c = next
	}
}

// hasRenderableContent reports whether any remaining child would produce
// visible output. Whitespace text, comments and bare line breaks do not
// count, so a paragraph holding a single <br> is still empty.
func hasRenderableContent(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return true
			}
		case html.ElementNode:
			if c.Data == "br" {
				continue
			}
			return true
		}
	}
	return false
}
