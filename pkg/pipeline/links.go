package pipeline

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// wikilinkRe matches [[Target]], [[Target|Alias]], [[Target#Heading]] and
// [[Target#Heading|Alias]] in text content.
var wikilinkRe = regexp.MustCompile(`\[\[([^\[\]|#]+)(#[^\[\]|]*)?(?:\|([^\[\]]*))?\]\]`)

// resolveLinks rewrites internal note references to vault paths. Both
// forms are handled: anchors the host already rendered, and raw wikilink
// markup still sitting in text nodes. Unresolvable references stay as
// they are.
func (p *Pipeline) resolveLinks(doc *goquery.Document, note Note, result *Result) {
	if p.links == nil {
		if doc.Find("a.internal-link, a[data-href]").Length() > 0 || strings.Contains(doc.Text(), "[[") {
			result.AddWarning(stageLinks, "no link index configured, links left untouched", note.Path)
		}
		return
	}

	p.resolveAnchors(doc, result)

	body := doc.Find("body")
	if len(body.Nodes) > 0 {
		p.expandTextLinks(body.Nodes[0], result)
	}
}

// resolveAnchors rewrites host-rendered internal links in place.
func (p *Pipeline) resolveAnchors(doc *goquery.Document, result *Result) {
	doc.Find("a.internal-link, a[data-href]").Each(func(_ int, s *goquery.Selection) {
		raw, ok := s.Attr("data-href")
		if !ok || raw == "" {
			raw, _ = s.Attr("href")
		}
		if raw == "" || strings.Contains(raw, "://") {
			return
		}

		target, fragment := splitFragment(raw)
		resolved, found := p.links.ResolveLink(target)
		if !found {
			result.Stats.LinksUnresolved++
			result.AddWarning(stageLinks, "link target not found, left as is", raw)
			return
		}
		s.SetAttr("href", resolved+fragment)
		result.Stats.LinksResolved++
	})
}

// expandTextLinks walks text nodes and replaces raw wikilink markup with
// anchor elements. Code and preformatted content is left alone.
func (p *Pipeline) expandTextLinks(n *html.Node, result *Result) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "code", "pre", "script", "style", "a":
			return
		}
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode && strings.Contains(c.Data, "[[") {
			p.replaceWikilinks(c, result)
		} else {
			p.expandTextLinks(c, result)
		}
		c = next
	}
}

// replaceWikilinks splits one text node around its wikilink matches.
func (p *Pipeline) replaceWikilinks(textNode *html.Node, result *Result) {
	text := textNode.Data
	matches := wikilinkRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return
	}

	parent := textNode.Parent
	if parent == nil {
		return
	}

	pos := 0
	var nodes []*html.Node
	for _, m := range matches {
		if m[0] > pos {
			nodes = append(nodes, newTextNode(text[pos:m[0]]))
		}

		target := strings.TrimSpace(text[m[2]:m[3]])
		fragment := group(text, m, 2)
		alias := group(text, m, 3)

		resolved, found := p.links.ResolveLink(target)
		if !found {
			// Keep the literal markup; deleting user text is worse
			// than an unresolved link.
			nodes = append(nodes, newTextNode(text[m[0]:m[1]]))
			result.Stats.LinksUnresolved++
			result.AddWarning(stageLinks, "link target not found, left as is", text[m[0]:m[1]])
			pos = m[1]
			continue
		}

		label := alias
		if label == "" {
			label = target + fragment
		}
		nodes = append(nodes, anchorNode(resolved+headingFragment(fragment), label))
		result.Stats.LinksResolved++
		pos = m[1]
	}
	if pos < len(text) {
		nodes = append(nodes, newTextNode(text[pos:]))
	}

	for _, n := range nodes {
		parent.InsertBefore(n, textNode)
	}
	parent.RemoveChild(textNode)
}

// group returns the submatch at index i, or "" when it did not participate.
func group(text string, m []int, i int) string {
	if m[2*i] < 0 {
		return ""
	}
	return text[m[2*i]:m[2*i+1]]
}

func newTextNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func anchorNode(href, label string) *html.Node {
	a := &html.Node{
		Type:     html.ElementNode,
		Data:     "a",
		DataAtom: atom.A,
		Attr: []html.Attribute{
			{Key: "href", Val: href},
			{Key: "class", Val: "internal-link"},
		},
	}
	a.AppendChild(newTextNode(label))
	return a
}

// splitFragment separates a #heading suffix from a link target and
// normalizes the fragment to the slug form heading anchors use.
func splitFragment(raw string) (target, fragment string) {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[:i], headingFragment(raw[i:])
	}
	return raw, ""
}

// headingFragment turns "#My Heading" into "#my-heading".
func headingFragment(fragment string) string {
	if fragment == "" || fragment == "#" {
		return ""
	}
	heading := strings.TrimPrefix(fragment, "#")
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(heading)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			pendingDash = true
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "#" + b.String()
}
