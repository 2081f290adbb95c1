package pipeline

import (
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// applyTagRules runs the profile's selector rules in order against the
// live tree. Each rule sees the mutations of the rules before it. A rule
// whose selector does not compile is skipped with a warning; compiled
// rules of a loaded profile never hit that path because the store rejects
// them at load time.
func (p *Pipeline) applyTagRules(doc *goquery.Document, result *Result) {
	for _, rule := range p.profile.TagRules {
		matcher, err := rule.Matcher()
		if err != nil {
			result.AddWarning(stageRules, "selector does not compile, rule skipped", rule.Selector)
			continue
		}

		sel := doc.FindMatcher(matcher)
		if sel.Length() == 0 {
			continue
		}
		result.Stats.RecordRuleMatch(rule.Selector, sel.Length())

		sel.Each(func(_ int, s *goquery.Selection) {
			node := s.Nodes[0]
			if rule.ReplaceWith == "" {
				unwrapNode(node)
				result.Stats.ElementsUnwrapped++
				return
			}
			retagNode(node, rule.ReplaceWith)
			result.Stats.ElementsRetagged++
		})
	}
}

// retagNode renames an element in place, keeping attributes and children.
func retagNode(n *html.Node, tag string) {
	n.Data = tag
	n.DataAtom = atom.Lookup([]byte(tag))
}

// unwrapNode hoists an element's children into its place, preserving
// document order.
func unwrapNode(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		parent.InsertBefore(c, n)
		c = next
	}
	parent.RemoveChild(n)
}
