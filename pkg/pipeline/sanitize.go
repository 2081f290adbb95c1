package pipeline

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// sanitize strips every attribute not on the profile's keep list and every
// class token not on the class keep list. The class attribute is governed
// only by the class list and disappears once all its tokens are gone.
// Running the stage twice yields the same tree.
func (p *Pipeline) sanitize(doc *goquery.Document, result *Result) {
	keepAttr := make(map[string]bool, len(p.profile.KeepAttributes))
	for _, a := range p.profile.KeepAttributes {
		keepAttr[strings.ToLower(a)] = true
	}
	keepClass := make(map[string]bool, len(p.profile.KeepClasses))
	for _, c := range p.profile.KeepClasses {
		keepClass[c] = true
	}

	doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		n := s.Nodes[0]
		kept := n.Attr[:0]
		for _, a := range n.Attr {
			key := strings.ToLower(a.Key)
			if key == "class" {
				val, dropped := filterClasses(a.Val, keepClass)
				result.Stats.ClassesRemoved += dropped
				if val != "" {
					a.Val = val
					kept = append(kept, a)
				}
				continue
			}
			if keepAttr[key] {
				kept = append(kept, a)
				continue
			}
			result.Stats.AttributesRemoved++
		}
		n.Attr = kept
	})
}

// filterClasses keeps the allowed tokens of a class value in their original
// order and reports how many were dropped.
func filterClasses(val string, keep map[string]bool) (string, int) {
	tokens := strings.Fields(val)
	kept := tokens[:0]
	for _, t := range tokens {
		if keep[t] {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, " "), len(tokens) - len(kept)
}
