package foundry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/CePeU/MarkdownToFoundry-sub001/internal/logger"
)

// RelinkReport summarizes one relink pass over the remote store.
type RelinkReport struct {
	EntriesScanned  int
	EntriesUpdated  int
	LinksRewritten  int
	LinksUnresolved int
	Failed          []string
}

// Relink rewrites vault-path links inside already-uploaded entries into
// Foundry document references (@UUID[JournalEntry.<id>]{label}). When
// several records share a note path the first one in the store's
// enumeration order wins; duplicates should be deleted before relinking.
// A failed update is recorded and the pass continues with the rest.
func (s *Syncer) Relink(ctx context.Context) (*RelinkReport, error) {
	entries, err := s.store.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	byPath := make(map[string]string)
	for _, e := range entries {
		if e.NotePath == "" {
			continue
		}
		if _, ok := byPath[e.NotePath]; !ok {
			byPath[e.NotePath] = e.ID
		}
	}

	report := &RelinkReport{}
	var errs []error
	for i := range entries {
		entry := &entries[i]
		report.EntriesScanned++

		rewritten, stats := rewriteEntryLinks(entry.Content, byPath)
		report.LinksRewritten += stats.rewritten
		report.LinksUnresolved += stats.unresolved
		if stats.rewritten == 0 {
			continue
		}

		entry.Content = rewritten
		if err := s.store.Update(ctx, entry.ID, entry); err != nil {
			report.Failed = append(report.Failed, entry.Name)
			errs = append(errs, fmt.Errorf("relink %q: %w", entry.Name, err))
			continue
		}
		report.EntriesUpdated++
	}

	logger.Debug("relink pass finished",
		"scanned", report.EntriesScanned,
		"updated", report.EntriesUpdated,
		"links", report.LinksRewritten,
		"unresolved", report.LinksUnresolved)
	return report, errors.Join(errs...)
}

type relinkStats struct {
	rewritten  int
	unresolved int
}

// rewriteEntryLinks replaces internal-link anchors whose href is a known
// note path with a Foundry document reference. Unknown targets stay as
// anchors.
func rewriteEntryLinks(content string, byPath map[string]string) (string, relinkStats) {
	var stats relinkStats
	if !strings.Contains(content, "internal-link") {
		return content, stats
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content, stats
	}

	doc.Find("a.internal-link").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		target := href
		if i := strings.IndexByte(target, '#'); i >= 0 {
			target = target[:i]
		}
		if target == "" || strings.Contains(target, "://") {
			return
		}

		remoteID, ok := byPath[target]
		if !ok {
			stats.unresolved++
			return
		}

		ref := "@UUID[JournalEntry." + remoteID + "]{" + sel.Text() + "}"
		sel.ReplaceWithNodes(&html.Node{Type: html.TextNode, Data: ref})
		stats.rewritten++
	})

	if stats.rewritten == 0 {
		return content, stats
	}
	out, err := doc.Find("body").Html()
	if err != nil {
		return content, relinkStats{}
	}
	return out, stats
}

// MacroName is the journal relink macro installed by InstallRelinkMacro.
const MacroName = "MarkdownToFoundry Relink"

// RelinkMacroSource is a Foundry-side script macro doing the same pass as
// Relink from inside the world, for tables without relay write access.
const RelinkMacroSource = `const entries = game.journal.contents;
const byPath = new Map();
for (const e of entries) {
  const path = e.flags?.markdowntofoundry?.path;
  if (path && !byPath.has(path)) byPath.set(path, e.id);
}
const parser = new DOMParser();
let total = 0;
for (const e of entries) {
  for (const page of e.pages.contents) {
    const src = page.text?.content ?? "";
    if (!src.includes("internal-link")) continue;
    const doc = parser.parseFromString(src, "text/html");
    let changed = 0;
    for (const a of doc.querySelectorAll("a.internal-link")) {
      const target = (a.getAttribute("href") ?? "").split("#")[0];
      const id = byPath.get(target);
      if (!id) continue;
      a.replaceWith("@UUID[JournalEntry." + id + "]{" + a.textContent + "}");
      changed++;
    }
    if (changed > 0) {
      await page.update({ "text.content": doc.body.innerHTML });
      total += changed;
    }
  }
}
ui.notifications.info("Relinked " + total + " links.");`

// InstallRelinkMacro pushes the relink macro into the active world.
func (c *Client) InstallRelinkMacro(ctx context.Context) error {
	return c.InstallMacro(ctx, MacroName, RelinkMacroSource)
}
