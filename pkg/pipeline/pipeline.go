// Package pipeline transforms rendered note HTML through a fixed sequence
// of stages driven by a profile: image resolution, link resolution,
// selector rules, empty-node pruning, frontmatter removal, sanitization,
// then string-level regex and script rewrites, and finally per-target
// header/footer wrapping. Every stage failure is recoverable; the
// last-known-good HTML always proceeds to the next stage.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/CePeU/MarkdownToFoundry-sub001/internal/logger"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/profile"
)

// ResourceLoader provides attachment bytes and path resolution for the
// image resolver. *vault.Vault satisfies it.
type ResourceLoader interface {
	Resource(ref string) ([]byte, error)
	ResolveResource(ref string) (string, bool)
}

// LinkIndex resolves wiki-style link targets to vault paths.
type LinkIndex interface {
	ResolveLink(target string) (string, bool)
}

// Note carries the per-note context stages read. All fields are optional;
// a zero Note disables frontmatter access and self-referential resolution.
type Note struct {
	Path        string
	Name        string
	Frontmatter map[string]any
}

// DefaultScriptTimeout bounds a single script transform unless the
// transform declares its own.
const DefaultScriptTimeout = time.Second

// Pipeline runs the transformation for one profile. It is stateless
// across runs; one Run call transforms exactly one document.
type Pipeline struct {
	profile       *profile.Profile
	resources     ResourceLoader
	links         LinkIndex
	scriptTimeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithResources supplies the attachment loader used by image resolution.
func WithResources(r ResourceLoader) Option {
	return func(p *Pipeline) { p.resources = r }
}

// WithLinks supplies the index used by link resolution.
func WithLinks(ix LinkIndex) Option {
	return func(p *Pipeline) { p.links = ix }
}

// WithScriptTimeout overrides the default per-script wall clock bound.
func WithScriptTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.scriptTimeout = d
		}
	}
}

// New creates a Pipeline for a profile. A nil profile uses the default.
func New(prof *profile.Profile, opts ...Option) *Pipeline {
	if prof == nil {
		prof = profile.Default()
	}
	p := &Pipeline{
		profile:       prof.Clone(),
		scriptTimeout: DefaultScriptTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Profile returns the profile snapshot this pipeline runs with.
func (p *Pipeline) Profile() *profile.Profile {
	return p.profile
}

// Run transforms one document. The returned Result always carries usable
// HTML; warnings describe everything that was skipped or degraded.
func (p *Pipeline) Run(ctx context.Context, html string, note Note) *Result {
	startTime := time.Now()
	result := &Result{Stats: NewStats()}
	result.Stats.InputBytes = len(html)

	parseStart := time.Now()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	result.Stats.ParseDuration = time.Since(parseStart)

	current := html
	if err != nil {
		// Tree stages cannot run; the string stages still get a chance.
		result.AddWarning(stageParse, "HTML parse failed, continuing with original", err.Error())
	} else {
		transformStart := time.Now()
		p.transform(doc, note, result)
		result.Stats.TransformDuration = time.Since(transformStart)
		current = p.serialize(doc, html, result)
	}

	if cancelled(ctx, result) {
		result.HTML = current
		result.Stats.OutputBytes = len(current)
		result.Stats.TotalDuration = time.Since(startTime)
		return result
	}

	rewriteStart := time.Now()
	current = p.applyRegexRules(current, result)
	current = p.applyScripts(ctx, current, note, result)
	result.Stats.RewriteDuration = time.Since(rewriteStart)

	result.HTML = current
	result.Targets = p.wrap(current)
	result.Stats.OutputBytes = len(current)
	result.Stats.TotalDuration = time.Since(startTime)

	if result.HasWarnings() {
		for _, w := range result.Warnings {
			logger.Debug("pipeline warning", "note", note.Path, "stage", w.Stage, "message", w.Message, "context", w.Context)
		}
	}
	return result
}

// Stage names used in warnings.
const (
	stageParse     = "parse"
	stageImages    = "images"
	stageLinks     = "links"
	stageRules     = "rules"
	stageSerialize = "serialize"
	stageRegex     = "regex"
	stageScript    = "script"
)

// transform applies the tree stages in their fixed order.
func (p *Pipeline) transform(doc *goquery.Document, note Note, result *Result) {
	// 1. Image resolution
	p.resolveImages(doc, result)

	// 2. Link resolution
	if p.profile.ResolveWikilinks {
		p.resolveLinks(doc, note, result)
	}

	// 3. Selector rules, in profile order
	p.applyTagRules(doc, result)

	// 4. Empty-node pruning cleans containers emptied above
	p.pruneEmpty(doc, result)

	// 5. Frontmatter removal
	if p.profile.RemoveFrontmatter {
		p.removeFrontmatter(doc)
	}

	// 6. Sanitization, bypassed wholesale by dirty export
	if !p.profile.DirtyExport {
		p.sanitize(doc, result)
	}
}

// serialize returns the body's inner HTML. original is the fallback when
// serialization itself fails.
func (p *Pipeline) serialize(doc *goquery.Document, original string, result *Result) string {
	html, err := doc.Find("body").Html()
	if err != nil {
		html, err = doc.Html()
		if err != nil {
			result.AddWarning(stageSerialize, "serialization failed, returning original", err.Error())
			return original
		}
	}
	return html
}

// wrap produces the per-target outputs for every enabled target.
func (p *Pipeline) wrap(html string) map[profile.Target]string {
	targets := make(map[profile.Target]string)
	if p.profile.ExportClipboard {
		targets[profile.TargetClipboard] = p.wrapFor(profile.TargetClipboard, html)
	}
	if p.profile.ExportFile {
		targets[profile.TargetFile] = p.wrapFor(profile.TargetFile, html)
	}
	if p.profile.ExportFoundry {
		targets[profile.TargetFoundry] = p.wrapFor(profile.TargetFoundry, html)
	}
	return targets
}

func (p *Pipeline) wrapFor(t profile.Target, html string) string {
	block := p.profile.Wrap.For(t)
	if block.Header == "" && block.Footer == "" {
		return html
	}
	return block.Header + html + block.Footer
}

// cancelled records context cancellation on the result.
func cancelled(ctx context.Context, result *Result) bool {
	if err := ctx.Err(); err != nil {
		result.Error = err
		return true
	}
	return false
}

// removeFrontmatter drops the rendered frontmatter containers some hosts
// leave in the preview HTML.
func (p *Pipeline) removeFrontmatter(doc *goquery.Document) {
	removed := 0
	for _, sel := range []string{".frontmatter", ".frontmatter-container", ".metadata-container"} {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			s.Remove()
			removed++
		})
	}
	if removed > 0 {
		logger.Debug("rendered frontmatter removed", "elements", removed)
	}
}
