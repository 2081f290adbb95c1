// Package renderer turns note markdown into the HTML the transformation
// pipeline consumes. The pipeline itself never depends on this package;
// callers that already hold rendered HTML can skip it entirely.
package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// ErrConvert indicates markdown to HTML conversion failure.
var ErrConvert = errors.New("markdown conversion failed")

// Renderer abstracts markdown to HTML conversion.
type Renderer interface {
	Render(ctx context.Context, markdown string) (string, error)
}

// Goldmark renders markdown with GFM extensions. Output is an HTML
// fragment, not a full document.
type Goldmark struct {
	md goldmark.Markdown
}

var _ Renderer = (*Goldmark)(nil)

// New creates a Goldmark renderer configured for vault notes.
func New() *Goldmark {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,      // Tables, strikethrough, autolinks, task lists
			extension.Footnote, // [^1] footnotes
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(), // Heading anchors for [[Note#Heading]] links
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(), // Single newlines become <br>
			html.WithXHTML(),
			html.WithUnsafe(), // Notes may embed raw HTML; the sanitizer stage owns stripping
		),
	)
	return &Goldmark{md: md}
}

// Render converts markdown to an HTML fragment. Goldmark has no native
// context support, so cancellation is handled with a goroutine + select.
func (g *Goldmark) Render(ctx context.Context, markdown string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		html string
		err  error
	}

	done := make(chan result, 1)

	go func() {
		var buf bytes.Buffer
		if err := g.md.Convert([]byte(markdown), &buf); err != nil {
			done <- result{err: fmt.Errorf("%w: %v", ErrConvert, err)}
			return
		}
		done <- result{html: buf.String()}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.html, r.err
	}
}
