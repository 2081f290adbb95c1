// Package export provides the public API for turning vault notes into
// delivered artifacts: transformed HTML on the clipboard, on disk, or
// synced into a remote Foundry world.
package export

import (
	"io"

	"github.com/CePeU/MarkdownToFoundry-sub001/internal/renderer"
	"github.com/CePeU/MarkdownToFoundry-sub001/internal/vault"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/foundry"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/profile"
)

// Config holds all Exporter configuration.
type Config struct {
	// Vault is the note store exports read from. Required.
	Vault *vault.Vault

	// Profile selects the export configuration. Defaults to the seeded
	// profile when nil.
	Profile *profile.Profile

	// Renderer converts note markdown to HTML. Defaults to goldmark.
	Renderer renderer.Renderer

	// Store is the remote journal store. Required when the profile
	// enables the foundry target.
	Store foundry.RemoteStore

	// Meta receives frontmatter writebacks. Defaults to the vault.
	Meta foundry.MetadataWriter

	// Clipboard receives the clipboard target's output. Required when
	// the profile enables the clipboard target; the OS primitive is the
	// caller's concern.
	Clipboard io.Writer

	// OutputDir overrides where the file target writes. Empty means next
	// to each note inside the vault.
	OutputDir string

	// Concurrency bounds parallel note exports in a batch.
	Concurrency int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 3,
	}
}

// Option configures the Exporter.
type Option func(*Config)

// WithVault sets the note store.
func WithVault(v *vault.Vault) Option {
	return func(c *Config) {
		c.Vault = v
	}
}

// WithProfile sets the export profile.
func WithProfile(p *profile.Profile) Option {
	return func(c *Config) {
		c.Profile = p
	}
}

// WithRenderer sets the markdown renderer.
func WithRenderer(r renderer.Renderer) Option {
	return func(c *Config) {
		c.Renderer = r
	}
}

// WithClient sets the remote journal store.
func WithClient(s foundry.RemoteStore) Option {
	return func(c *Config) {
		c.Store = s
	}
}

// WithMetadataWriter overrides where frontmatter writebacks go.
func WithMetadataWriter(m foundry.MetadataWriter) Option {
	return func(c *Config) {
		c.Meta = m
	}
}

// WithClipboard sets the writer behind the clipboard target.
func WithClipboard(w io.Writer) Option {
	return func(c *Config) {
		c.Clipboard = w
	}
}

// WithOutputDir redirects the file target to a directory outside the vault.
func WithOutputDir(dir string) Option {
	return func(c *Config) {
		c.OutputDir = dir
	}
}

// WithConcurrency bounds parallel note exports in a batch.
func WithConcurrency(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Concurrency = n
		}
	}
}
