// Package profile defines named export configurations. A profile bundles
// every knob of a single export run: which targets receive output, how the
// HTML pipeline transforms the note, and where remote journal entries land.
package profile

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Target identifies an export destination.
type Target string

const (
	TargetClipboard Target = "clipboard"
	TargetFile      Target = "file"
	TargetFoundry   Target = "foundry"
)

// Block is literal HTML placed around a target's output.
type Block struct {
	Header string `json:"header,omitempty" yaml:"header,omitempty"`
	Footer string `json:"footer,omitempty" yaml:"footer,omitempty"`
}

// Wrapping holds the per-target header and footer blocks.
type Wrapping struct {
	Clipboard Block `json:"clipboard,omitempty" yaml:"clipboard,omitempty"`
	File      Block `json:"file,omitempty" yaml:"file,omitempty"`
	Foundry   Block `json:"foundry,omitempty" yaml:"foundry,omitempty"`
}

// For returns the block for a target. Unknown targets get an empty block.
func (w Wrapping) For(t Target) Block {
	switch t {
	case TargetClipboard:
		return w.Clipboard
	case TargetFile:
		return w.File
	case TargetFoundry:
		return w.Foundry
	}
	return Block{}
}

// Destination holds the remote defaults for journal placement.
type Destination struct {
	// Folder is the remote folder entries are created under.
	Folder string `json:"folder,omitempty" yaml:"folder,omitempty"`

	// Journal is the journal name entries are created in.
	Journal string `json:"journal,omitempty" yaml:"journal,omitempty"`

	// ImagePath is the remote directory uploaded images are stored in.
	ImagePath string `json:"image_path,omitempty" yaml:"image_path,omitempty"`
}

// Connection holds relay settings for remote export.
type Connection struct {
	// RelayURL is the websocket endpoint of the relay.
	RelayURL string `json:"relay_url,omitempty" yaml:"relay_url,omitempty" validate:"omitempty,uri"`

	// SessionID selects the world session when several are live.
	SessionID string `json:"session_id,omitempty" yaml:"session_id,omitempty"`

	// Username and Password authenticate the headless login flow.
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// APIKey authenticates against the relay itself.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// TimeoutSeconds bounds every remote call. Zero means the default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty" validate:"gte=0,lte=600"`
}

// Profile is a complete, named export configuration.
type Profile struct {
	// Name is the unique profile key.
	Name string `json:"name" yaml:"name" validate:"required"`

	// === Targets ===

	// ExportClipboard delivers the transformed HTML to the clipboard writer.
	ExportClipboard bool `json:"export_clipboard" yaml:"export_clipboard"`

	// ExportFile writes the transformed HTML next to the note.
	ExportFile bool `json:"export_file" yaml:"export_file"`

	// ExportFoundry uploads the note as a remote journal entry.
	ExportFoundry bool `json:"export_foundry" yaml:"export_foundry"`

	// === Pipeline toggles ===

	// DirtyExport skips attribute and class sanitization entirely.
	DirtyExport bool `json:"dirty_export" yaml:"dirty_export"`

	// Base64Images inlines vault images as data URIs instead of
	// rewriting their paths. Path-based image upload is inert while set.
	Base64Images bool `json:"base64_images" yaml:"base64_images"`

	// ResolveWikilinks rewrites wiki-style links to vault paths.
	ResolveWikilinks bool `json:"resolve_wikilinks" yaml:"resolve_wikilinks"`

	// RemoveFrontmatter drops the rendered frontmatter block from the HTML.
	RemoveFrontmatter bool `json:"remove_frontmatter" yaml:"remove_frontmatter"`

	// === Remote behaviour ===

	// HeadlessLogin performs a credential login before remote calls.
	HeadlessLogin bool `json:"headless_login" yaml:"headless_login"`

	// WriteUUID persists a minted identifier into note frontmatter.
	WriteUUID bool `json:"write_uuid" yaml:"write_uuid"`

	// AutoRelink rewrites cross-note links remotely after an upload batch.
	AutoRelink bool `json:"auto_relink" yaml:"auto_relink"`

	// === Sanitizer allow-lists ===

	// KeepAttributes are the attribute names the sanitizer preserves.
	KeepAttributes []string `json:"keep_attributes,omitempty" yaml:"keep_attributes,omitempty"`

	// KeepClasses are the class tokens the sanitizer preserves.
	KeepClasses []string `json:"keep_classes,omitempty" yaml:"keep_classes,omitempty"`

	// === Ordered rules ===

	// TagRules rewrite elements matched by CSS selectors, in order.
	TagRules []TagRule `json:"tag_rules,omitempty" yaml:"tag_rules,omitempty" validate:"dive"`

	// RegexRules run against the serialized HTML, in order.
	RegexRules []RegexRule `json:"regex_rules,omitempty" yaml:"regex_rules,omitempty" validate:"dive"`

	// Scripts run user transforms against the serialized HTML, in order.
	Scripts []ScriptTransform `json:"scripts,omitempty" yaml:"scripts,omitempty" validate:"dive"`

	// Wrap holds per-target header and footer blocks.
	Wrap Wrapping `json:"wrap,omitempty" yaml:"wrap,omitempty"`

	// Destination holds remote placement defaults.
	Destination Destination `json:"destination,omitempty" yaml:"destination,omitempty"`

	// Connection holds relay settings.
	Connection Connection `json:"connection,omitempty" yaml:"connection,omitempty"`
}

// DefaultName is the name of the seeded fallback profile.
const DefaultName = "default"

// Default returns the seeded profile used when no explicit profile exists
// or the selected one fails validation.
func Default() *Profile {
	return &Profile{
		Name:             DefaultName,
		ExportClipboard:  true,
		ResolveWikilinks: true,
		KeepAttributes: []string{
			"href", "src", "alt", "title", "id", "name",
			"width", "height", "colspan", "rowspan", "start",
			"type", "checked", "disabled",
		},
		KeepClasses: []string{
			"callout", "callout-title", "callout-content",
			"contains-task-list", "task-list-item",
			"footnote-ref", "footnote-backref",
			"internal-link", "external-link", "image-embed",
		},
	}
}

// Clone returns a deep copy. Export runs snapshot the profile so later
// edits never affect an in-flight run.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.KeepAttributes = append([]string(nil), p.KeepAttributes...)
	cp.KeepClasses = append([]string(nil), p.KeepClasses...)
	cp.TagRules = append([]TagRule(nil), p.TagRules...)
	cp.RegexRules = append([]RegexRule(nil), p.RegexRules...)
	cp.Scripts = append([]ScriptTransform(nil), p.Scripts...)
	return &cp
}

// ValidationError describes a single invalid profile field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validate = validator.New()

// Validate checks the profile including rule compilation. Rules that do not
// compile are rejected here so runs never meet them.
func (p *Profile) Validate() []ValidationError {
	var errs []ValidationError

	if err := validate.Struct(p); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, e := range verrs {
				errs = append(errs, ValidationError{
					Field:   e.Namespace(),
					Message: formatValidationError(e),
					Value:   e.Value(),
				})
			}
		} else {
			errs = append(errs, ValidationError{Field: "profile", Message: err.Error()})
		}
	}

	for i, r := range p.TagRules {
		if err := r.Check(); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("tag_rules[%d]", i),
				Message: err.Error(),
				Value:   r.Selector,
			})
		}
	}
	for i, r := range p.RegexRules {
		if err := r.Check(); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("regex_rules[%d]", i),
				Message: err.Error(),
				Value:   r.Pattern,
			})
		}
	}
	for i, s := range p.Scripts {
		if err := s.Check(); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("scripts[%d]", i),
				Message: err.Error(),
				Value:   s.Name,
			})
		}
	}

	return errs
}

// formatValidationError creates a human-readable error message.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "uri":
		return "must be a valid URL"
	case "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", e.Param())
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
