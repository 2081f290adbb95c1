package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/profile"
)

// Stats captures metrics about a single pipeline run.
type Stats struct {
	// Size metrics
	InputBytes  int `json:"input_bytes"`
	OutputBytes int `json:"output_bytes"`

	// Image resolution
	ImagesInlined    int `json:"images_inlined"`
	ImagesRewritten  int `json:"images_rewritten"`
	ImagesUnresolved int `json:"images_unresolved"`

	// Link resolution
	LinksResolved   int `json:"links_resolved"`
	LinksUnresolved int `json:"links_unresolved"`

	// Selector rules
	RuleMatches       map[string]int `json:"rule_matches"` // selector -> matched elements
	ElementsRetagged  int            `json:"elements_retagged"`
	ElementsUnwrapped int            `json:"elements_unwrapped"`

	// Pruning and sanitization
	EmptyElementRemovals int `json:"empty_element_removals"`
	AttributesRemoved    int `json:"attributes_removed"`
	ClassesRemoved       int `json:"classes_removed"`

	// Text rewrite
	RegexApplied    int `json:"regex_applied"`
	ScriptsApplied  int `json:"scripts_applied"`
	ScriptsReverted int `json:"scripts_reverted"`

	// Timing
	ParseDuration     time.Duration `json:"parse_duration_ms"`
	TransformDuration time.Duration `json:"transform_duration_ms"`
	RewriteDuration   time.Duration `json:"rewrite_duration_ms"`
	TotalDuration     time.Duration `json:"total_duration_ms"`
}

// NewStats creates a Stats instance with initialized maps.
func NewStats() *Stats {
	return &Stats{
		RuleMatches: make(map[string]int),
	}
}

// RecordRuleMatch records that a selector rule matched elements.
func (s *Stats) RecordRuleMatch(selector string, count int) {
	s.RuleMatches[selector] += count
}

// String returns a human-readable summary of the stats.
func (s *Stats) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Size: %d -> %d bytes\n", s.InputBytes, s.OutputBytes))

	if s.ImagesInlined+s.ImagesRewritten+s.ImagesUnresolved > 0 {
		sb.WriteString(fmt.Sprintf("Images: %d inlined, %d rewritten, %d unresolved\n",
			s.ImagesInlined, s.ImagesRewritten, s.ImagesUnresolved))
	}
	if s.LinksResolved+s.LinksUnresolved > 0 {
		sb.WriteString(fmt.Sprintf("Links: %d resolved, %d unresolved\n",
			s.LinksResolved, s.LinksUnresolved))
	}
	if s.ElementsRetagged+s.ElementsUnwrapped > 0 {
		sb.WriteString(fmt.Sprintf("Rules: %d retagged, %d unwrapped\n",
			s.ElementsRetagged, s.ElementsUnwrapped))
	}
	if s.EmptyElementRemovals > 0 {
		sb.WriteString(fmt.Sprintf("Empty elements removed: %d\n", s.EmptyElementRemovals))
	}
	if s.AttributesRemoved+s.ClassesRemoved > 0 {
		sb.WriteString(fmt.Sprintf("Sanitized: %d attributes, %d class tokens\n",
			s.AttributesRemoved, s.ClassesRemoved))
	}
	if s.RegexApplied+s.ScriptsApplied > 0 {
		sb.WriteString(fmt.Sprintf("Rewrites: %d regex, %d scripts (%d reverted)\n",
			s.RegexApplied, s.ScriptsApplied, s.ScriptsReverted))
	}

	sb.WriteString(fmt.Sprintf("Timing: parse=%v, transform=%v, rewrite=%v, total=%v\n",
		s.ParseDuration.Round(time.Millisecond),
		s.TransformDuration.Round(time.Millisecond),
		s.RewriteDuration.Round(time.Millisecond),
		s.TotalDuration.Round(time.Millisecond)))

	return sb.String()
}

// Warning represents a non-fatal issue from one pipeline stage.
type Warning struct {
	Stage   string `json:"stage"`   // "parse", "images", "links", "rules", ...
	Message string `json:"message"` // Human-readable description
	Context string `json:"context"` // Rule, selector, script or resource involved
}

// String returns a formatted warning message.
func (w Warning) String() string {
	if w.Context != "" {
		return fmt.Sprintf("[%s] %s (context: %s)", w.Stage, w.Message, w.Context)
	}
	return fmt.Sprintf("[%s] %s", w.Stage, w.Message)
}

// Upload is an image recorded by the path-rewrite mode, awaiting transfer
// to the remote file store.
type Upload struct {
	// VaultPath is the attachment's vault-relative path.
	VaultPath string `json:"vault_path"`

	// RemotePath is the destination path the rewritten src points at.
	RemotePath string `json:"remote_path"`
}

// Result contains the output of one pipeline run.
type Result struct {
	// HTML is the transformed document before per-target wrapping. On
	// parse failure it still carries the best value the string stages
	// could produce from the original input.
	HTML string `json:"html"`

	// Targets maps each enabled target to its wrapped output.
	Targets map[profile.Target]string `json:"targets,omitempty"`

	// PendingUploads lists images the remote target still has to receive.
	PendingUploads []Upload `json:"pending_uploads,omitempty"`

	// Warnings contains non-fatal issues encountered.
	Warnings []Warning `json:"warnings,omitempty"`

	// Stats contains metrics about what was done.
	Stats *Stats `json:"stats"`

	// Error is set only when the run was cancelled; HTML still holds the
	// last-known-good value.
	Error error `json:"error,omitempty"`
}

// AddWarning adds a warning to the result.
func (r *Result) AddWarning(stage, message, context string) {
	r.Warnings = append(r.Warnings, Warning{
		Stage:   stage,
		Message: message,
		Context: context,
	})
}

// HasWarnings returns true if any warnings were recorded.
func (r *Result) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// For returns the wrapped output for a target, falling back to the
// unwrapped HTML when the target was not enabled.
func (r *Result) For(t profile.Target) string {
	if out, ok := r.Targets[t]; ok {
		return out
	}
	return r.HTML
}
