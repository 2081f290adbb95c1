package profile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/dop251/goja"
)

// TagRule rewrites every element matched by Selector. An empty ReplaceWith
// unwraps the element, hoisting its children in document order.
type TagRule struct {
	Selector    string `json:"selector" yaml:"selector" validate:"required"`
	ReplaceWith string `json:"replace_with,omitempty" yaml:"replace_with,omitempty"`
}

var tagNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]*$`)

// Check verifies the selector compiles and the replacement is a legal
// element name.
func (r TagRule) Check() error {
	if strings.TrimSpace(r.Selector) == "" {
		return fmt.Errorf("selector is required")
	}
	if _, err := cascadia.Compile(r.Selector); err != nil {
		return fmt.Errorf("invalid selector %q: %w", r.Selector, err)
	}
	if r.ReplaceWith != "" && !tagNameRe.MatchString(r.ReplaceWith) {
		return fmt.Errorf("invalid replacement tag %q", r.ReplaceWith)
	}
	return nil
}

// Matcher returns the compiled selector.
func (r TagRule) Matcher() (cascadia.Selector, error) {
	return cascadia.Compile(r.Selector)
}

// RegexRule is a substitution over the serialized HTML. Flags use the
// letter form: i (ignore case), m (multi-line anchors), s (dot matches
// newline). g and u are accepted and ignored since substitution is always
// global and input is always UTF-8.
type RegexRule struct {
	Pattern     string `json:"pattern" yaml:"pattern" validate:"required"`
	Flags       string `json:"flags,omitempty" yaml:"flags,omitempty"`
	Replacement string `json:"replacement" yaml:"replacement"`
}

// Check verifies the pattern compiles under the declared flags.
func (r RegexRule) Check() error {
	if _, err := r.Compile(); err != nil {
		return err
	}
	return nil
}

// Compile returns the pattern as a Go regexp with flags applied.
func (r RegexRule) Compile() (*regexp.Regexp, error) {
	if r.Pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	var inline strings.Builder
	for _, f := range r.Flags {
		switch f {
		case 'i', 'm', 's':
			inline.WriteRune(f)
		case 'g', 'u':
			// implied
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", string(f))
		}
	}
	pattern := r.Pattern
	if inline.Len() > 0 {
		pattern = "(?" + inline.String() + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", r.Pattern, err)
	}
	return re, nil
}

// GoReplacement translates the substitution string. $& becomes ${0}; the
// numbered group forms pass through unchanged.
func (r RegexRule) GoReplacement() string {
	return strings.ReplaceAll(r.Replacement, "$&", "${0}")
}

// ScriptTransform is a user script run against the serialized HTML.
type ScriptTransform struct {
	Name   string `json:"name" yaml:"name" validate:"required"`
	Source string `json:"source" yaml:"source" validate:"required"`

	// TimeoutMillis bounds a single run of this script. Zero means the
	// pipeline default.
	TimeoutMillis int `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty" validate:"gte=0"`
}

// Check verifies the script at least parses.
func (s ScriptTransform) Check() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("script name is required")
	}
	if strings.TrimSpace(s.Source) == "" {
		return fmt.Errorf("script %q has no source", s.Name)
	}
	if _, err := goja.Compile(s.Name, s.Source, false); err != nil {
		return fmt.Errorf("script %q does not parse: %w", s.Name, err)
	}
	return nil
}
