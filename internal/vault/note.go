// Package vault is the local note store. It discovers markdown notes and
// attachments under a root directory, parses frontmatter, resolves wiki-style
// link targets to vault paths and writes export metadata back into notes.
package vault

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/goccy/go-yaml"
)

// Frontmatter keys managed by the exporter. Everything else in a note's
// frontmatter belongs to the user and is never touched.
const (
	KeyUUID       = "VTT_UUID"
	KeyLastExport = "VTT_LastExport"
	KeyJournal    = "VTT_Journal"
	KeyFolder     = "VTT_Folder"
)

// Note is a parsed markdown note.
type Note struct {
	Path        string         // vault-relative path, forward slashes, with extension
	Name        string         // basename without extension
	Raw         []byte         // original file content
	Frontmatter map[string]any // nil when the note has no frontmatter block
	Body        string         // markdown content after the frontmatter block
}

var fmDelim = []byte("---")

// ParseNote builds a Note from raw file content. A malformed frontmatter
// block is not an error; the whole content becomes the body.
func ParseNote(relPath string, raw []byte) (*Note, error) {
	n := &Note{
		Path: path.Clean(strings.ReplaceAll(relPath, "\\", "/")),
		Raw:  raw,
	}
	n.Name = strings.TrimSuffix(path.Base(n.Path), path.Ext(n.Path))

	block, body, ok := splitFrontmatter(raw)
	if !ok {
		n.Body = string(raw)
		return n, nil
	}

	fm := map[string]any{}
	if err := yaml.Unmarshal(block, &fm); err != nil {
		// Content the YAML parser rejects is still a valid note body.
		n.Body = string(raw)
		return n, fmt.Errorf("parse frontmatter of %s: %w", relPath, err)
	}
	n.Frontmatter = fm
	n.Body = string(body)
	return n, nil
}

// splitFrontmatter returns the YAML block between the leading --- fences and
// the remaining body. ok is false when there is no complete block.
func splitFrontmatter(raw []byte) (block, body []byte, ok bool) {
	content := raw
	if !bytes.HasPrefix(content, fmDelim) {
		return nil, nil, false
	}
	rest := content[len(fmDelim):]
	// The opening fence must be a whole line.
	if !bytes.HasPrefix(rest, []byte("\n")) && !bytes.HasPrefix(rest, []byte("\r\n")) {
		return nil, nil, false
	}
	rest = rest[bytes.IndexByte(rest, '\n')+1:]

	for off := 0; off < len(rest); {
		lineEnd := bytes.IndexByte(rest[off:], '\n')
		var line []byte
		if lineEnd < 0 {
			line = rest[off:]
			lineEnd = len(rest) - off
		} else {
			line = rest[off : off+lineEnd]
		}
		if bytes.Equal(bytes.TrimRight(line, "\r"), fmDelim) {
			block = rest[:off]
			body = rest[min(off+lineEnd+1, len(rest)):]
			return block, body, true
		}
		off += lineEnd + 1
	}
	return nil, nil, false
}

// UUID returns the persisted note identifier, or "" when the note has none.
func (n *Note) UUID() string {
	return n.StringField(KeyUUID)
}

// StringField returns a frontmatter value as a string. Non-string scalars
// are formatted; missing keys and collections return "".
func (n *Note) StringField(key string) string {
	if n.Frontmatter == nil {
		return ""
	}
	v, ok := n.Frontmatter[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool, int, int64, uint64, float64:
		return fmt.Sprintf("%v", t)
	default:
		return ""
	}
}
