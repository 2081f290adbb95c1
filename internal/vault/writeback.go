package vault

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-yaml"
)

// WriteMetadata sets frontmatter keys on a note and rewrites its file.
// Existing keys keep their position, new keys are appended, every other
// byte of the note survives untouched. A note without a frontmatter block
// gets one prepended. The in-memory note is refreshed on success.
func (v *Vault) WriteMetadata(relPath string, set map[string]any) error {
	if len(set) == 0 {
		return nil
	}
	relPath = filepath.ToSlash(relPath)
	full := filepath.Join(v.root, filepath.FromSlash(relPath))

	raw, err := os.ReadFile(full)
	if err != nil {
		return fmt.Errorf("read %s: %w", relPath, err)
	}

	updated, err := spliceFrontmatter(raw, set)
	if err != nil {
		return fmt.Errorf("update frontmatter of %s: %w", relPath, err)
	}

	perm := os.FileMode(0o644)
	if info, err := os.Stat(full); err == nil {
		perm = info.Mode().Perm()
	}
	if err := os.WriteFile(full, updated, perm); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}

	note, perr := ParseNote(relPath, updated)
	if perr != nil {
		return perr
	}
	v.mu.Lock()
	v.notes[note.Path] = note
	v.mu.Unlock()
	return nil
}

// spliceFrontmatter merges set into the note's frontmatter block, keeping
// key order stable so diffs stay minimal.
func spliceFrontmatter(raw []byte, set map[string]any) ([]byte, error) {
	block, body, ok := splitFrontmatter(raw)

	var doc yaml.MapSlice
	if ok {
		if err := yaml.UnmarshalWithOptions(block, &doc, yaml.UseOrderedMap()); err != nil {
			return nil, err
		}
	} else {
		body = raw
	}

	for _, key := range sortedKeys(set) {
		value := set[key]
		replaced := false
		for i, item := range doc {
			if k, isStr := item.Key.(string); isStr && k == key {
				doc[i].Value = value
				replaced = true
				break
			}
		}
		if !replaced {
			doc = append(doc, yaml.MapItem{Key: key, Value: value})
		}
	}

	encoded, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.WriteString("---\n")
	out.Write(encoded)
	if !bytes.HasSuffix(encoded, []byte("\n")) {
		out.WriteByte('\n')
	}
	out.WriteString("---\n")
	if !ok && len(body) > 0 && body[0] != '\n' {
		out.WriteByte('\n')
	}
	out.Write(body)
	return out.Bytes(), nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
