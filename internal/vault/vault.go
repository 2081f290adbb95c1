package vault

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/CePeU/MarkdownToFoundry-sub001/internal/logger"
)

// Vault is a directory of markdown notes and attachments. Safe for
// concurrent use once Open has returned.
type Vault struct {
	root string

	mu    sync.RWMutex
	notes map[string]*Note

	index *Index
}

// Open walks root, parses every markdown note and indexes attachments.
// Dot-directories (.obsidian, .git, .trash) are skipped. Notes whose
// frontmatter fails to parse are kept with a nil frontmatter and logged.
func Open(root string) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open vault: %s is not a directory", root)
	}

	v := &Vault{
		root:  abs,
		notes: make(map[string]*Note),
		index: NewIndex(),
	}

	err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != abs && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if strings.EqualFold(filepath.Ext(p), ".md") {
			raw, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("read %s: %w", rel, err)
			}
			note, perr := ParseNote(rel, raw)
			if perr != nil {
				logger.Warn("invalid frontmatter", "note", rel, "error", perr)
			}
			v.notes[note.Path] = note
			v.index.AddNote(note.Path)
			return nil
		}

		v.index.AddResource(rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk vault: %w", err)
	}

	logger.Debug("vault opened", "root", abs, "notes", len(v.notes))
	return v, nil
}

// Root returns the absolute vault root directory.
func (v *Vault) Root() string { return v.root }

// Note returns the parsed note at a vault-relative path.
func (v *Vault) Note(relPath string) (*Note, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	n, ok := v.notes[filepath.ToSlash(relPath)]
	return n, ok
}

// Notes returns all notes sorted by path.
func (v *Vault) Notes() []*Note {
	v.mu.RLock()
	out := make([]*Note, 0, len(v.notes))
	for _, n := range v.notes {
		out = append(out, n)
	}
	v.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// NotesUnder returns the notes whose path sits below a vault-relative
// directory, sorted by path. An empty dir matches every note.
func (v *Vault) NotesUnder(dir string) []*Note {
	dir = strings.Trim(filepath.ToSlash(dir), "/")
	if dir == "" || dir == "." {
		return v.Notes()
	}
	prefix := dir + "/"
	var out []*Note
	for _, n := range v.Notes() {
		if strings.HasPrefix(n.Path, prefix) {
			out = append(out, n)
		}
	}
	return out
}

// ResolveLink resolves a wiki-style link target to a note path.
func (v *Vault) ResolveLink(target string) (string, bool) {
	return v.index.ResolveNote(target)
}

// ResolveResource resolves an attachment reference to a vault path.
func (v *Vault) ResolveResource(ref string) (string, bool) {
	return v.index.ResolveResource(ref)
}

// Resource reads attachment bytes by reference. The reference is resolved
// through the index first so bare filenames work.
func (v *Vault) Resource(ref string) ([]byte, error) {
	rel, ok := v.ResolveResource(ref)
	if !ok {
		return nil, fmt.Errorf("resource %q not found in vault", ref)
	}
	data, err := os.ReadFile(filepath.Join(v.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("read resource %s: %w", rel, err)
	}
	return data, nil
}
