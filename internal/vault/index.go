package vault

import (
	"path"
	"sort"
	"strings"
)

// Index maps link targets to vault paths the way wiki-style links expect:
// a target is either a vault-relative path or a bare note name. Lookups are
// case-insensitive on the name component.
type Index struct {
	notePaths map[string]string   // lowercase rel path without extension -> path
	noteNames map[string][]string // lowercase basename -> candidate paths, sorted
	resources map[string][]string // lowercase attachment basename (with ext) -> paths, sorted
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		notePaths: make(map[string]string),
		noteNames: make(map[string][]string),
		resources: make(map[string][]string),
	}
}

// AddNote registers a markdown note path.
func (ix *Index) AddNote(relPath string) {
	trimmed := strings.TrimSuffix(relPath, path.Ext(relPath))
	ix.notePaths[strings.ToLower(trimmed)] = relPath

	name := strings.ToLower(path.Base(trimmed))
	ix.noteNames[name] = insertSorted(ix.noteNames[name], relPath)
}

// AddResource registers a non-markdown attachment path.
func (ix *Index) AddResource(relPath string) {
	name := strings.ToLower(path.Base(relPath))
	ix.resources[name] = insertSorted(ix.resources[name], relPath)
}

// ResolveNote resolves a link target to a note path. Targets containing a
// slash must match a vault path; bare names match any note with that
// basename. Ambiguous names resolve to the lexicographically first path.
func (ix *Index) ResolveNote(target string) (string, bool) {
	target = strings.TrimSuffix(strings.TrimSpace(target), ".md")
	if target == "" {
		return "", false
	}
	key := strings.ToLower(strings.ReplaceAll(target, "\\", "/"))

	if p, ok := ix.notePaths[key]; ok {
		return p, true
	}
	if strings.Contains(key, "/") {
		key = path.Base(key)
	}
	if paths := ix.noteNames[key]; len(paths) > 0 {
		return paths[0], true
	}
	return "", false
}

// ResolveResource resolves an attachment reference to a vault path. The
// reference may be a bare filename or a relative path.
func (ix *Index) ResolveResource(ref string) (string, bool) {
	ref = strings.TrimSpace(strings.ReplaceAll(ref, "\\", "/"))
	if ref == "" {
		return "", false
	}
	name := strings.ToLower(path.Base(ref))
	candidates := ix.resources[name]
	if len(candidates) == 0 {
		return "", false
	}
	// Prefer the candidate whose full path ends with the reference.
	lowRef := strings.ToLower(strings.TrimPrefix(path.Clean(ref), "./"))
	for _, c := range candidates {
		if strings.HasSuffix(strings.ToLower(c), lowRef) {
			return c, true
		}
	}
	return candidates[0], true
}

func insertSorted(paths []string, p string) []string {
	i := sort.SearchStrings(paths, p)
	if i < len(paths) && paths[i] == p {
		return paths
	}
	paths = append(paths, "")
	copy(paths[i+1:], paths[i:])
	paths[i] = p
	return paths
}
