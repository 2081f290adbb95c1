package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/CePeU/MarkdownToFoundry-sub001/internal/logger"
)

// Store errors.
var (
	ErrNotFound   = errors.New("profile not found")
	ErrDuplicate  = errors.New("profile name already exists")
	ErrNameChange = errors.New("profile name does not match")
)

// Store holds named profiles. The seeded default profile always exists and
// is restored on delete. All methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewStore returns a store seeded with the default profile.
func NewStore() *Store {
	s := &Store{profiles: make(map[string]*Profile)}
	s.profiles[DefaultName] = Default()
	return s
}

// storeFile is the on-disk document shape.
type storeFile struct {
	Profiles []*Profile `json:"profiles" yaml:"profiles"`
}

// LoadFile loads profiles from a JSON or YAML file into a fresh store.
// Profiles that fail validation are skipped with a warning; the seeded
// default remains available in their place.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var doc storeFile

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON profiles: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML profiles: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported profile file format: %s", ext)
	}

	s := NewStore()
	for _, p := range doc.Profiles {
		if p == nil {
			continue
		}
		if verrs := p.Validate(); len(verrs) > 0 {
			for _, ve := range verrs {
				logger.Warn("invalid profile rejected", "profile", p.Name, "field", ve.Field, "reason", ve.Message)
			}
			continue
		}
		s.mu.Lock()
		s.profiles[p.Name] = p
		s.mu.Unlock()
	}
	return s, nil
}

// SaveFile writes all profiles to a JSON or YAML file, by extension.
func (s *Store) SaveFile(path string) error {
	doc := storeFile{Profiles: s.List()}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(doc, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(doc)
	default:
		return fmt.Errorf("unsupported profile file format: %s", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}
	return nil
}

// Get returns a copy of the named profile.
func (s *Store) Get(name string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p.Clone(), nil
}

// GetOrDefault returns the named profile, or the default profile with a
// warning when the name is unknown or empty.
func (s *Store) GetOrDefault(name string) *Profile {
	if name == "" {
		name = DefaultName
	}
	p, err := s.Get(name)
	if err != nil {
		logger.Warn("profile not found, using default", "profile", name)
		p, _ = s.Get(DefaultName)
	}
	return p
}

// Put creates a new profile. The name must be unused.
func (s *Store) Put(p *Profile) error {
	if verrs := p.Validate(); len(verrs) > 0 {
		return fmt.Errorf("invalid profile %s: %s", p.Name, verrs[0].Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[p.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, p.Name)
	}
	s.profiles[p.Name] = p.Clone()
	return nil
}

// Update replaces an existing profile under the same name.
func (s *Store) Update(p *Profile) error {
	if verrs := p.Validate(); len(verrs) > 0 {
		return fmt.Errorf("invalid profile %s: %s", p.Name, verrs[0].Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[p.Name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, p.Name)
	}
	s.profiles[p.Name] = p.Clone()
	return nil
}

// Rename moves a profile to a new unused name.
func (s *Store) Rename(oldName, newName string) error {
	if newName == "" {
		return fmt.Errorf("%w: empty name", ErrNameChange)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[oldName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}
	if _, exists := s.profiles[newName]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, newName)
	}
	delete(s.profiles, oldName)
	cp := p.Clone()
	cp.Name = newName
	s.profiles[newName] = cp
	return nil
}

// Delete removes a profile. Deleting the default profile resets it to the
// seeded configuration instead.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if name == DefaultName {
		s.profiles[DefaultName] = Default()
		return nil
	}
	delete(s.profiles, name)
	return nil
}

// List returns all profiles sorted by name, default first.
func (s *Store) List() []*Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == DefaultName {
			return true
		}
		if out[j].Name == DefaultName {
			return false
		}
		return out[i].Name < out[j].Name
	})
	return out
}
