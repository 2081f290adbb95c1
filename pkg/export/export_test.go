package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/CePeU/MarkdownToFoundry-sub001/internal/vault"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/foundry"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/profile"
)

var pngData = string([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A})

func writeVault(t *testing.T, files map[string]string) *vault.Vault {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	v, err := vault.Open(dir)
	if err != nil {
		t.Fatalf("open vault: %v", err)
	}
	return v
}

// memStore is an in-memory RemoteStore for exercising the full export
// path without a relay.
type memStore struct {
	mu      sync.Mutex
	entries []*foundry.EntryRecord
	files   map[string][]byte
	nextID  int
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string][]byte)}
}

func (m *memStore) Query(_ context.Context, id foundry.Identity) (*foundry.EntryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if id.ByUUID() {
			if e.UUID == id.UUID {
				cp := *e
				return &cp, nil
			}
			continue
		}
		if e.NotePath == id.Path && e.Name == id.Name {
			cp := *e
			return &cp, nil
		}
	}
	return nil, foundry.ErrNotFound
}

func (m *memStore) Upload(_ context.Context, entry *foundry.EntryRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *entry
	cp.ID = fmt.Sprintf("JE%04d", m.nextID)
	m.entries = append(m.entries, &cp)
	return cp.ID, nil
}

func (m *memStore) Update(_ context.Context, remoteID string, entry *foundry.EntryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == remoteID {
			cp := *entry
			cp.ID = remoteID
			m.entries[i] = &cp
			return nil
		}
	}
	return foundry.ErrNotFound
}

func (m *memStore) UploadFile(_ context.Context, remotePath string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[remotePath] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) Entries(_ context.Context) ([]foundry.EntryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]foundry.EntryRecord, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out, nil
}

func (m *memStore) byName(name string) *foundry.EntryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.Name == name {
			cp := *e
			return &cp
		}
	}
	return nil
}

func remoteProfile() *profile.Profile {
	return &profile.Profile{
		Name:             "remote",
		ExportFoundry:    true,
		ResolveWikilinks: true,
		KeepAttributes:   []string{"href", "src", "alt"},
		KeepClasses:      []string{"internal-link"},
		Destination: profile.Destination{
			Journal:   "Campaign",
			Folder:    "Session Notes",
			ImagePath: "assets/uploads",
		},
	}
}

func TestNew_Validation(t *testing.T) {
	v := writeVault(t, map[string]string{"Note.md": "x"})

	tests := []struct {
		name    string
		opts    []Option
		wantErr string
	}{
		{
			name:    "missing_vault",
			opts:    nil,
			wantErr: "vault is required",
		},
		{
			name: "clipboard_without_writer",
			opts: []Option{
				WithVault(v),
				WithProfile(&profile.Profile{Name: "clip", ExportClipboard: true}),
			},
			wantErr: "no writer wired",
		},
		{
			name: "foundry_without_store",
			opts: []Option{
				WithVault(v),
				WithProfile(&profile.Profile{Name: "remote", ExportFoundry: true}),
			},
			wantErr: "no store wired",
		},
		{
			name: "invalid_profile",
			opts: []Option{
				WithVault(v),
				WithProfile(&profile.Profile{}),
			},
			wantErr: "invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestExport_ClipboardDelivery(t *testing.T) {
	v := writeVault(t, map[string]string{
		"Dragon.md": "# The Red Dragon\n\nA fearsome beast.",
	})
	prof := &profile.Profile{
		Name:            "clip",
		ExportClipboard: true,
		Wrap: profile.Wrapping{
			Clipboard: profile.Block{Header: "<article>", Footer: "</article>"},
		},
	}
	var buf bytes.Buffer

	e, err := New(WithVault(v), WithProfile(prof), WithClipboard(&buf))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := e.Export(context.Background(), "Dragon.md")
	if res.Error != nil {
		t.Fatalf("Export() error = %v", res.Error)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "<article>") || !strings.HasSuffix(out, "</article>") {
		t.Errorf("clipboard output not wrapped: %q", out)
	}
	if !strings.Contains(out, "A fearsome beast.") {
		t.Errorf("clipboard output missing body: %q", out)
	}
	if len(res.Statuses) != 1 || res.Statuses[0].Target != profile.TargetClipboard {
		t.Errorf("Statuses = %+v, want single clipboard delivery", res.Statuses)
	}
}

func TestExport_FileTarget(t *testing.T) {
	v := writeVault(t, map[string]string{
		"places/Lair.md": "Deep and dark.",
	})

	t.Run("writes_next_to_note", func(t *testing.T) {
		prof := &profile.Profile{Name: "file", ExportFile: true}
		e, err := New(WithVault(v), WithProfile(prof))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		res := e.Export(context.Background(), "places/Lair.md")
		if res.Error != nil {
			t.Fatalf("Export() error = %v", res.Error)
		}
		data, err := os.ReadFile(filepath.Join(v.Root(), "places", "Lair.html"))
		if err != nil {
			t.Fatalf("read exported file: %v", err)
		}
		if !strings.Contains(string(data), "Deep and dark.") {
			t.Errorf("exported file = %q, want note body", data)
		}
	})

	t.Run("output_dir_override", func(t *testing.T) {
		out := t.TempDir()
		prof := &profile.Profile{Name: "file", ExportFile: true}
		e, err := New(WithVault(v), WithProfile(prof), WithOutputDir(out))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		res := e.Export(context.Background(), "places/Lair.md")
		if res.Error != nil {
			t.Fatalf("Export() error = %v", res.Error)
		}
		if _, err := os.Stat(filepath.Join(out, "places", "Lair.html")); err != nil {
			t.Errorf("exported file missing under override dir: %v", err)
		}
	})
}

func TestExport_FoundrySync(t *testing.T) {
	v := writeVault(t, map[string]string{
		"Dragon.md": "---\ntitle: Dragon\n---\nA fearsome beast.",
	})
	store := newMemStore()

	e, err := New(WithVault(v), WithProfile(remoteProfile()), WithClient(store))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := e.Export(context.Background(), "Dragon.md")
	if res.Error != nil {
		t.Fatalf("Export() error = %v", res.Error)
	}
	if res.Remote == nil || !res.Remote.Created {
		t.Fatalf("Remote = %+v, want created outcome", res.Remote)
	}
	entry := store.byName("Dragon")
	if entry == nil {
		t.Fatal("no remote entry named Dragon")
	}
	if entry.NotePath != "Dragon.md" || entry.Journal != "Campaign" {
		t.Errorf("entry = %+v, want note path and journal recorded", entry)
	}
	if !strings.Contains(entry.Content, "A fearsome beast.") {
		t.Errorf("entry content = %q, want note body", entry.Content)
	}
}

func TestExport_ImageUploadsReachStore(t *testing.T) {
	v := writeVault(t, map[string]string{
		"Dragon.md":   "![map](art/map.png)",
		"art/map.png": pngData,
	})
	store := newMemStore()

	e, err := New(WithVault(v), WithProfile(remoteProfile()), WithClient(store))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := e.Export(context.Background(), "Dragon.md")
	if res.Error != nil {
		t.Fatalf("Export() error = %v", res.Error)
	}
	if res.Remote.FilesPushed != 1 {
		t.Errorf("FilesPushed = %d, want 1", res.Remote.FilesPushed)
	}
	if !bytes.Equal(store.files["assets/uploads/map.png"], []byte(pngData)) {
		t.Error("attachment bytes did not reach the store")
	}
	entry := store.byName("Dragon")
	if !strings.Contains(entry.Content, `src="assets/uploads/map.png"`) {
		t.Errorf("entry content = %q, want rewritten image src", entry.Content)
	}
}

func TestExport_WriteUUIDPersistsIntoNote(t *testing.T) {
	v := writeVault(t, map[string]string{
		"Dragon.md": "---\ntitle: Dragon\n---\nA fearsome beast.",
	})
	store := newMemStore()
	prof := remoteProfile()
	prof.WriteUUID = true

	e, err := New(WithVault(v), WithProfile(prof), WithClient(store))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := e.Export(context.Background(), "Dragon.md")
	if res.Error != nil {
		t.Fatalf("Export() error = %v", res.Error)
	}
	if res.Remote.MintedUUID == "" {
		t.Fatal("MintedUUID empty, want minted identifier")
	}

	note, _ := v.Note("Dragon.md")
	if note.UUID() != res.Remote.MintedUUID {
		t.Errorf("note UUID = %q, want %q", note.UUID(), res.Remote.MintedUUID)
	}
	raw, err := os.ReadFile(filepath.Join(v.Root(), "Dragon.md"))
	if err != nil {
		t.Fatalf("read note: %v", err)
	}
	if !strings.Contains(string(raw), vault.KeyUUID) {
		t.Error("note file missing persisted identifier")
	}
	if !strings.Contains(string(raw), "A fearsome beast.") {
		t.Error("note body changed by writeback")
	}

	// A second export must find the same record through the persisted
	// identifier instead of creating a duplicate.
	res2 := e.Export(context.Background(), "Dragon.md")
	if res2.Error != nil {
		t.Fatalf("second Export() error = %v", res2.Error)
	}
	if res2.Remote.Created {
		t.Error("second export created a new entry, want in-place update")
	}
	if res2.Remote.RemoteID != res.Remote.RemoteID {
		t.Errorf("RemoteID = %q, want %q", res2.Remote.RemoteID, res.Remote.RemoteID)
	}
	if entries, _ := store.Entries(context.Background()); len(entries) != 1 {
		t.Errorf("store holds %d entries, want 1", len(entries))
	}
}

func TestExport_MissingNote(t *testing.T) {
	v := writeVault(t, map[string]string{"Note.md": "x"})
	e, err := New(WithVault(v), WithProfile(&profile.Profile{Name: "file", ExportFile: true}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := e.Export(context.Background(), "Ghost.md")
	if res.Error == nil || !strings.Contains(res.Error.Error(), "not found") {
		t.Errorf("Export() error = %v, want not found", res.Error)
	}
}

func TestExportMany_ResultForEveryNote(t *testing.T) {
	v := writeVault(t, map[string]string{
		"A.md": "alpha",
		"B.md": "beta",
		"C.md": "gamma",
	})
	e, err := New(WithVault(v), WithProfile(&profile.Profile{Name: "file", ExportFile: true}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	paths := []string{"A.md", "B.md", "C.md"}
	got := map[string]bool{}
	for res := range e.ExportMany(context.Background(), paths, 2) {
		if res.Error != nil {
			t.Errorf("Export(%s) error = %v", res.Path, res.Error)
		}
		got[res.Path] = true
	}
	if len(got) != len(paths) {
		t.Errorf("received %d results, want %d", len(got), len(paths))
	}
}

func TestExportBatch_AutoRelink(t *testing.T) {
	v := writeVault(t, map[string]string{
		"Dragon.md":      "See [[Lair]] for the hoard.",
		"places/Lair.md": "Deep and dark.",
	})
	store := newMemStore()
	prof := remoteProfile()
	prof.AutoRelink = true

	e, err := New(WithVault(v), WithProfile(prof), WithClient(store))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	report := e.ExportBatch(context.Background(), []string{"Dragon.md", "places/Lair.md"})
	if report.Failed != 0 || report.Exported != 2 {
		t.Fatalf("report = %d exported, %d failed, want 2/0", report.Exported, report.Failed)
	}
	if report.Results[0].Path != "Dragon.md" {
		t.Errorf("Results[0].Path = %q, want sorted order", report.Results[0].Path)
	}
	if report.RelinkErr != nil {
		t.Fatalf("RelinkErr = %v", report.RelinkErr)
	}
	if report.Relink == nil || report.Relink.LinksRewritten != 1 {
		t.Fatalf("Relink = %+v, want one rewritten link", report.Relink)
	}

	lair := store.byName("Lair")
	dragon := store.byName("Dragon")
	want := "@UUID[JournalEntry." + lair.ID + "]{Lair}"
	if !strings.Contains(dragon.Content, want) {
		t.Errorf("dragon content = %q, want %q", dragon.Content, want)
	}
}

func TestExportBatch_CountsMissingNote(t *testing.T) {
	v := writeVault(t, map[string]string{"A.md": "alpha"})
	e, err := New(WithVault(v), WithProfile(&profile.Profile{Name: "file", ExportFile: true}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	report := e.ExportBatch(context.Background(), []string{"A.md", "Ghost.md"})
	if report.Exported != 1 || report.Failed != 1 {
		t.Errorf("report = %d exported, %d failed, want 1/1", report.Exported, report.Failed)
	}
}

func TestRelink_WithoutRemoteWired(t *testing.T) {
	v := writeVault(t, map[string]string{"Note.md": "x"})
	e, err := New(WithVault(v), WithProfile(&profile.Profile{Name: "file", ExportFile: true}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := e.Relink(context.Background()); err == nil {
		t.Error("Relink() without remote store succeeded")
	}
}
