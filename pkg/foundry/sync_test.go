package foundry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/CePeU/MarkdownToFoundry-sub001/internal/vault"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/profile"
)

type fakeStore struct {
	entries map[string]*EntryRecord
	order   []string
	files   map[string][]byte
	nextID  int

	queryErr  error
	uploadErr error
	updateErr map[string]error
	fileErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries:   make(map[string]*EntryRecord),
		files:     make(map[string][]byte),
		updateErr: make(map[string]error),
	}
}

func (f *fakeStore) seed(entry EntryRecord) string {
	f.nextID++
	id := fmt.Sprintf("JE%04d", f.nextID)
	entry.ID = id
	f.entries[id] = &entry
	f.order = append(f.order, id)
	return id
}

func (f *fakeStore) Query(_ context.Context, id Identity) (*EntryRecord, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	for _, rid := range f.order {
		e := f.entries[rid]
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
	return nil, ErrNotFound
}

func (f *fakeStore) Upload(_ context.Context, entry *EntryRecord) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	cp := *entry
	return f.seed(cp), nil
}

func (f *fakeStore) Update(_ context.Context, remoteID string, entry *EntryRecord) error {
	if err := f.updateErr[remoteID]; err != nil {
		return err
	}
	existing, ok := f.entries[remoteID]
	if !ok {
		return errors.New("no such entry: " + remoteID)
	}
	cp := *entry
	cp.ID = existing.ID
	f.entries[remoteID] = &cp
	return nil
}

func (f *fakeStore) UploadFile(_ context.Context, remotePath string, data []byte) error {
	if f.fileErr != nil {
		return f.fileErr
	}
	f.files[remotePath] = data
	return nil
}

func (f *fakeStore) Entries(_ context.Context) ([]EntryRecord, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := make([]EntryRecord, 0, len(f.order))
	for _, rid := range f.order {
		out = append(out, *f.entries[rid])
	}
	return out, nil
}

type fakeMeta struct {
	writes []map[string]any
	err    error
}

func (m *fakeMeta) WriteMetadata(_ string, set map[string]any) error {
	if m.err != nil {
		return m.err
	}
	cp := make(map[string]any, len(set))
	for k, v := range set {
		cp[k] = v
	}
	m.writes = append(m.writes, cp)
	return nil
}

func campaignProfile() *profile.Profile {
	prof := profile.Default()
	prof.ExportFoundry = true
	prof.Destination.Journal = "Campaign"
	prof.Destination.Folder = "Session Notes"
	return prof
}

func TestSync_CreatesNewEntry(t *testing.T) {
	store := newFakeStore()
	s := NewSyncer(store, campaignProfile())

	outcome, err := s.Sync(context.Background(), SyncRequest{
		Path: "Dragon.md",
		Name: "Dragon",
		HTML: "<p>fire</p>",
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !outcome.Created || outcome.RemoteID == "" {
		t.Errorf("outcome = %+v, want created with remote id", outcome)
	}

	entry := store.entries[outcome.RemoteID]
	if entry == nil {
		t.Fatal("entry not stored")
	}
	if entry.Journal != "Campaign" || entry.Folder != "Session Notes" {
		t.Errorf("destination = %q/%q, want profile defaults", entry.Journal, entry.Folder)
	}
	if entry.NotePath != "Dragon.md" || entry.Content != "<p>fire</p>" {
		t.Errorf("entry = %+v, want note path and content carried over", entry)
	}
}

func TestSync_UpdatesMatchingRecordInPlace(t *testing.T) {
	store := newFakeStore()
	id := store.seed(EntryRecord{
		Name: "Dragon", Journal: "Campaign", Folder: "Session Notes",
		UUID: "u-1", NotePath: "Dragon.md", Content: "<p>old</p>",
	})

	s := NewSyncer(store, campaignProfile())
	outcome, err := s.Sync(context.Background(), SyncRequest{
		Path: "Dragon.md", Name: "Dragon", UUID: "u-1", HTML: "<p>new</p>",
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if outcome.Created {
		t.Error("outcome.Created = true, want in-place update")
	}
	if outcome.RemoteID != id {
		t.Errorf("RemoteID = %q, want %q", outcome.RemoteID, id)
	}
	if len(store.order) != 1 {
		t.Errorf("store holds %d entries, want 1", len(store.order))
	}
	if store.entries[id].Content != "<p>new</p>" {
		t.Errorf("content = %q, want updated", store.entries[id].Content)
	}
}

func TestSync_DestinationChangeCreatesDuplicate(t *testing.T) {
	store := newFakeStore()
	oldID := store.seed(EntryRecord{
		Name: "Dragon", Journal: "Archive", Folder: "Old",
		UUID: "u-1", NotePath: "Dragon.md", Content: "<p>old</p>",
	})

	s := NewSyncer(store, campaignProfile())
	outcome, err := s.Sync(context.Background(), SyncRequest{
		Path: "Dragon.md", Name: "Dragon", UUID: "u-1", HTML: "<p>new</p>",
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !outcome.Created {
		t.Error("outcome.Created = false, want new record for changed destination")
	}
	if outcome.RemoteID == oldID {
		t.Error("moved entry reused the old remote id")
	}
	if len(store.order) != 2 {
		t.Fatalf("store holds %d entries, want duplicate kept", len(store.order))
	}
	if store.entries[oldID].Content != "<p>old</p>" {
		t.Error("old record was touched")
	}
}

func TestSync_MintsAndPersistsUUID(t *testing.T) {
	store := newFakeStore()
	meta := &fakeMeta{}
	prof := campaignProfile()
	prof.WriteUUID = true

	s := NewSyncer(store, prof, WithMetadata(meta))
	outcome, err := s.Sync(context.Background(), SyncRequest{
		Path: "Dragon.md", Name: "Dragon", HTML: "<p>x</p>",
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if outcome.MintedUUID == "" {
		t.Fatal("MintedUUID empty, want fresh identifier")
	}
	if len(meta.writes) != 2 {
		t.Fatalf("writes = %d, want uuid then export metadata", len(meta.writes))
	}
	if meta.writes[0][vault.KeyUUID] != outcome.MintedUUID {
		t.Errorf("first write = %v, want minted uuid persisted", meta.writes[0])
	}
	if _, ok := meta.writes[1][vault.KeyLastExport]; !ok {
		t.Errorf("second write = %v, want last export stamp", meta.writes[1])
	}
	if meta.writes[1][vault.KeyJournal] != "Campaign" {
		t.Errorf("second write = %v, want destination recorded", meta.writes[1])
	}
	if store.entries[outcome.RemoteID].UUID != outcome.MintedUUID {
		t.Error("uploaded entry does not carry the minted uuid")
	}
}

func TestSync_NoWriterSkipsMinting(t *testing.T) {
	store := newFakeStore()
	prof := campaignProfile()
	prof.WriteUUID = true

	s := NewSyncer(store, prof)
	outcome, err := s.Sync(context.Background(), SyncRequest{
		Path: "Dragon.md", Name: "Dragon", HTML: "<p>x</p>",
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if outcome.MintedUUID != "" {
		t.Errorf("MintedUUID = %q, want none without a metadata writer", outcome.MintedUUID)
	}
}

func TestSync_ReexportUpdatesSameRecord(t *testing.T) {
	store := newFakeStore()
	meta := &fakeMeta{}
	prof := campaignProfile()
	prof.WriteUUID = true
	s := NewSyncer(store, prof, WithMetadata(meta))

	first, err := s.Sync(context.Background(), SyncRequest{
		Path: "Dragon.md", Name: "Dragon", HTML: "<p>v1</p>",
	})
	if err != nil {
		t.Fatalf("first Sync() error = %v", err)
	}

	second, err := s.Sync(context.Background(), SyncRequest{
		Path: "Dragon.md", Name: "Dragon", UUID: first.MintedUUID, HTML: "<p>v2</p>",
	})
	if err != nil {
		t.Fatalf("second Sync() error = %v", err)
	}
	if second.Created {
		t.Error("re-export created a duplicate")
	}
	if second.RemoteID != first.RemoteID {
		t.Errorf("RemoteID = %q, want %q", second.RemoteID, first.RemoteID)
	}
	if len(store.order) != 1 {
		t.Errorf("store holds %d entries, want 1", len(store.order))
	}
}

func TestSync_UploadFailureKeepsWrittenMetadata(t *testing.T) {
	store := newFakeStore()
	store.uploadErr = errors.New("relay unreachable")
	meta := &fakeMeta{}
	prof := campaignProfile()
	prof.WriteUUID = true

	s := NewSyncer(store, prof, WithMetadata(meta))
	_, err := s.Sync(context.Background(), SyncRequest{
		Path: "Dragon.md", Name: "Dragon", HTML: "<p>x</p>",
	})
	if err == nil {
		t.Fatal("Sync() error = nil, want upload failure surfaced")
	}
	if len(meta.writes) != 1 {
		t.Fatalf("writes = %d, want the uuid write kept", len(meta.writes))
	}
	if _, ok := meta.writes[0][vault.KeyUUID]; !ok {
		t.Errorf("write = %v, want persisted uuid untouched by the failure", meta.writes[0])
	}
}

func TestSync_PushesAttachmentsBeforeEntry(t *testing.T) {
	store := newFakeStore()
	s := NewSyncer(store, campaignProfile())

	outcome, err := s.Sync(context.Background(), SyncRequest{
		Path: "Dragon.md", Name: "Dragon", HTML: "<p>x</p>",
		Uploads: []FileUpload{
			{RemotePath: "assets/uploads/map.png", Data: []byte{1, 2}},
			{RemotePath: "assets/uploads/lair.png", Data: []byte{3}},
		},
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if outcome.FilesPushed != 2 {
		t.Errorf("FilesPushed = %d, want 2", outcome.FilesPushed)
	}
	if len(store.files) != 2 {
		t.Errorf("files = %v, want both attachments stored", store.files)
	}
}

func TestSync_FileFailureAbortsNote(t *testing.T) {
	store := newFakeStore()
	store.fileErr = errors.New("disk full")
	s := NewSyncer(store, campaignProfile())

	_, err := s.Sync(context.Background(), SyncRequest{
		Path: "Dragon.md", Name: "Dragon", HTML: "<p>x</p>",
		Uploads: []FileUpload{{RemotePath: "a.png", Data: []byte{1}}},
	})
	if err == nil || !strings.Contains(err.Error(), "upload file") {
		t.Errorf("Sync() error = %v, want file upload failure", err)
	}
	if len(store.order) != 0 {
		t.Error("entry was uploaded although an attachment failed")
	}
}

func TestSync_QueryFailurePropagates(t *testing.T) {
	store := newFakeStore()
	store.queryErr = errors.New("boom")
	s := NewSyncer(store, campaignProfile())

	_, err := s.Sync(context.Background(), SyncRequest{Path: "a.md", Name: "a"})
	if err == nil || !strings.Contains(err.Error(), "query") {
		t.Errorf("Sync() error = %v, want query failure surfaced", err)
	}
}
