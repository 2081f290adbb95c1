// Package foundry talks to a Foundry VTT relay over a websocket channel
// and keeps locally exported notes and remote journal entries in sync.
package foundry

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrNotFound is returned by Query when no remote record matches the
	// identity.
	ErrNotFound = errors.New("remote entry not found")

	// ErrTimeout is returned when the relay does not answer a call within
	// the configured deadline.
	ErrTimeout = errors.New("relay call timed out")

	// ErrClosed is returned for calls issued on a closed connection.
	ErrClosed = errors.New("relay connection closed")
)

// Session is one Foundry world reachable through the relay.
type Session struct {
	ID    string `json:"id"`
	World string `json:"world"`
}

// Identity names a note for remote matching. UUID wins when set; the
// path and name pair is the fallback for notes without one.
type Identity struct {
	UUID string `json:"uuid,omitempty"`
	Path string `json:"path,omitempty"`
	Name string `json:"name,omitempty"`
}

// ByUUID reports whether the identity carries a minted identifier.
func (id Identity) ByUUID() bool {
	return id.UUID != ""
}

// EntryRecord is a journal entry as the remote store holds it. Raw is the
// record exactly as the relay sent it, kept so updates can patch fields
// without dropping server-side data the struct does not model.
type EntryRecord struct {
	ID      string
	Name    string
	Journal string
	Folder  string
	Content string

	// Identity flags stored under flags.markdowntofoundry.
	UUID     string
	NotePath string

	Raw json.RawMessage
}

// FileUpload is one attachment to push before its referencing entry.
type FileUpload struct {
	RemotePath string
	Data       []byte
}

// RemoteStore is the remote entry API the sync engine drives. *Client
// implements it against the relay; tests substitute an in-memory fake.
type RemoteStore interface {
	Query(ctx context.Context, id Identity) (*EntryRecord, error)
	Upload(ctx context.Context, entry *EntryRecord) (string, error)
	Update(ctx context.Context, remoteID string, entry *EntryRecord) error
	UploadFile(ctx context.Context, remotePath string, data []byte) error
	Entries(ctx context.Context) ([]EntryRecord, error)
}

// MetadataWriter persists identity metadata back into a note. *vault.Vault
// implements it.
type MetadataWriter interface {
	WriteMetadata(path string, set map[string]any) error
}
