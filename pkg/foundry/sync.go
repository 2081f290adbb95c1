package foundry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/CePeU/MarkdownToFoundry-sub001/internal/logger"
	"github.com/CePeU/MarkdownToFoundry-sub001/internal/vault"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/profile"
)

// SyncRequest carries one note's transformed HTML to the remote store.
type SyncRequest struct {
	// Path and Name locate the note in the vault and double as the
	// fallback identity.
	Path string
	Name string

	// UUID is the identifier already persisted in the note, if any.
	UUID string

	// HTML is the pipeline output for the foundry target.
	HTML string

	// Journal and Folder override the profile destination when set.
	Journal string
	Folder  string

	// Uploads are attachments pushed before the entry referencing them.
	Uploads []FileUpload
}

// SyncOutcome reports what one sync did.
type SyncOutcome struct {
	RemoteID    string
	Created     bool
	MintedUUID  string
	FilesPushed int
	Duration    time.Duration
}

// Syncer walks a note through identification, upload and metadata
// writeback. Each note is one Sync call; a failed call leaves any metadata
// already written in place and is never retried internally.
type Syncer struct {
	store RemoteStore
	prof  *profile.Profile
	meta  MetadataWriter
}

// SyncOption configures a Syncer.
type SyncOption func(*Syncer)

// WithMetadata supplies the writer used to persist VTT_* keys. Without it
// no identifiers are minted and notes are matched by path and name only.
func WithMetadata(w MetadataWriter) SyncOption {
	return func(s *Syncer) { s.meta = w }
}

// NewSyncer creates a Syncer bound to one remote store and profile. A nil
// profile uses the default.
func NewSyncer(store RemoteStore, prof *profile.Profile, opts ...SyncOption) *Syncer {
	if prof == nil {
		prof = profile.Default()
	}
	s := &Syncer{store: store, prof: prof.Clone()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync pushes one note. Matching records are updated in place; a note
// whose destination changed gets a fresh record and the old one stays
// behind until cleaned up manually.
func (s *Syncer) Sync(ctx context.Context, req SyncRequest) (*SyncOutcome, error) {
	start := time.Now()
	outcome := &SyncOutcome{}

	journal := req.Journal
	if journal == "" {
		journal = s.prof.Destination.Journal
	}
	folder := req.Folder
	if folder == "" {
		folder = s.prof.Destination.Folder
	}

	identity := Identity{UUID: req.UUID, Path: req.Path, Name: req.Name}
	if !identity.ByUUID() && s.prof.WriteUUID && s.meta != nil {
		minted := uuid.Must(uuid.NewV4()).String()
		if err := s.meta.WriteMetadata(req.Path, map[string]any{vault.KeyUUID: minted}); err != nil {
			return outcome, fmt.Errorf("uuid writeback for %q: %w", req.Path, err)
		}
		identity.UUID = minted
		outcome.MintedUUID = minted
		logger.Debug("identifier minted", "note", req.Path, "uuid", minted)
	}

	for _, f := range req.Uploads {
		if err := s.store.UploadFile(ctx, f.RemotePath, f.Data); err != nil {
			return outcome, fmt.Errorf("upload file %q: %w", f.RemotePath, err)
		}
		outcome.FilesPushed++
	}

	entry := &EntryRecord{
		Name:     req.Name,
		Journal:  journal,
		Folder:   folder,
		Content:  req.HTML,
		UUID:     identity.UUID,
		NotePath: req.Path,
	}

	existing, err := s.store.Query(ctx, identity)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return outcome, fmt.Errorf("query %q: %w", req.Name, err)
	}

	if existing != nil && existing.Journal == journal && existing.Folder == folder {
		if err := s.store.Update(ctx, existing.ID, entry); err != nil {
			return outcome, fmt.Errorf("update %q: %w", req.Name, err)
		}
		outcome.RemoteID = existing.ID
		logger.Debug("entry updated in place", "note", req.Path, "remote", existing.ID)
	} else {
		if existing != nil {
			logger.Warn("destination changed, creating a new entry",
				"note", req.Path,
				"old_journal", existing.Journal, "old_folder", existing.Folder,
				"journal", journal, "folder", folder)
		}
		remoteID, err := s.store.Upload(ctx, entry)
		if err != nil {
			return outcome, fmt.Errorf("create %q: %w", req.Name, err)
		}
		outcome.RemoteID = remoteID
		outcome.Created = true
		logger.Debug("entry created", "note", req.Path, "remote", remoteID)
	}

	if s.prof.WriteUUID && s.meta != nil {
		set := map[string]any{
			vault.KeyLastExport: time.Now().UTC().Format(time.RFC3339),
			vault.KeyJournal:    journal,
			vault.KeyFolder:     folder,
		}
		if err := s.meta.WriteMetadata(req.Path, set); err != nil {
			logger.Warn("export metadata writeback failed", "note", req.Path, "error", err)
		}
	}

	outcome.Duration = time.Since(start)
	return outcome, nil
}
