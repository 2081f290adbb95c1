package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/CePeU/MarkdownToFoundry-sub001/internal/vault"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/foundry"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/pipeline"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/profile"
)

// Artifact is one note's transformed output on its way to the targets.
// The foundry target records its sync outcome on it.
type Artifact struct {
	Note   *vault.Note
	Result *pipeline.Result

	// Remote is filled by the foundry target after a successful sync.
	Remote *foundry.SyncOutcome
}

// Target delivers a transformed note somewhere.
type Target interface {
	// Name identifies the target.
	Name() profile.Target

	// Deliver hands the artifact over. The wrapped output for the
	// target comes from the artifact's pipeline result.
	Deliver(ctx context.Context, a *Artifact) error
}

// clipboardTarget streams wrapped HTML into an io.Writer. The OS
// clipboard itself stays outside the module.
type clipboardTarget struct {
	w io.Writer
}

func (t *clipboardTarget) Name() profile.Target { return profile.TargetClipboard }

func (t *clipboardTarget) Deliver(_ context.Context, a *Artifact) error {
	if _, err := io.WriteString(t.w, a.Result.For(profile.TargetClipboard)); err != nil {
		return fmt.Errorf("clipboard write: %w", err)
	}
	return nil
}

// fileTarget writes wrapped HTML to disk, mirroring the note's vault
// path with an .html extension.
type fileTarget struct {
	vaultRoot string
	outputDir string
}

func (t *fileTarget) Name() profile.Target { return profile.TargetFile }

func (t *fileTarget) Deliver(_ context.Context, a *Artifact) error {
	rel := strings.TrimSuffix(a.Note.Path, filepath.Ext(a.Note.Path)) + ".html"

	base := t.vaultRoot
	if t.outputDir != "" {
		base = t.outputDir
	}
	full := filepath.Join(base, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("file target: %w", err)
	}
	if err := os.WriteFile(full, []byte(a.Result.For(profile.TargetFile)), 0o644); err != nil {
		return fmt.Errorf("file target: %w", err)
	}
	return nil
}

// foundryTarget pushes the note through the sync engine. Pending image
// uploads recorded by the pipeline are materialized from the vault first.
type foundryTarget struct {
	syncer    *foundry.Syncer
	resources pipeline.ResourceLoader
}

func (t *foundryTarget) Name() profile.Target { return profile.TargetFoundry }

func (t *foundryTarget) Deliver(ctx context.Context, a *Artifact) error {
	uploads := make([]foundry.FileUpload, 0, len(a.Result.PendingUploads))
	for _, u := range a.Result.PendingUploads {
		data, err := t.resources.Resource(u.VaultPath)
		if err != nil {
			return fmt.Errorf("attachment %q: %w", u.VaultPath, err)
		}
		uploads = append(uploads, foundry.FileUpload{
			RemotePath: u.RemotePath,
			Data:       data,
		})
	}

	outcome, err := t.syncer.Sync(ctx, foundry.SyncRequest{
		Path:    a.Note.Path,
		Name:    a.Note.Name,
		UUID:    a.Note.UUID(),
		HTML:    a.Result.For(profile.TargetFoundry),
		Uploads: uploads,
	})
	if err != nil {
		return err
	}
	a.Remote = outcome
	return nil
}
