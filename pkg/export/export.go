package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/CePeU/MarkdownToFoundry-sub001/internal/logger"
	"github.com/CePeU/MarkdownToFoundry-sub001/internal/renderer"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/foundry"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/pipeline"
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/profile"
)

// Version returns the module version consumers pulled via go get.
// Returns "(devel)" when built from source without version info.
func Version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.Main.Version
	}
	return "(unknown)"
}

// TargetStatus records one target's delivery attempt.
type TargetStatus struct {
	Target   profile.Target
	Duration time.Duration
	Err      error
}

// Result represents one note's export.
type Result struct {
	Path string
	Name string

	// HTML is the transformed document before per-target wrapping.
	HTML string

	// Remote is set when the foundry target synced the note.
	Remote *foundry.SyncOutcome

	// Statuses lists every delivery attempt in execution order.
	Statuses []TargetStatus

	Warnings []pipeline.Warning
	Stats    *pipeline.Stats

	RenderDuration time.Duration
	TotalDuration  time.Duration

	// Error aggregates everything that failed for this note. Deliveries
	// to the other targets still happened.
	Error error
}

// Exporter is the main entry point for exporting vault notes.
type Exporter struct {
	cfg     Config
	prof    *profile.Profile
	rend    renderer.Renderer
	pipe    *pipeline.Pipeline
	syncer  *foundry.Syncer
	targets []Target
}

// New creates an Exporter. The vault is required; the profile, renderer
// and remote wiring are injected or defaulted.
func New(opts ...Option) (*Exporter, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Vault == nil {
		return nil, errors.New("export: vault is required")
	}

	prof := cfg.Profile
	if prof == nil {
		prof = profile.Default()
	}
	prof = prof.Clone()
	if verrs := prof.Validate(); len(verrs) > 0 {
		return nil, fmt.Errorf("export: profile %q invalid: %s", prof.Name, verrs[0].Error())
	}

	rend := cfg.Renderer
	if rend == nil {
		rend = renderer.New()
	}

	e := &Exporter{
		cfg:  cfg,
		prof: prof,
		rend: rend,
		pipe: pipeline.New(prof,
			pipeline.WithResources(cfg.Vault),
			pipeline.WithLinks(cfg.Vault),
		),
	}

	// Local targets deliver first so a remote failure never blocks them.
	if prof.ExportClipboard {
		if cfg.Clipboard == nil {
			return nil, errors.New("export: clipboard target enabled but no writer wired")
		}
		e.targets = append(e.targets, &clipboardTarget{w: cfg.Clipboard})
	}
	if prof.ExportFile {
		e.targets = append(e.targets, &fileTarget{
			vaultRoot: cfg.Vault.Root(),
			outputDir: cfg.OutputDir,
		})
	}
	if prof.ExportFoundry {
		if cfg.Store == nil {
			return nil, errors.New("export: foundry target enabled but no store wired")
		}
		meta := cfg.Meta
		if meta == nil {
			meta = cfg.Vault
		}
		e.syncer = foundry.NewSyncer(cfg.Store, prof, foundry.WithMetadata(meta))
		e.targets = append(e.targets, &foundryTarget{
			syncer:    e.syncer,
			resources: cfg.Vault,
		})
	}

	return e, nil
}

// Profile returns the snapshot the exporter runs with.
func (e *Exporter) Profile() *profile.Profile { return e.prof }

// Export renders, transforms and delivers a single note. The result is
// never nil; per-target failures land in its Error while the remaining
// targets still deliver.
func (e *Exporter) Export(ctx context.Context, notePath string) *Result {
	start := time.Now()
	res := &Result{Path: notePath}
	defer func() { res.TotalDuration = time.Since(start) }()

	note, ok := e.cfg.Vault.Note(notePath)
	if !ok {
		res.Error = fmt.Errorf("note %q not found in vault", notePath)
		return res
	}
	res.Name = note.Name

	renderStart := time.Now()
	html, err := e.rend.Render(ctx, note.Body)
	res.RenderDuration = time.Since(renderStart)
	if err != nil {
		res.Error = fmt.Errorf("render %s: %w", note.Path, err)
		return res
	}

	pres := e.pipe.Run(ctx, html, pipeline.Note{
		Path:        note.Path,
		Name:        note.Name,
		Frontmatter: note.Frontmatter,
	})
	res.HTML = pres.HTML
	res.Warnings = pres.Warnings
	res.Stats = pres.Stats
	if pres.Error != nil {
		res.Error = pres.Error
		return res
	}

	artifact := &Artifact{Note: note, Result: pres}
	var errs []error
	for _, t := range e.targets {
		tStart := time.Now()
		terr := t.Deliver(ctx, artifact)
		res.Statuses = append(res.Statuses, TargetStatus{
			Target:   t.Name(),
			Duration: time.Since(tStart),
			Err:      terr,
		})
		if terr != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), terr))
		}
	}
	res.Remote = artifact.Remote
	res.Error = errors.Join(errs...)

	logger.Debug("note exported",
		"note", note.Path,
		"targets", len(res.Statuses),
		"warnings", len(res.Warnings),
		"error", res.Error)
	return res
}

// ExportMany exports multiple notes concurrently. Results arrive in
// completion order; the channel closes when every note is done.
func (e *Exporter) ExportMany(ctx context.Context, notePaths []string, concurrency int) <-chan *Result {
	if concurrency < 1 {
		concurrency = e.cfg.Concurrency
	}
	if concurrency < 1 {
		concurrency = 1
	}

	results := make(chan *Result, len(notePaths))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, p := range notePaths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results <- e.Export(ctx, path)
		}(p)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// BatchReport summarizes a whole export run.
type BatchReport struct {
	// Results are ordered by note path.
	Results []*Result

	Exported int
	Failed   int

	// Relink reports the post-batch link rewrite when auto-relink ran.
	Relink    *foundry.RelinkReport
	RelinkErr error

	Duration time.Duration
}

// ExportBatch exports the given notes and, when the profile asks for it
// and at least one note reached the remote store, relinks cross-note
// references afterwards.
func (e *Exporter) ExportBatch(ctx context.Context, notePaths []string) *BatchReport {
	start := time.Now()
	report := &BatchReport{}

	synced := false
	for res := range e.ExportMany(ctx, notePaths, e.cfg.Concurrency) {
		report.Results = append(report.Results, res)
		if res.Error != nil {
			report.Failed++
			continue
		}
		report.Exported++
		if res.Remote != nil {
			synced = true
		}
	}
	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Path < report.Results[j].Path
	})

	if e.prof.AutoRelink && e.syncer != nil && synced {
		report.Relink, report.RelinkErr = e.syncer.Relink(ctx)
	}

	report.Duration = time.Since(start)
	logger.Debug("batch finished",
		"notes", len(report.Results),
		"exported", report.Exported,
		"failed", report.Failed,
		"duration", report.Duration)
	return report
}

// Relink rewrites cross-note links across every uploaded journal entry.
func (e *Exporter) Relink(ctx context.Context) (*foundry.RelinkReport, error) {
	if e.syncer == nil {
		return nil, errors.New("export: foundry target is not wired")
	}
	return e.syncer.Relink(ctx)
}

// Close releases the remote connection when the exporter owns one.
func (e *Exporter) Close() error {
	if c, ok := e.cfg.Store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
