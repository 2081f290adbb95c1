// Package report turns batch export results into machine-readable run
// reports. JSON and YAML collect all records into one document, JSONL
// emits one record per line so long runs can be tailed or streamed.
package report

import (
	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/export"
)

// Record statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Record is the report representation of a single note export.
type Record struct {
	Path   string `json:"path" yaml:"path"`
	Name   string `json:"name" yaml:"name"`
	Status string `json:"status" yaml:"status"`

	// JournalID and Action are set when the note reached the remote store.
	JournalID   string `json:"journal_id,omitempty" yaml:"journal_id,omitempty"`
	Action      string `json:"action,omitempty" yaml:"action,omitempty"`
	FilesPushed int    `json:"files_pushed,omitempty" yaml:"files_pushed,omitempty"`

	OutputBytes int   `json:"output_bytes" yaml:"output_bytes"`
	DurationMS  int64 `json:"duration_ms" yaml:"duration_ms"`

	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// FromResult flattens one export result into a Record.
func FromResult(res *export.Result) Record {
	rec := Record{
		Path:        res.Path,
		Name:        res.Name,
		Status:      StatusOK,
		OutputBytes: len(res.HTML),
		DurationMS:  res.TotalDuration.Milliseconds(),
	}

	if res.Error != nil {
		rec.Status = StatusFailed
		rec.Error = res.Error.Error()
	}

	if res.Remote != nil {
		rec.JournalID = res.Remote.RemoteID
		rec.Action = "updated"
		if res.Remote.Created {
			rec.Action = "created"
		}
		rec.FilesPushed = res.Remote.FilesPushed
	}

	for _, w := range res.Warnings {
		rec.Warnings = append(rec.Warnings, w.String())
	}

	return rec
}

// FromBatch flattens every result of a batch, preserving order.
func FromBatch(batch *export.BatchReport) []Record {
	recs := make([]Record, 0, len(batch.Results))
	for _, res := range batch.Results {
		recs = append(recs, FromResult(res))
	}
	return recs
}
