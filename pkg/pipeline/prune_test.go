package pipeline

import (
	"strings"
	"testing"
)

func TestPruneEmpty(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantKept    string
		wantGone    string
		wantRemoved int
	}{
		{
			name:        "empty_paragraph",
			in:          "<p></p><p>kept</p>",
			wantKept:    "<p>kept</p>",
			wantGone:    "<p></p>",
			wantRemoved: 1,
		},
		{
			name:        "whitespace_only",
			in:          "<div> \n\t </div>",
			wantGone:    "<div",
			wantRemoved: 1,
		},
		{
			name:        "line_break_only",
			in:          "<p><br/></p>",
			wantGone:    "<p>",
			wantRemoved: 1,
		},
		{
			name:        "nested_empties_cascade",
			in:          "<div><p></p><span></span></div>",
			wantGone:    "<div",
			wantRemoved: 3,
		},
		{
			name:        "image_protects_parent",
			in:          `<p><img src="map.png"/></p>`,
			wantKept:    "<img",
			wantRemoved: 0,
		},
		{
			name:        "rule_survives",
			in:          "<hr/>",
			wantKept:    "<hr/>",
			wantRemoved: 0,
		},
		{
			name:        "empty_table_cell_kept",
			in:          "<table><tbody><tr><td></td><td>x</td></tr></tbody></table>",
			wantKept:    "<td></td>",
			wantRemoved: 0,
		},
		{
			name:        "empty_list_removed",
			in:          "<ul><li></li><li> </li></ul>",
			wantGone:    "<ul",
			wantRemoved: 3,
		},
		{
			name:        "empty_anchor_removed",
			in:          `<p>x<a href="places/Lair.md"></a></p>`,
			wantKept:    "<p>x</p>",
			wantGone:    "<a",
			wantRemoved: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := runPipeline(t, nil, tt.in)
			if tt.wantKept != "" && !strings.Contains(result.HTML, tt.wantKept) {
				t.Errorf("Run() = %q, want %q kept", result.HTML, tt.wantKept)
			}
			if tt.wantGone != "" && strings.Contains(result.HTML, tt.wantGone) {
				t.Errorf("Run() = %q, want %q pruned", result.HTML, tt.wantGone)
			}
			if result.Stats.EmptyElementRemovals != tt.wantRemoved {
				t.Errorf("EmptyElementRemovals = %d, want %d",
					result.Stats.EmptyElementRemovals, tt.wantRemoved)
			}
		})
	}
}
