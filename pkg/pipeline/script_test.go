package pipeline

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/CePeU/MarkdownToFoundry-sub001/pkg/profile"
)

func TestApplyScripts_ChainInOrder(t *testing.T) {
	prof := profile.Default()
	prof.Scripts = []profile.ScriptTransform{
		{Name: "first", Source: "html + '<b>1</b>'"},
		{Name: "second", Source: "html + '<b>2</b>'"},
	}

	result := runPipeline(t, prof, "<p>x</p>")

	if !strings.HasSuffix(result.HTML, "<b>1</b><b>2</b>") {
		t.Errorf("Run() = %q, want both suffixes in order", result.HTML)
	}
	if result.Stats.ScriptsApplied != 2 {
		t.Errorf("ScriptsApplied = %d, want 2", result.Stats.ScriptsApplied)
	}
}

func TestApplyScripts_ThrowRevertsTransform(t *testing.T) {
	prof := profile.Default()
	prof.Scripts = []profile.ScriptTransform{
		{Name: "boom", Source: "throw new Error('boom')"},
		{Name: "stamp", Source: "html + '<!-- ok -->'"},
	}

	result := runPipeline(t, prof, "<p>x</p>")

	if !strings.Contains(result.HTML, "<p>x</p>") {
		t.Errorf("Run() = %q, want original HTML preserved", result.HTML)
	}
	if !strings.HasSuffix(result.HTML, "<!-- ok -->") {
		t.Errorf("Run() = %q, want later transform still applied", result.HTML)
	}
	if result.Stats.ScriptsReverted != 1 || result.Stats.ScriptsApplied != 1 {
		t.Errorf("reverted=%d applied=%d, want 1 and 1",
			result.Stats.ScriptsReverted, result.Stats.ScriptsApplied)
	}
	if !result.HasWarnings() {
		t.Fatal("Run() emitted no warning for throwing script")
	}
	w := result.Warnings[0]
	if w.Stage != stageScript || !strings.Contains(w.Message, "threw") {
		t.Errorf("warning = %+v, want script throw reported", w)
	}
}

func TestApplyScripts_NonStringResultReverts(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"number", "42"},
		{"object", "({a: 1})"},
		{"undefined", "var x = html;"},
		{"null", "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prof := profile.Default()
			prof.Scripts = []profile.ScriptTransform{{Name: tt.name, Source: tt.source}}

			result := runPipeline(t, prof, "<p>x</p>")

			if result.HTML != "<p>x</p>" {
				t.Errorf("Run() = %q, want untouched HTML", result.HTML)
			}
			if result.Stats.ScriptsReverted != 1 {
				t.Errorf("ScriptsReverted = %d, want 1", result.Stats.ScriptsReverted)
			}
		})
	}
}

func TestApplyScripts_EmptyStringIsValid(t *testing.T) {
	prof := profile.Default()
	prof.Scripts = []profile.ScriptTransform{{Name: "clear", Source: "''"}}

	result := runPipeline(t, prof, "<p>x</p>")

	if result.HTML != "" {
		t.Errorf("Run() = %q, want empty output accepted", result.HTML)
	}
	if result.Stats.ScriptsApplied != 1 {
		t.Errorf("ScriptsApplied = %d, want 1", result.Stats.ScriptsApplied)
	}
	if result.HasWarnings() {
		t.Errorf("Run() warnings = %v, want none", result.Warnings)
	}
}

func TestApplyScripts_OutputAssignment(t *testing.T) {
	prof := profile.Default()
	prof.Scripts = []profile.ScriptTransform{
		{Name: "assign", Source: "output = html + '<i>done</i>'; undefined"},
	}

	result := runPipeline(t, prof, "<p>x</p>")

	if !strings.HasSuffix(result.HTML, "<i>done</i>") {
		t.Errorf("Run() = %q, want output assignment honored", result.HTML)
	}
	if result.Stats.ScriptsApplied != 1 {
		t.Errorf("ScriptsApplied = %d, want 1", result.Stats.ScriptsApplied)
	}
}

func TestApplyScripts_TimeoutInterrupts(t *testing.T) {
	prof := profile.Default()
	prof.Scripts = []profile.ScriptTransform{
		{Name: "spin", Source: "while(true){}", TimeoutMillis: 50},
	}

	result := runPipeline(t, prof, "<p>x</p>")

	if result.HTML != "<p>x</p>" {
		t.Errorf("Run() = %q, want HTML untouched after interrupt", result.HTML)
	}
	if result.Stats.ScriptsReverted != 1 {
		t.Errorf("ScriptsReverted = %d, want 1", result.Stats.ScriptsReverted)
	}
	if !result.HasWarnings() || !strings.Contains(result.Warnings[0].Message, "interrupted") {
		t.Errorf("warnings = %v, want interrupt reported", result.Warnings)
	}
}

func TestApplyScripts_CreateID(t *testing.T) {
	prof := profile.Default()
	prof.Scripts = []profile.ScriptTransform{{Name: "id", Source: "api.createId()"}}

	result := runPipeline(t, prof, "<p>x</p>")

	if !regexp.MustCompile(`^[A-Za-z0-9]{16}$`).MatchString(result.HTML) {
		t.Errorf("Run() = %q, want 16 character alphanumeric id", result.HTML)
	}
}

func TestApplyScripts_FrontmatterAccess(t *testing.T) {
	prof := profile.Default()
	prof.Scripts = []profile.ScriptTransform{
		{Name: "title", Source: "html + '<h1>' + api.frontMatter()['title'] + '</h1>'"},
	}

	note := Note{
		Path:        "Dragon.md",
		Name:        "Dragon",
		Frontmatter: map[string]any{"title": "The Red Dragon"},
	}
	result := New(prof).Run(context.Background(), "<p>x</p>", note)

	if !strings.Contains(result.HTML, "<h1>The Red Dragon</h1>") {
		t.Errorf("Run() = %q, want frontmatter value injected", result.HTML)
	}
}

func TestNewID_Format(t *testing.T) {
	seen := make(map[string]bool)
	re := regexp.MustCompile(`^[A-Za-z0-9]{16}$`)
	for i := 0; i < 100; i++ {
		id := NewID()
		if !re.MatchString(id) {
			t.Fatalf("NewID() = %q, want 16 alphanumeric characters", id)
		}
		if seen[id] {
			t.Fatalf("NewID() repeated %q", id)
		}
		seen[id] = true
	}
}
