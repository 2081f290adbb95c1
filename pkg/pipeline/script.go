package pipeline

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/dop251/goja"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// applyScripts runs the profile's script transforms in order, each one in a
// fresh interpreter. The script sees the current HTML as the global `html`
// and a small `api` object; its completion value (or an `output`
// assignment) becomes the next stage input. A transform that throws, times
// out or produces a non-string leaves the HTML exactly as it was before
// that transform.
func (p *Pipeline) applyScripts(ctx context.Context, current string, note Note, result *Result) string {
	for _, transform := range p.profile.Scripts {
		if ctx.Err() != nil {
			return current
		}

		prog, err := goja.Compile(transform.Name, transform.Source, false)
		if err != nil {
			result.AddWarning(stageScript, "script does not compile, transform skipped", transform.Name)
			continue
		}

		timeout := p.scriptTimeout
		if transform.TimeoutMillis > 0 {
			timeout = time.Duration(transform.TimeoutMillis) * time.Millisecond
		}

		out, err := p.runScript(ctx, prog, timeout, current, note)
		if err != nil {
			result.AddWarning(stageScript, err.Error(), transform.Name)
			result.Stats.ScriptsReverted++
			continue
		}
		current = out
		result.Stats.ScriptsApplied++
	}
	return current
}

// runScript executes one compiled transform against the current HTML and
// returns its completion value. The interpreter is interrupted once the
// wall clock budget is spent or the context is cancelled.
func (p *Pipeline) runScript(ctx context.Context, prog *goja.Program, timeout time.Duration, current string, note Note) (string, error) {
	vm := goja.New()
	if err := bindScriptAPI(vm, current, note); err != nil {
		return "", err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-time.After(timeout):
			vm.Interrupt("time budget spent")
		case <-ctx.Done():
			vm.Interrupt("cancelled")
		case <-done:
		}
	}()

	value, err := vm.RunProgram(prog)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return "", errors.New("script interrupted, transform reverted")
		}
		var exception *goja.Exception
		if errors.As(err, &exception) {
			return "", errors.New("script threw, transform reverted: " + exception.Value().String())
		}
		return "", errors.New("script failed, transform reverted: " + err.Error())
	}

	if out, ok := exportString(value); ok {
		return out, nil
	}
	// A script may assign its result instead of ending on an expression.
	if out, ok := exportString(vm.Get("output")); ok {
		return out, nil
	}
	return "", errors.New("script result is not a string, transform reverted")
}

func exportString(v goja.Value) (string, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", false
	}
	s, ok := v.Export().(string)
	return s, ok
}

// bindScriptAPI installs the globals a transform may use: the HTML under
// rewrite and the api helpers.
func bindScriptAPI(vm *goja.Runtime, current string, note Note) error {
	if err := vm.Set("html", current); err != nil {
		return errors.New("script environment setup failed")
	}

	frontmatter := map[string]any{}
	for k, v := range note.Frontmatter {
		frontmatter[k] = v
	}

	api := vm.NewObject()
	if err := api.Set("createId", func() string { return NewID() }); err != nil {
		return errors.New("script environment setup failed")
	}
	if err := api.Set("frontMatter", func() map[string]any { return frontmatter }); err != nil {
		return errors.New("script environment setup failed")
	}
	if err := vm.Set("api", api); err != nil {
		return errors.New("script environment setup failed")
	}
	return nil
}

// NewID returns a fresh 16 character alphanumeric token in the format
// Foundry uses for document ids.
func NewID() string {
	b := make([]byte, 16)
	rand.Read(b)
	for i, v := range b {
		b[i] = idAlphabet[int(v)%len(idAlphabet)]
	}
	return string(b)
}
