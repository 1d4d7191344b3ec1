package toolexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vk/connectome/internal/ctxlog"
)

// Recorder is an Executor that records commands instead of running them.
// With Materialize set it also creates every declared output file so that
// downstream existence checks pass.
type Recorder struct {
	Materialize bool
	// Fail makes Run return an error for commands whose Name matches.
	Fail map[string]error
	// Contents is written to the outputs of commands whose Name matches.
	// Other outputs get a one-line placeholder.
	Contents map[string]string

	mu       sync.Mutex
	commands []Command
}

// NewRecorder creates a recording executor.
func NewRecorder(materialize bool) *Recorder {
	return &Recorder{Materialize: materialize}
}

// Run records cmd.
func (r *Recorder) Run(ctx context.Context, cmd Command) error {
	ctxlog.FromContext(ctx).Info("📝 Would run command.", "command", cmd.String())

	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	failErr := r.Fail[cmd.Name]
	content, ok := r.Contents[cmd.Name]
	r.mu.Unlock()

	if failErr != nil {
		return &RunError{Command: cmd.String(), ExitCode: 1, Err: failErr}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if !r.Materialize {
		return nil
	}
	if !ok {
		content = fmt.Sprintf("produced by %s\n", cmd.Name)
	}
	for _, out := range append(append([]string(nil), cmd.Outputs...), cmd.Stdout) {
		if out == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(out, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Commands returns a copy of the recorded commands in call order.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.commands...)
}

// Names returns the program names of the recorded commands in call order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.commands))
	for i, c := range r.commands {
		names[i] = c.Name
	}
	return names
}
