package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/vk/connectome/internal/ctxlog"
)

// tailSize bounds how much output a RunError carries.
const tailSize = 2048

// RunError reports a program that could not be started or exited non-zero.
type RunError struct {
	Command  string
	ExitCode int
	Tail     string
	Err      error
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("command %q failed", e.Command)
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("%s with exit code %d", msg, e.ExitCode)
	}
	switch {
	case e.Tail != "":
		msg += ": " + e.Tail
	case e.Err != nil:
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RunError) Unwrap() error { return e.Err }

// Local runs commands as child processes of the current process.
type Local struct{}

// NewLocal creates an executor that spawns real processes.
func NewLocal() *Local {
	return &Local{}
}

// Run executes cmd and waits for it. Cancelling ctx kills the process.
func (l *Local) Run(ctx context.Context, cmd Command) (err error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Executing command.", "command", cmd.String(), "dir", cmd.Dir)

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)

	tail := &tailBuffer{limit: tailSize}
	var sinks []io.Writer
	sinks = append(sinks, tail)

	if cmd.LogPath != "" {
		logFile, createErr := os.Create(cmd.LogPath)
		if createErr != nil {
			return fmt.Errorf("failed to create command log: %w", createErr)
		}
		defer func() {
			err = errors.Join(err, logFile.Close())
		}()
		fmt.Fprintf(logFile, "$ %s\n", cmd.String())
		sinks = append(sinks, logFile)
	}
	combined := io.MultiWriter(sinks...)
	c.Stderr = combined
	c.Stdout = combined

	if cmd.Stdout != "" {
		outFile, createErr := os.Create(cmd.Stdout)
		if createErr != nil {
			return fmt.Errorf("failed to create stdout file: %w", createErr)
		}
		defer func() {
			err = errors.Join(err, outFile.Close())
		}()
		c.Stdout = outFile
	}

	if runErr := c.Run(); runErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			runErr = errors.Join(runErr, ctxErr)
		}
		return &RunError{
			Command:  cmd.String(),
			ExitCode: exitCode,
			Tail:     string(bytes.TrimSpace(tail.Bytes())),
			Err:      runErr,
		}
	}

	logger.Debug("Command finished.", "command", cmd.Name, "output", string(bytes.TrimSpace(tail.Bytes())))
	return nil
}

// tailBuffer keeps only the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) Bytes() []byte { return t.buf }
