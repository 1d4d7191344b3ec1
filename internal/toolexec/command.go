package toolexec

import (
	"context"
	"strings"
)

// Command is one fully rendered external program invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; it must exist before Run is called.
	Dir string
	// Env holds KEY=VALUE pairs appended to the parent environment.
	Env []string
	// LogPath receives combined stdout and stderr. Empty disables the log.
	LogPath string
	// Stdout, when set, receives the program's standard output instead of LogPath.
	Stdout string
	// Outputs lists the files the program is expected to produce.
	Outputs []string
}

// String renders the command line the way a user would type it in a shell.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	line := strings.Join(parts, " ")
	if c.Stdout != "" {
		line += " > " + quote(c.Stdout)
	}
	return line
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r == '/' || r == '.' || r == '_' || r == '-' || r == '=' || r == ',' || r == ':' ||
			r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Executor runs commands.
type Executor interface {
	Run(ctx context.Context, cmd Command) error
}
