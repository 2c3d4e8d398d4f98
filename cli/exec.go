package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Colors used for messages on a terminal.
const (
	DefaultColor = "\x1b[0m"
	ErrorColor   = "\x1b[31m"
)

// Execute runs the command line and returns the process exit status.
func Execute(ctx context.Context, deps Deps, args []string) int {
	cmd := NewRootCommand(deps)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(deps.Stderr, decorateError(deps.Stderr, err.Error()))
		return 1
	}
	return 0
}

// decorateError colors s red when w is a terminal.
func decorateError(w io.Writer, s string) string {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return s
	}
	return ErrorColor + s + DefaultColor
}
