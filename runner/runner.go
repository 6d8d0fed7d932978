package runner

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ToolError reports an external tool that was found and executed but
// exited with a failure status. A tool that cannot be located at all is
// not a ToolError; callers treat that case separately.
type ToolError struct {
	Tool   string
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Runner executes external commands on some host. The two
// implementations are Local (os/exec) and SSH; tests substitute fakes
// so no real subprocess is ever spawned.
type Runner interface {
	// Run executes name with args and returns its combined output.
	// A non-zero exit status is returned as a *ToolError.
	Run(ctx context.Context, name string, args ...string) (string, error)

	// RunInput is Run with input piped to the command's stdin.
	RunInput(ctx context.Context, input, name string, args ...string) (string, error)

	// LookPath reports where name resolves on the target host, or an
	// error if it cannot be located.
	LookPath(name string) (string, error)
}

// Local runs commands on the calling host.
type Local struct{}

func (Local) Run(ctx context.Context, name string, args ...string) (string, error) {
	return runLocal(ctx, "", name, args...)
}

func (Local) RunInput(ctx context.Context, input, name string, args ...string) (string, error) {
	return runLocal(ctx, input, name, args...)
}

func (Local) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func runLocal(ctx context.Context, input, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), &ToolError{Tool: name, Output: string(output), Err: err}
	}
	return string(output), nil
}
