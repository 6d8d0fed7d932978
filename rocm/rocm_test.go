package rocm

import (
	"context"
	"os"
	"testing"
)

// fakeRunner maps command names to canned output, recording every
// invocation.
type fakeRunner struct {
	outputs     map[string]string
	errs        map[string]error
	lookPathErr error
	calls       []string
}

func (f *fakeRunner) Run(_ context.Context, name string, _ ...string) (string, error) {
	f.calls = append(f.calls, name)
	return f.outputs[name], f.errs[name]
}

func (f *fakeRunner) RunInput(_ context.Context, _ string, name string, _ ...string) (string, error) {
	f.calls = append(f.calls, name)
	return f.outputs[name], f.errs[name]
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.lookPathErr != nil {
		return "", f.lookPathErr
	}
	return name, nil
}

// fakeEnumerator returns a fixed target list, counting calls.
type fakeEnumerator struct {
	targets []string
	err     error
	calls   int
}

func (f *fakeEnumerator) Enumerate(context.Context) ([]string, error) {
	f.calls++
	return f.targets, f.err
}

// fakeCompiler records the source and flags it was asked to compile.
type fakeCompiler struct {
	err    error
	calls  int
	source string
	flags  []string
}

func (f *fakeCompiler) Compile(_ context.Context, source string, flags ...string) error {
	f.calls++
	f.source = source
	f.flags = flags
	return f.err
}

// unsetenv clears key for the duration of the test, restoring the
// original value afterwards via t.Setenv's cleanup.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

// clearTargetEnv isolates a test from the caller's ROCm environment.
func clearTargetEnv(t *testing.T) {
	t.Helper()
	unsetenv(t, TargetsEnv)
	unsetenv(t, ROCmPathEnv)
}
