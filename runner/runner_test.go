package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRun(t *testing.T) {
	out, err := Local{}.Run(context.Background(), "sh", "-c", "printf hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestLocalRunNonZeroExit(t *testing.T) {
	out, err := Local{}.Run(context.Background(), "sh", "-c", "echo oops; exit 3")
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, "sh", toolErr.Tool)
	assert.Contains(t, toolErr.Output, "oops")
	assert.Contains(t, out, "oops")
}

func TestLocalRunInput(t *testing.T) {
	out, err := Local{}.RunInput(context.Background(), "piped\n", "cat")
	require.NoError(t, err)
	assert.Equal(t, "piped\n", out)
}

func TestLocalLookPath(t *testing.T) {
	_, err := Local{}.LookPath("sh")
	assert.NoError(t, err)

	_, err = Local{}.LookPath("definitely-not-a-real-tool")
	assert.Error(t, err)
}

func TestShellCommandQuoting(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"cat", nil, "'cat'"},
		{"printf", []string{"%s", "two words"}, "'printf' '%s' 'two words'"},
		{"echo", []string{""}, "'echo' ''"},
		{"echo", []string{"it's"}, `'echo' 'it'\''s'`},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, shellCommand(tc.name, tc.args))
	}
}
