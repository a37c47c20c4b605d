package settings

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	r, w, err := os.Pipe()
	require.NoError(t, err)

	stdout := os.Stdout
	os.Stdout = w

	defer func() { os.Stdout = stdout }()

	done := make(chan []byte)

	go func() {
		out, _ := io.ReadAll(r)
		done <- out
	}()

	runErr := fn()

	require.NoError(t, w.Close())

	return string(<-done), runErr
}

func TestCmdSettingsShowsPolicy(t *testing.T) {
	out, err := captureStdout(t, func() error { return CmdSettings("v0.0.0", "abc123") })
	require.NoError(t, err)

	assert.Contains(t, out, "v0.0.0 (abc123)")
	assert.Contains(t, out, `"BlockPriorityPercentage": 5`)
	assert.Contains(t, out, `"UseCashAddr": false`)
	assert.Contains(t, out, `"StallTimeout"`)
}
