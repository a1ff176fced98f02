package helpers

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSCommandRunner_CommandExists(t *testing.T) {
	runner := NewOSCommandRunner()

	t.Run("existing command", func(t *testing.T) {
		assert.True(t, runner.CommandExists("sh"))
	})

	t.Run("missing command", func(t *testing.T) {
		assert.False(t, runner.CommandExists("definitely-not-a-real-command-xyz"))
	})

	t.Run("result is cached", func(t *testing.T) {
		runner.CommandExists("sh")
		cached, ok := runner.commandCache.Load("sh")
		require.True(t, ok)
		assert.Equal(t, true, cached)
	})

	t.Run("invalidate drops cache", func(t *testing.T) {
		runner.CommandExists("sh")
		runner.InvalidateLookupCache()
		_, ok := runner.commandCache.Load("sh")
		assert.False(t, ok)
	})
}

func TestOSCommandRunner_RequireCommand(t *testing.T) {
	runner := NewOSCommandRunner()

	assert.NoError(t, runner.RequireCommand("sh"))

	err := runner.RequireCommand("definitely-not-a-real-command-xyz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in PATH")
}

func TestOSCommandRunner_RunCommand(t *testing.T) {
	runner := NewOSCommandRunner()
	ctx := context.Background()

	t.Run("captures stdout", func(t *testing.T) {
		out, err := runner.RunCommand(ctx, "sh", "-c", "echo hello")
		require.NoError(t, err)
		assert.Equal(t, "hello\n", out)
	})

	t.Run("failure includes stderr", func(t *testing.T) {
		_, err := runner.RunCommand(ctx, "sh", "-c", "echo oops >&2; exit 3")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "oops")
	})
}

func TestOSCommandRunner_RunCommandInDir(t *testing.T) {
	runner := NewOSCommandRunner()
	dir := t.TempDir()

	out, err := runner.RunCommandInDir(context.Background(), dir, "pwd")
	require.NoError(t, err)
	assert.Contains(t, out, dir)
}

func TestOSCommandRunner_RunCommandWithOutput(t *testing.T) {
	runner := NewOSCommandRunner()

	stdout, stderr, err := runner.RunCommandWithOutput(context.Background(), "sh", "-c", "echo out; echo err >&2")
	require.NoError(t, err)
	assert.Equal(t, "out\n", stdout)
	assert.Equal(t, "err\n", stderr)
}

func TestOSCommandRunner_GetExitCode(t *testing.T) {
	runner := NewOSCommandRunner()

	t.Run("nil error", func(t *testing.T) {
		assert.Equal(t, 0, runner.GetExitCode(nil))
	})

	t.Run("exit error", func(t *testing.T) {
		err := exec.Command("sh", "-c", "exit 7").Run()
		require.Error(t, err)
		assert.Equal(t, 7, runner.GetExitCode(err))
	})

	t.Run("wrapped exit error", func(t *testing.T) {
		_, err := runner.RunCommand(context.Background(), "sh", "-c", "exit 5")
		require.Error(t, err)
		assert.Equal(t, 5, runner.GetExitCode(err))
	})

	t.Run("non-exec error", func(t *testing.T) {
		assert.Equal(t, -1, runner.GetExitCode(errors.New("boom")))
	})
}

func TestMockCommandRunner_RecordsCalls(t *testing.T) {
	mock := &MockCommandRunner{
		RunCommandFunc: func(_ context.Context, name string, args ...string) (string, error) {
			return "mocked", nil
		},
	}

	out, err := mock.RunCommand(context.Background(), "pacman", "-Q", "firefox")
	require.NoError(t, err)
	assert.Equal(t, "mocked", out)

	require.Len(t, mock.Calls, 1)
	assert.Equal(t, []string{"pacman", "-Q", "firefox"}, mock.Calls[0])
}
