package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePackagePath(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "app.deb")
		require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
		assert.NoError(t, ValidatePackagePath(path))
	})

	t.Run("empty path", func(t *testing.T) {
		err := ValidatePackagePath("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})

	t.Run("missing file", func(t *testing.T) {
		err := ValidatePackagePath(filepath.Join(dir, "nope.deb"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("directory is rejected", func(t *testing.T) {
		err := ValidatePackagePath(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a regular file")
	})
}
