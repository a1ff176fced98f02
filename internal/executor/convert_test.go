package executor

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tys-asm/asmctl/internal/core"
	"github.com/tys-asm/asmctl/internal/privilege"
)

func writeTarGz(t *testing.T, members ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src.tar.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, m := range members {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: m, Mode: 0o644, Size: 0}))
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return path
}

func TestTarExtractArgs(t *testing.T) {
	assert.Equal(t, []string{"tar", "-xzf", "a.tar.gz", "-C", "/d"}, tarExtractArgs("tar.gz", "a.tar.gz", "/d"))
	assert.Equal(t, []string{"tar", "-xJf", "a.tar.xz", "-C", "/d"}, tarExtractArgs("tar.xz", "a.tar.xz", "/d"))
	assert.Equal(t, []string{"tar", "-xjf", "a.tar.bz2", "-C", "/d"}, tarExtractArgs("tar.bz2", "a.tar.bz2", "/d"))
	assert.Equal(t, []string{"tar", "--zstd", "-xf", "a.tar.zst", "-C", "/d"}, tarExtractArgs("tar.zst", "a.tar.zst", "/d"))
}

func TestFindPackageFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("empty dir", func(t *testing.T) {
		assert.Empty(t, findPackageFile(dir))
	})

	t.Run("finds nested package", func(t *testing.T) {
		sub := filepath.Join(dir, "out")
		require.NoError(t, os.MkdirAll(sub, 0o755))
		pkg := filepath.Join(sub, "app-1.0-1-x86_64.pkg.tar.zst")
		require.NoError(t, os.WriteFile(pkg, []byte("pkg"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "app.deb"), []byte("deb"), 0o644))

		assert.Equal(t, pkg, findPackageFile(dir))
	})
}

func TestSourceDir(t *testing.T) {
	root := t.TempDir()

	t.Run("flat layout", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(root, "Makefile"), nil, 0o644))
		assert.Equal(t, root, sourceDir(root))
	})

	t.Run("single top-level dir", func(t *testing.T) {
		sub := filepath.Join(root, "app-1.0")
		require.NoError(t, os.MkdirAll(sub, 0o755))
		assert.Equal(t, sub, sourceDir(root))
	})
}

func TestExecuteConvert_UnknownFormat(t *testing.T) {
	runner := passthroughRunner(func(string) bool { return true })
	exec := newTestExecutor(t, runner, Options{})

	path := filepath.Join(t.TempDir(), "mystery.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a package"), 0o644))

	res := exec.Execute(context.Background(), "cv-1", core.Descriptor{
		Kind: core.KindConvert, Backend: core.BackendFile, Target: path, Privileged: true,
	}, privilege.Authorization{}, nil)

	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Contains(t, res.Detail, "unsupported file type")
}

func TestExecuteConvert_DebNeedsDebtap(t *testing.T) {
	runner := passthroughRunner(func(name string) bool { return name != "debtap" })
	exec := newTestExecutor(t, runner, Options{})

	path := filepath.Join(t.TempDir(), "app.deb")
	require.NoError(t, os.WriteFile(path, []byte("!<arch>\ndebian"), 0o644))

	res := exec.Execute(context.Background(), "cv-2", core.Descriptor{
		Kind: core.KindConvert, Backend: core.BackendFile, Target: path, Privileged: true,
	}, privilege.Authorization{}, nil)

	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Equal(t, core.ReasonToolMissing, res.Reason)
	assert.Contains(t, res.Detail, "debtap")
	for _, call := range runner.Calls {
		assert.NotEqual(t, "debtap", call[0], "the pipeline must not start with its converter missing")
	}
}

func TestExecuteConvert_RPMListsWholeChainWhenMissing(t *testing.T) {
	runner := passthroughRunner(func(string) bool { return false })
	exec := newTestExecutor(t, runner, Options{})

	path := filepath.Join(t.TempDir(), "app.rpm")
	require.NoError(t, os.WriteFile(path, []byte{0xED, 0xAB, 0xEE, 0xDB}, 0o644))

	res := exec.Execute(context.Background(), "cv-3", core.Descriptor{
		Kind: core.KindConvert, Backend: core.BackendFile, Target: path, Privileged: true,
	}, privilege.Authorization{}, nil)

	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Equal(t, core.ReasonToolMissing, res.Reason)
	assert.Contains(t, res.Detail, "rpmextract")
	assert.Contains(t, res.Detail, "bsdtar")
	assert.Contains(t, res.Detail, "rpm2cpio")
}

func TestInstallAppImage(t *testing.T) {
	moveDir := filepath.Join(t.TempDir(), "Applications")
	runner := passthroughRunner(func(string) bool { return true })
	exec := newTestExecutor(t, runner, Options{MoveDir: moveDir})

	src := filepath.Join(t.TempDir(), "Tool.AppImage")
	require.NoError(t, os.WriteFile(src, []byte("fake appimage payload"), 0o644))

	events := make(chan core.Progress, 8)
	res := exec.Execute(context.Background(), "cv-4", core.Descriptor{
		Kind: core.KindConvert, Backend: core.BackendFile, Target: src, Privileged: true,
	}, privilege.Authorization{}, events)

	require.Equal(t, core.StatusSuccess, res.Status)

	dest := filepath.Join(moveDir, "Tool.AppImage")
	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "fake appimage payload", string(data))
}

func TestExecuteConvert_TarballWithoutBuildSystem(t *testing.T) {
	runner := passthroughRunner(func(string) bool { return true })
	exec := newTestExecutor(t, runner, Options{})

	path := writeTarGz(t, "project/README.md")

	res := exec.Execute(context.Background(), "cv-5", core.Descriptor{
		Kind: core.KindConvert, Backend: core.BackendFile, Target: path, Privileged: true,
	}, privilege.Authorization{}, nil)

	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Contains(t, res.Detail, "no build system detected")
}
