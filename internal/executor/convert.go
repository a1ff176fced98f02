package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/tys-asm/asmctl/internal/core"
	"github.com/tys-asm/asmctl/internal/helpers"
	"github.com/tys-asm/asmctl/internal/privilege"
)

// executeConvert routes a file-backed operation to the pipeline for its
// detected format.
func (e *Executor) executeConvert(ctx context.Context, id string, desc core.Descriptor, auth privilege.Authorization, events chan<- core.Progress, start time.Time) core.Result {
	ft, err := helpers.DetectFileType(desc.Target)
	if err != nil {
		return e.finish(id, start, core.Result{
			Status: core.StatusFailed, Reason: core.ReasonExecutionFailed,
			ExitCode: -1, Detail: err.Error(),
		})
	}

	switch ft {
	case helpers.FileTypeDEB:
		return e.convertDeb(ctx, id, desc, auth, events, start)
	case helpers.FileTypeRPM:
		return e.convertRPM(ctx, id, desc, auth, events, start)
	case helpers.FileTypeTarGz, helpers.FileTypeTarXz, helpers.FileTypeTarBz2, helpers.FileTypeTarZst:
		return e.convertTarball(ctx, id, desc, auth, events, start, ft)
	case helpers.FileTypeAppImage:
		return e.installAppImage(id, desc, events, start)
	case helpers.FileTypeFlatpak:
		if res, ok := e.precheck(ctx, id, start, "flatpak"); !ok {
			return res
		}
		out := e.runStep(ctx, id, step{
			phase: core.PhaseInstalling,
			argv:  []string{"flatpak", "install", "--user", "-y", desc.Target},
		}, auth, events)
		if res, done := e.stepFailure(id, auth, out, start); done {
			return res
		}
		return e.succeed(id, start, events, "flatpak bundle installed")
	default:
		return e.finish(id, start, core.Result{
			Status: core.StatusFailed, Reason: core.ReasonExecutionFailed,
			ExitCode: -1,
			Detail:   fmt.Sprintf("unsupported file type for %s; supported: .deb, .rpm, tarballs, .AppImage, .flatpak", desc.Target),
		})
	}
}

// convertDeb runs the debtap pipeline: convert the .deb into a pacman
// package in a scratch dir, then install the produced package.
func (e *Executor) convertDeb(ctx context.Context, id string, desc core.Descriptor, auth privilege.Authorization, events chan<- core.Progress, start time.Time) core.Result {
	if res, ok := e.precheck(ctx, id, start, "debtap", "pacman"); !ok {
		return res
	}

	tmp, err := os.MkdirTemp("", "asmctl-deb-")
	if err != nil {
		return e.finish(id, start, core.Result{
			Status: core.StatusFailed, Reason: core.ReasonExecutionFailed,
			ExitCode: -1, Detail: fmt.Sprintf("scratch dir: %v", err),
		})
	}
	defer os.RemoveAll(tmp)

	out := e.runStep(ctx, id, step{
		phase: core.PhaseConverting,
		argv:  []string{"debtap", "-Q", "-o", tmp, desc.Target},
		dir:   tmp,
	}, auth, events)
	if res, done := e.stepFailure(id, auth, out, start); done {
		return res
	}

	pkgFile := findPackageFile(tmp)
	if pkgFile == "" {
		detail := "debtap produced no package file"
		if len(out.tail) > 0 {
			detail += ": " + strings.Join(out.tail, " | ")
		}
		return e.finish(id, start, core.Result{
			Status: core.StatusFailed, Reason: core.ReasonExecutionFailed,
			ExitCode: -1, Detail: detail,
		})
	}

	out = e.runStep(ctx, id, step{
		phase: core.PhaseInstalling,
		argv:  []string{"pacman", "-U", "--noconfirm", pkgFile},
		wrap:  true,
	}, auth, events)
	if res, done := e.stepFailure(id, auth, out, start); done {
		return res
	}
	return e.succeed(id, start, events, "package installed from .deb")
}

// rpmExtractors is the fixed priority order for getting files out of an
// RPM; the first tool that is present and succeeds wins.
var rpmExtractors = []struct {
	tool string
	argv func(target string) []string
}{
	{"rpmextract", func(t string) []string { return []string{"rpmextract", t} }},
	{"bsdtar", func(t string) []string { return []string{"bsdtar", "-xf", t} }},
	{"rpm2cpio", func(t string) []string {
		return []string{"bash", "-c", "rpm2cpio " + shellquote.Join(t) + " | cpio -idm"}
	}},
}

// convertRPM extracts an .rpm with the first available extractor and
// copies its payload into the filesystem (best-effort install).
func (e *Executor) convertRPM(ctx context.Context, id string, desc core.Descriptor, auth privilege.Authorization, events chan<- core.Progress, start time.Time) core.Result {
	var available []int
	var missing []string
	for i, ex := range rpmExtractors {
		av := e.probe.Probe(ctx, ex.tool)
		if av.Installed {
			available = append(available, i)
		} else if av.Hint != "" {
			missing = append(missing, fmt.Sprintf("%s (install with: %s)", ex.tool, av.Hint))
		} else {
			missing = append(missing, ex.tool)
		}
	}
	if len(available) == 0 {
		return e.finish(id, start, core.Result{
			Status: core.StatusFailed, Reason: core.ReasonToolMissing,
			ExitCode: -1,
			Detail:   "missing required tools: " + strings.Join(missing, ", "),
		})
	}

	tmp, err := os.MkdirTemp("", "asmctl-rpm-")
	if err != nil {
		return e.finish(id, start, core.Result{
			Status: core.StatusFailed, Reason: core.ReasonExecutionFailed,
			ExitCode: -1, Detail: fmt.Sprintf("scratch dir: %v", err),
		})
	}
	defer os.RemoveAll(tmp)

	extracted := false
	var lastOut stepOutcome
	for _, i := range available {
		ex := rpmExtractors[i]
		out := e.runStep(ctx, id, step{
			phase: core.PhaseConverting,
			argv:  ex.argv(desc.Target),
			dir:   tmp,
		}, auth, events)
		if out.reason != "" {
			// Cancellation and stalls end the operation, not the chain
			res, _ := e.stepFailure(id, auth, out, start)
			return res
		}
		if out.startErr == nil && out.exitCode == 0 {
			extracted = true
			break
		}
		lastOut = out
		e.log.Debug().Str("operation", id).Str("tool", ex.tool).Msg("extractor failed, trying next in chain")
	}

	entries, _ := os.ReadDir(tmp)
	if !extracted || len(entries) == 0 {
		detail := "RPM extraction produced no files"
		if len(lastOut.tail) > 0 {
			detail += ": " + strings.Join(lastOut.tail, " | ")
		}
		return e.finish(id, start, core.Result{
			Status: core.StatusFailed, Reason: core.ReasonExecutionFailed,
			ExitCode: lastOut.exitCode, Detail: detail,
		})
	}

	argv := []string{"cp", "-r"}
	for _, entry := range entries {
		argv = append(argv, filepath.Join(tmp, entry.Name()))
	}
	argv = append(argv, "/")

	out := e.runStep(ctx, id, step{phase: core.PhaseInstalling, argv: argv, wrap: true}, auth, events)
	if res, done := e.stepFailure(id, auth, out, start); done {
		return res
	}
	return e.succeed(id, start, events, fmt.Sprintf("RPM contents installed (best effort, %d top-level entries)", len(entries)))
}

// tarExtractArgs picks tar flags for the archive compression
func tarExtractArgs(ft helpers.FileType, target, dest string) []string {
	switch ft {
	case helpers.FileTypeTarXz:
		return []string{"tar", "-xJf", target, "-C", dest}
	case helpers.FileTypeTarBz2:
		return []string{"tar", "-xjf", target, "-C", dest}
	case helpers.FileTypeTarZst:
		return []string{"tar", "--zstd", "-xf", target, "-C", dest}
	default:
		return []string{"tar", "-xzf", target, "-C", dest}
	}
}

// convertTarball extracts a source tarball and drives the build system
// it detects inside (PKGBUILD, Makefile, configure, install.sh).
func (e *Executor) convertTarball(ctx context.Context, id string, desc core.Descriptor, auth privilege.Authorization, events chan<- core.Progress, start time.Time, ft helpers.FileType) core.Result {
	required := []string{"tar"}
	if ft == helpers.FileTypeTarZst {
		required = append(required, "zstd")
	}
	if res, ok := e.precheck(ctx, id, start, required...); !ok {
		return res
	}

	buildSys, err := helpers.DetectBuildSystem(desc.Target)
	if errors.Is(err, helpers.ErrArchiveUnsupported) {
		listing, listErr := e.runner.RunCommand(ctx, "tar", "--zstd", "-tf", desc.Target)
		if listErr == nil {
			buildSys = helpers.MatchBuildSystem(strings.Split(strings.TrimSpace(listing), "\n"))
		}
	} else if err != nil {
		return e.finish(id, start, core.Result{
			Status: core.StatusFailed, Reason: core.ReasonExecutionFailed,
			ExitCode: -1, Detail: fmt.Sprintf("cannot inspect archive: %v", err),
		})
	}

	tmp, err := os.MkdirTemp("", "asmctl-tar-")
	if err != nil {
		return e.finish(id, start, core.Result{
			Status: core.StatusFailed, Reason: core.ReasonExecutionFailed,
			ExitCode: -1, Detail: fmt.Sprintf("scratch dir: %v", err),
		})
	}
	defer os.RemoveAll(tmp)

	out := e.runStep(ctx, id, step{
		phase: core.PhaseConverting,
		argv:  tarExtractArgs(ft, desc.Target, tmp),
	}, auth, events)
	if res, done := e.stepFailure(id, auth, out, start); done {
		return res
	}

	srcDir := sourceDir(tmp)

	var buildSteps []step
	switch buildSys {
	case helpers.BuildPKGBUILD:
		if res, ok := e.precheck(ctx, id, start, "makepkg"); !ok {
			return res
		}
		// makepkg refuses to run as root and elevates itself for the
		// install half, so this step stays unwrapped
		buildSteps = []step{{phase: core.PhaseBuilding, argv: []string{"makepkg", "-si", "--noconfirm"}, dir: srcDir}}
	case helpers.BuildMakefile:
		if res, ok := e.precheck(ctx, id, start, "make"); !ok {
			return res
		}
		buildSteps = []step{
			{phase: core.PhaseBuilding, argv: []string{"bash", "-c", "make -j$(nproc)"}, dir: srcDir},
			{phase: core.PhaseInstalling, argv: []string{"make", "install"}, dir: srcDir, wrap: true},
		}
	case helpers.BuildConfigure:
		if res, ok := e.precheck(ctx, id, start, "make"); !ok {
			return res
		}
		buildSteps = []step{
			{phase: core.PhaseBuilding, argv: []string{"bash", "-c", "./configure && make -j$(nproc)"}, dir: srcDir},
			{phase: core.PhaseInstalling, argv: []string{"make", "install"}, dir: srcDir, wrap: true},
		}
	case helpers.BuildInstallScript:
		buildSteps = []step{
			{phase: core.PhaseInstalling, argv: []string{"bash", "-c", "chmod +x install.sh && ./install.sh"}, dir: srcDir, wrap: true},
		}
	default:
		return e.finish(id, start, core.Result{
			Status: core.StatusFailed, Reason: core.ReasonExecutionFailed,
			ExitCode: -1,
			Detail:   "no build system detected in archive; extract and inspect manually",
		})
	}

	for _, st := range buildSteps {
		out := e.runStep(ctx, id, st, auth, events)
		if res, done := e.stepFailure(id, auth, out, start); done {
			return res
		}
	}
	return e.succeed(id, start, events, fmt.Sprintf("built and installed from tarball (%s)", buildSys))
}

// installAppImage copies the AppImage into the applications directory
// and marks it executable. No subprocess involved.
func (e *Executor) installAppImage(id string, desc core.Descriptor, events chan<- core.Progress, start time.Time) core.Result {
	fail := func(err error) core.Result {
		return e.finish(id, start, core.Result{
			Status: core.StatusFailed, Reason: core.ReasonExecutionFailed,
			ExitCode: -1, Detail: fmt.Sprintf("AppImage install: %v", err),
		})
	}

	if err := os.MkdirAll(e.moveDir, 0o755); err != nil {
		return fail(err)
	}
	dest := filepath.Join(e.moveDir, filepath.Base(desc.Target))

	e.emit(events, id, core.PhaseInstalling, 10, fmt.Sprintf("copying to %s", dest), 0)

	src, err := os.Open(desc.Target)
	if err != nil {
		return fail(err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fail(err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fail(err)
	}
	if err := dst.Close(); err != nil {
		return fail(err)
	}
	if err := os.Chmod(dest, 0o755); err != nil {
		return fail(err)
	}

	return e.succeed(id, start, events, fmt.Sprintf("AppImage installed to %s", dest))
}

// findPackageFile locates the pacman package debtap produced
func findPackageFile(dir string) string {
	var found string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.Contains(d.Name(), ".pkg.tar") {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// sourceDir returns the single top-level directory of an extracted
// archive, or the extraction root when the layout is flat.
func sourceDir(root string) string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return root
	}
	for _, entry := range entries {
		if entry.IsDir() {
			return filepath.Join(root, entry.Name())
		}
	}
	return root
}
