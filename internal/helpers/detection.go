package helpers

import (
	"archive/tar"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

// FileType represents the detected type of a convertible package file
type FileType string

const (
	FileTypeDEB      FileType = "deb"
	FileTypeRPM      FileType = "rpm"
	FileTypeTarGz    FileType = "tar.gz"
	FileTypeTarXz    FileType = "tar.xz"
	FileTypeTarBz2   FileType = "tar.bz2"
	FileTypeTarZst   FileType = "tar.zst"
	FileTypeAppImage FileType = "appimage"
	FileTypeFlatpak  FileType = "flatpak"
	FileTypeUnknown  FileType = "unknown"
)

// BuildSystem identifies how a source tarball expects to be built
type BuildSystem string

const (
	BuildPKGBUILD      BuildSystem = "pkgbuild"
	BuildMakefile      BuildSystem = "makefile"
	BuildConfigure     BuildSystem = "configure"
	BuildInstallScript BuildSystem = "install.sh"
	BuildNone          BuildSystem = ""
)

// ErrArchiveUnsupported is returned by DetectBuildSystem for archive
// formats it cannot open natively (currently .tar.zst).
var ErrArchiveUnsupported = errors.New("archive format requires external tool")

// DetectFileType identifies a package file by extension, falling back
// to magic numbers when the extension is ambiguous or missing.
func DetectFileType(filePath string) (FileType, error) {
	lower := strings.ToLower(filePath)

	switch {
	case strings.HasSuffix(lower, ".deb"):
		return FileTypeDEB, nil
	case strings.HasSuffix(lower, ".rpm"):
		return FileTypeRPM, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FileTypeTarGz, nil
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FileTypeTarXz, nil
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		return FileTypeTarBz2, nil
	case strings.HasSuffix(lower, ".tar.zst"):
		return FileTypeTarZst, nil
	case strings.HasSuffix(lower, ".appimage"):
		return FileTypeAppImage, nil
	case strings.HasSuffix(lower, ".flatpak"), strings.HasSuffix(lower, ".flatpakref"):
		return FileTypeFlatpak, nil
	}

	f, err := os.Open(filePath)
	if err != nil {
		return FileTypeUnknown, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	header := make([]byte, 512)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return FileTypeUnknown, fmt.Errorf("failed to read file header: %w", err)
	}
	header = header[:n]

	// DEB magic: ar archive containing "debian-binary"
	if len(header) >= 8 && bytes.HasPrefix(header, []byte("!<arch>\n")) && bytes.Contains(header[:min(len(header), 72)], []byte("debian")) {
		return FileTypeDEB, nil
	}

	// RPM magic: 0xED 0xAB 0xEE 0xDB
	if len(header) >= 4 && bytes.Equal(header[:4], []byte{0xED, 0xAB, 0xEE, 0xDB}) {
		return FileTypeRPM, nil
	}

	// Gzip magic: 0x1F 0x8B
	if len(header) >= 2 && bytes.Equal(header[:2], []byte{0x1F, 0x8B}) {
		return FileTypeTarGz, nil
	}

	// XZ magic: 0xFD '7' 'z' 'X' 'Z' 0x00
	if len(header) >= 6 && bytes.Equal(header[:6], []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}) {
		return FileTypeTarXz, nil
	}

	// BZ2 magic: 'B' 'Z' 'h'
	if len(header) >= 3 && bytes.Equal(header[:3], []byte{'B', 'Z', 'h'}) {
		return FileTypeTarBz2, nil
	}

	// Zstandard magic: 0x28 0xB5 0x2F 0xFD
	if len(header) >= 4 && bytes.Equal(header[:4], []byte{0x28, 0xB5, 0x2F, 0xFD}) {
		return FileTypeTarZst, nil
	}

	return FileTypeUnknown, nil
}

// DetectBuildSystem peeks inside a source tarball to find out how it
// expects to be built. Returns ErrArchiveUnsupported for .tar.zst, which
// callers list through an external tar instead.
func DetectBuildSystem(archivePath string) (BuildSystem, error) {
	ft, err := DetectFileType(archivePath)
	if err != nil {
		return BuildNone, err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return BuildNone, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	var reader io.Reader
	switch ft {
	case FileTypeTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return BuildNone, fmt.Errorf("failed to read gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	case FileTypeTarXz:
		xzr, err := xz.NewReader(f)
		if err != nil {
			return BuildNone, fmt.Errorf("failed to read xz stream: %w", err)
		}
		reader = xzr
	case FileTypeTarBz2:
		reader = bzip2.NewReader(f)
	case FileTypeTarZst:
		return BuildNone, ErrArchiveUnsupported
	default:
		return BuildNone, fmt.Errorf("not a source archive: %s", ft)
	}

	tr := tar.NewReader(reader)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return BuildNone, fmt.Errorf("failed to list archive: %w", err)
		}
		names = append(names, hdr.Name)
	}

	return MatchBuildSystem(names), nil
}

// MatchBuildSystem picks the build system from archive member names,
// in priority order: PKGBUILD beats Makefile beats configure beats install.sh.
func MatchBuildSystem(names []string) BuildSystem {
	basenames := make(map[string]struct{}, len(names))
	for _, n := range names {
		basenames[strings.ToLower(filepath.Base(n))] = struct{}{}
	}

	if _, ok := basenames["pkgbuild"]; ok {
		return BuildPKGBUILD
	}
	if _, ok := basenames["makefile"]; ok {
		return BuildMakefile
	}
	if _, ok := basenames["configure"]; ok {
		return BuildConfigure
	}
	if _, ok := basenames["install.sh"]; ok {
		return BuildInstallScript
	}
	return BuildNone
}
