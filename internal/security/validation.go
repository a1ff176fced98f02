package security

import (
	"fmt"
	"os"
	"path/filepath"
)

// ValidatePackagePath checks that a file-backed operation target is a
// real, readable, regular file before any external tool sees it.
func ValidatePackagePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty package path")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("cannot resolve path %q: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", abs)
		}
		return fmt.Errorf("cannot access %s: %w", abs, err)
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", abs)
	}

	f, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("file is not readable: %s", abs)
	}
	f.Close()

	return nil
}
