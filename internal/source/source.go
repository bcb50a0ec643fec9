package source

import (
	"fmt"
	"os"
)

// Provider supplies the directory tree that holds the "defaults" and
// environment named directories.
type Provider interface {
	// PrepareSourceFiles makes the source files available on disk and returns
	// the root directory of the tree.
	PrepareSourceFiles() (string, error)
}

// Bundle is a Provider that may leave temporary files behind. Cleanup is the
// explicit teardown step; callers invoke it once they are done with the tree,
// whether the run succeeded or not.
type Bundle interface {
	Provider
	Cleanup() error
}

// Open returns the Bundle for path. A directory is used in place, anything
// else is treated as an archive and extracted below tempDir; a missing archive
// is reported by PrepareSourceFiles. An empty path selects the running
// executable, which is expected to carry a zip archive.
func Open(path, tempDir string) (Bundle, error) {
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate executable: %w", err)
		}
		return &Archive{Path: exe, Format: FormatZip, TempDir: tempDir}, nil
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return &Dir{Path: path}, nil
	}

	return &Archive{Path: path, Format: DetectFormat(path), TempDir: tempDir}, nil
}
