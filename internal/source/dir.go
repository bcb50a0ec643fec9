package source

import (
	"fmt"
	"os"
)

// Dir is a source tree that already exists on disk.
type Dir struct {
	Path string
}

// PrepareSourceFiles checks that the directory exists and returns it.
func (d *Dir) PrepareSourceFiles() (string, error) {
	info, err := os.Stat(d.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read source directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("source %s is not a directory", d.Path)
	}
	return d.Path, nil
}

// Cleanup does nothing, the directory is not owned by Dir.
func (d *Dir) Cleanup() error {
	return nil
}
