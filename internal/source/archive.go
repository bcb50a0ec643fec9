package source

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// Format is the container format of an archive bundle.
type Format int

const (
	// FormatZip is a zip archive, including jar files.
	FormatZip Format = iota
	// FormatTar is an uncompressed tar archive.
	FormatTar
	// FormatTarGzip is a gzip compressed tar archive.
	FormatTarGzip
)

// ErrInsecurePath is returned for archive entries that would be extracted
// outside of the extraction directory.
var ErrInsecurePath = errors.New("insecure path in archive")

// Only these entries are extracted. Default files of any of them can be
// seeded, overrides are merged for key/value files only.
var configExtensions = map[string]bool{
	".properties": true,
	".xml":        true,
	".conf":       true,
}

// DetectFormat guesses the archive format from the file name. Unknown names
// are read as zip.
func DetectFormat(path string) Format {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGzip
	case strings.HasSuffix(name, ".tar"):
		return FormatTar
	}
	return FormatZip
}

// Archive extracts the configuration files of an archive into a fresh
// temporary directory.
type Archive struct {
	Path    string
	Format  Format
	TempDir string

	dir string
}

// PrepareSourceFiles extracts the archive, once, and returns the directory it
// was extracted to.
func (a *Archive) PrepareSourceFiles() (string, error) {
	if a.dir != "" {
		return a.dir, nil
	}

	tempDir := a.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	dir := filepath.Join(tempDir, "envconfig-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create extraction directory: %w", err)
	}

	var err error
	switch a.Format {
	case FormatTar, FormatTarGzip:
		err = a.extractTar(dir)
	default:
		err = a.extractZip(dir)
	}
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			slog.Warn("failed to remove extraction directory", "dir", dir, "error", rmErr)
		}
		return "", fmt.Errorf("failed to extract %s: %w", a.Path, err)
	}

	slog.Debug("source bundle extracted", "bundle", a.Path, "dir", dir)
	a.dir = dir
	return dir, nil
}

// Cleanup removes the extracted files.
func (a *Archive) Cleanup() error {
	if a.dir == "" {
		return nil
	}
	if err := os.RemoveAll(a.dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", a.dir, err)
	}
	a.dir = ""
	return nil
}

func (a *Archive) extractZip(dir string) error {
	r, err := zip.OpenReader(a.Path)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		dest, err := entryPath(dir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0755); err != nil {
				return err
			}
			continue
		}
		if !isConfigFile(f.Name) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open entry %s: %w", f.Name, err)
		}
		err = writeFile(dest, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

func (a *Archive) extractTar(dir string) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if a.Format == FormatTarGzip {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		dest, err := entryPath(dir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if !isConfigFile(hdr.Name) {
				continue
			}
			if err := writeFile(dest, tr); err != nil {
				return err
			}
		}
	}
}

// entryPath resolves an archive entry name below dir.
func entryPath(dir, name string) (string, error) {
	rel := filepath.FromSlash(strings.TrimSuffix(name, "/"))
	if rel == "" || rel == "." {
		return dir, nil
	}
	if !filepath.IsLocal(rel) || strings.Contains(name, `\`) {
		return "", fmt.Errorf("%w: %s", ErrInsecurePath, name)
	}
	return filepath.Join(dir, rel), nil
}

func isConfigFile(name string) bool {
	return configExtensions[strings.ToLower(filepath.Ext(name))]
}

func writeFile(dest string, r io.Reader) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err = io.Copy(out, r); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}
