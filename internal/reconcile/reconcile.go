package reconcile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/redhatinsights/envconfig/internal/properties"
	"github.com/redhatinsights/envconfig/internal/source"
)

// DefaultsDirName is the name of the directories whose files seed the
// destination.
const DefaultsDirName = "defaults"

// Result summarizes a successful run.
type Result struct {
	// Seeded lists the destination files copied from a defaults directory.
	Seeded []string
	// Merged lists the destination files that received overrides.
	Merged []string
	// Overridden counts the keys applied across all merged files.
	Overridden int
}

// Reconciler updates a configuration directory from a source tree.
type Reconciler struct {
	source source.Provider
}

// New returns a Reconciler that reads its templates from p.
func New(p source.Provider) *Reconciler {
	return &Reconciler{source: p}
}

// ReconcileEnvironment updates the configuration files in destinationPath.
//
// First every file of every "defaults" directory of the source tree is copied
// into destinationPath, replacing a file of the same name. Then the keys of
// every file of every directory named environment are merged into the
// destination file of the same name; keys missing from the override file are
// left alone. Directories are matched by name at any depth of the source
// tree. When several of them provide the same file name, the one visited last
// wins.
func (r *Reconciler) ReconcileEnvironment(environment, destinationPath string) (Result, error) {
	var result Result

	if strings.TrimSpace(environment) == "" {
		return result, fmt.Errorf("%w: environment must not be empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(destinationPath) == "" {
		return result, fmt.Errorf("%w: config path must not be empty", ErrInvalidArgument)
	}

	info, err := os.Stat(destinationPath)
	switch {
	case err == nil && !info.IsDir():
		return result, fmt.Errorf("%w: %s is not a directory", ErrInvalidState, destinationPath)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return result, ioError("stat", destinationPath, err)
	}

	slog.Info("updating configs", "environment", environment, "path", destinationPath)

	root, err := r.source.PrepareSourceFiles()
	if err != nil {
		return result, fmt.Errorf("%w: cannot prepare source files: %w", ErrIO, err)
	}

	if err := os.MkdirAll(destinationPath, 0755); err != nil {
		return result, ioError("create", destinationPath, err)
	}

	dirs, err := findDirs(root, DefaultsDirName, environment)
	if err != nil {
		return result, err
	}

	for _, dir := range dirs[DefaultsDirName] {
		files, err := listFiles(dir)
		if err != nil {
			return result, err
		}
		for _, file := range files {
			dest, err := seedDefault(destinationPath, file)
			if err != nil {
				return result, err
			}
			result.Seeded = append(result.Seeded, dest)
		}
	}

	for _, dir := range dirs[environment] {
		files, err := listFiles(dir)
		if err != nil {
			return result, err
		}
		for _, file := range files {
			dest, n, err := mergeOverrides(destinationPath, file)
			if err != nil {
				return result, err
			}
			result.Merged = append(result.Merged, dest)
			result.Overridden += n
		}
	}

	slog.Info("configs updated", "environment", environment, "path", destinationPath,
		"seeded", len(result.Seeded), "merged", len(result.Merged))

	return result, nil
}

// findDirs walks root once and returns, for each of names, the directories
// carrying that name in walk order. root itself is a candidate too.
func findDirs(root string, names ...string) (map[string][]string, error) {
	found := make(map[string][]string, len(names))
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && wanted[d.Name()] {
			found[d.Name()] = append(found[d.Name()], path)
		}
		return nil
	})
	if err != nil {
		return nil, ioError("walk", root, err)
	}

	return found, nil
}

// listFiles returns the regular files directly inside dir, sorted by name.
// Symbolic links count when they point to a regular file.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ioError("list", dir, err)
	}

	var files []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
		} else if !entry.Type().IsRegular() {
			continue
		}
		files = append(files, path)
	}

	return files, nil
}

// seedDefault replaces destDir/<name of file> with a fresh copy of file.
func seedDefault(destDir, file string) (string, error) {
	dest := filepath.Join(destDir, filepath.Base(file))

	if _, err := os.Lstat(dest); err == nil {
		slog.Info("file will be replaced with the fresh one", "file", dest)
		if err := os.RemoveAll(dest); err != nil {
			return dest, ioError("delete", dest, err)
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		slog.Info("file will be copied for the first time", "file", filepath.Base(file), "dir", destDir)
	} else {
		return dest, ioError("stat", dest, err)
	}

	if err := copyFile(file, dest); err != nil {
		return dest, err
	}
	return dest, nil
}

func copyFile(src, dest string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return ioError("open", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return ioError("create", dest, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = ioError("close", dest, cerr)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return ioError("copy", src, err)
	}
	return nil
}

// mergeOverrides applies every key of the override file to the destination
// file of the same name and saves it. It returns the destination path and the
// number of keys applied.
func mergeOverrides(destDir, overrides string) (string, int, error) {
	dest := filepath.Join(destDir, filepath.Base(overrides))

	src, err := properties.Load(overrides)
	if err != nil {
		return dest, 0, ioError("read", overrides, err)
	}

	doc, err := properties.Load(dest)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		doc = properties.New()
	case err != nil:
		return dest, 0, ioError("read", dest, err)
	}

	updates := 0
	for _, key := range src.Keys() {
		value, _ := src.Get(key)
		slog.Debug("key will be copied", "key", key, "value", value, "file", dest)

		if doc.Has(key) {
			doc.Set(key, value)
		} else {
			doc.Add(key, value)
		}
		updates++
	}

	if err := doc.Save(dest); err != nil {
		return dest, updates, ioError("write", dest, err)
	}

	slog.Info("file updated", "file", dest, "overridden", updates)
	return dest, updates, nil
}
