// Package fsutil provides the filesystem helpers used around build
// preparation and cleanup: recursive tree copies, directory removal with
// exclusions, and artifact lookup.
package fsutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyTree recursively copies the directory tree at src to dst.
// dst must not exist yet; parent directories are created as needed.
func CopyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", src)
	}

	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to read source directory: %w", err)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		isDir := entry.IsDir()
		if entry.Type()&fs.ModeSymlink != 0 {
			// Links are followed, so the copy holds real files and
			// directories. A cyclic link would recurse forever; app trees
			// do not contain those.
			target, err := os.Stat(srcPath)
			if err != nil {
				return fmt.Errorf("failed to resolve symlink %s: %w", srcPath, err)
			}

			isDir = target.IsDir()
		}

		if isDir {
			if err := CopyTree(srcPath, dstPath); err != nil {
				return err
			}

			continue
		}

		if err := CopyFile(srcPath, dstPath); err != nil {
			return fmt.Errorf("failed to copy %s: %w", srcPath, err)
		}
	}

	return nil
}

// CopyFile copies a single file from src to dst, preserving permissions.
func CopyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}

	defer srcFile.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}

	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}

	return os.Chmod(dst, srcInfo.Mode())
}

// RemoveDir removes dir recursively, keeping any file whose basename is in
// excludeBasenames. Directories left non-empty by exclusions are kept.
func RemoveDir(dir string, excludeBasenames []string) error {
	if len(excludeBasenames) == 0 {
		return os.RemoveAll(dir)
	}

	excluded := make(map[string]bool, len(excludeBasenames))
	for _, name := range excludeBasenames {
		if name != "" {
			excluded[name] = true
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if err := RemoveDir(path, excludeBasenames); err != nil {
				return err
			}

			continue
		}

		if excluded[entry.Name()] {
			continue
		}

		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}

	// Succeeds only when nothing was excluded underneath.
	_ = os.Remove(dir)

	return nil
}

// FindFirstMatch walks dir recursively and returns the first file whose
// basename matches the glob pattern, or an empty string if none does.
func FindFirstMatch(pattern, dir string) string {
	var match string

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil //nolint:nilerr // unreadable entries are skipped
		}

		ok, _ := filepath.Match(pattern, d.Name())
		if ok {
			match = path
			return fs.SkipAll
		}

		return nil
	})

	return match
}
