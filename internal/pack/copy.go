package pack

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// copyTree recursively copies the directory at src into dst, preserving file
// modes and modification times. Non-regular files (sockets, device nodes)
// are skipped; symlinks are followed via the enclosing walk. Returns the
// number of files copied.
func copyTree(src, dst string) (int, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("pack: source is not a directory: %s", src)
	}

	copied := 0
	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, relErr := filepath.Rel(src, p)
		if relErr != nil {
			return relErr
		}
		target := filepath.Join(dst, rel)

		entryInfo, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}

		if d.IsDir() {
			if mkErr := os.MkdirAll(target, entryInfo.Mode().Perm()|0o700); mkErr != nil {
				return mkErr
			}
			return nil
		}
		if !entryInfo.Mode().IsRegular() {
			return nil
		}
		if cpErr := copyFile(p, target); cpErr != nil {
			return cpErr
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("pack: copy tree %s: %w", src, err)
	}
	return copied, nil
}

// copyFile copies a single regular file, preserving mode and mtime.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
