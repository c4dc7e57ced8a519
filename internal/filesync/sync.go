// Package filesync mirrors an export folder into a local cache by file name.
package filesync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

type Result struct {
	Copied  int
	Skipped int
}

// Sync copies every regular file in src whose name is not yet present in dst.
// Existing files in dst are never overwritten, compared, or removed.
func Sync(ctx context.Context, src, dst string) (Result, error) {
	srcEntries, err := os.ReadDir(src)
	if err != nil {
		return Result{}, fmt.Errorf("read source dir: %w", err)
	}
	dstEntries, err := os.ReadDir(dst)
	if err != nil {
		return Result{}, fmt.Errorf("read local dir: %w", err)
	}

	local := make(map[string]struct{}, len(dstEntries))
	for _, e := range dstEntries {
		local[e.Name()] = struct{}{}
	}

	var res Result
	for _, e := range srcEntries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		srcPath := filepath.Join(src, e.Name())
		if !isRegular(srcPath, e) {
			continue
		}
		if _, ok := local[e.Name()]; ok {
			res.Skipped++
			continue
		}
		if err := copyNew(srcPath, filepath.Join(dst, e.Name())); err != nil {
			return res, err
		}
		res.Copied++
		slog.Debug("copied export file", "name", e.Name())
	}
	return res, nil
}

// isRegular reports whether the entry is a regular file, following symlinks.
// Dangling links are skipped.
func isRegular(path string, e os.DirEntry) bool {
	if e.Type().IsRegular() {
		return true
	}
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	fi, err := os.Stat(path)
	if err != nil {
		slog.Warn("skipping unreadable link", "path", path, "error", err)
		return false
	}
	return fi.Mode().IsRegular()
}

// copyNew copies src to dst, failing if dst already exists. A partial dst is
// removed so the next sync retries the name.
func copyNew(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}

// CopyFile replaces dst with a copy of src. The copy is written next to dst
// and renamed into place, so readers never see a half-written file.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", dst, err)
	}
	tmpName := tmp.Name()

	_, copyErr := io.Copy(tmp, in)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename into %s: %w", dst, err)
	}
	return nil
}
