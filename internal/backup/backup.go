// Package backup writes and restores xz-compressed copies of the workbook.
package backup

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"
)

const stampLayout = "20060102-150405"

// DefaultName returns <workbook>.<YYYYMMDD-HHMMSS>.xz next to the workbook.
func DefaultName(workbookPath string, now time.Time) string {
	return workbookPath + "." + now.UTC().Format(stampLayout) + ".xz"
}

// Write compresses the file at srcPath into dst.
func Write(dst io.Writer, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return errors.Wrapf(err, "open %s", srcPath)
	}
	defer src.Close()

	zw, err := xz.NewWriter(dst)
	if err != nil {
		return errors.Wrap(err, "create xz writer")
	}
	if _, err := io.Copy(zw, src); err != nil {
		_ = zw.Close()
		return errors.Wrap(err, "compress workbook")
	}
	return errors.Wrap(zw.Close(), "finish xz stream")
}

// WriteFile is Write into a new file at dstPath.
func WriteFile(dstPath, srcPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return errors.Wrap(err, "create backup directory")
	}
	f, err := os.OpenFile(dstPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrapf(err, "create %s", dstPath)
	}
	if err := Write(f, srcPath); err != nil {
		_ = f.Close()
		_ = os.Remove(dstPath)
		return err
	}
	return errors.Wrapf(f.Close(), "close %s", dstPath)
}

// Restore decompresses src over dstPath. The workbook is replaced only once
// the whole stream has been read.
func Restore(src io.Reader, dstPath string) error {
	zr, err := xz.NewReader(src)
	if err != nil {
		return errors.Wrap(err, "read xz header")
	}

	dir := filepath.Dir(dstPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create workbook directory")
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(dstPath)+".restore-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, zr); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "decompress backup")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	return errors.Wrap(os.Rename(tmpName, dstPath), "replace workbook")
}

// RestoreFile is Restore reading from the backup at srcPath.
func RestoreFile(srcPath, dstPath string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return errors.Wrapf(err, "open %s", srcPath)
	}
	defer f.Close()
	return Restore(f, dstPath)
}
