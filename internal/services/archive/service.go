// Package archive packs backup directories into zip files.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Packer defines the interface for packing a directory into one archive file.
type Packer interface {
	Pack(ctx context.Context, srcDir, destPath string) error
}

// Impl implements the Packer interface with zip archives.
// archive/zip switches to Zip64 records on its own once an entry or the
// archive outgrows the 32-bit limits, and flags non-ASCII names as UTF-8.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new zip packer.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// Pack writes the contents of srcDir into a zip file at destPath.
// The archive is written to a temporary file next to destPath first so that
// destPath only appears once it is complete.
func (p *Impl) Pack(ctx context.Context, srcDir, destPath string) error {
	start := time.Now()

	out, err := os.CreateTemp(filepath.Dir(destPath), filepath.Base(destPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	tmpPath := out.Name()

	if err := p.write(ctx, srcDir, out); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to move archive into place: %w", err)
	}

	var size int64
	if info, err := os.Stat(destPath); err == nil {
		size = info.Size()
	}

	p.logger.Info().
		Str("archive", destPath).
		Int64("size_bytes", size).
		Dur("duration", time.Since(start)).
		Msg("archive written")

	return nil
}

func (p *Impl) write(ctx context.Context, srcDir string, out *os.File) error {
	zw := zip.NewWriter(out)

	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == srcDir {
			return nil
		}
		return addEntry(zw, srcDir, path, d)
	})

	closeErr := zw.Close()
	fileErr := out.Close()

	switch {
	case walkErr != nil:
		return fmt.Errorf("failed to add %s to archive: %w", srcDir, walkErr)
	case closeErr != nil:
		return fmt.Errorf("failed to finish archive: %w", closeErr)
	case fileErr != nil:
		return fmt.Errorf("failed to close archive: %w", fileErr)
	}
	return nil
}

func addEntry(zw *zip.Writer, root, path string, d fs.DirEntry) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return err
	}

	info, err := d.Info()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.ToSlash(rel)

	if d.IsDir() {
		header.Name += "/"
		_, err := zw.CreateHeader(header)
		return err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return addSymlink(zw, header, path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("unsupported file type %s: %s", info.Mode().Type(), rel)
	}

	header.Method = zip.Deflate
	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	f, err := os.Open(path) //nolint:gosec // walking a directory we created
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = io.Copy(w, f)
	return err
}

// addSymlink stores a symlink as an entry carrying the link mode with the
// target as its body, the layout unzip and Info-ZIP restore as a link.
func addSymlink(zw *zip.Writer, header *zip.FileHeader, path string) error {
	target, err := os.Readlink(path)
	if err != nil {
		return err
	}

	header.Method = zip.Store
	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, filepath.ToSlash(target))
	return err
}
