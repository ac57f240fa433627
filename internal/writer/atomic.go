package writer

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// AtomicFile buffers writes into a temporary file next to its target.
// Commit renames it into place; Abort discards it. The target is never
// observed half-written.
type AtomicFile struct {
	path string
	tmp  *os.File
	buf  *bufio.Writer
	done bool
}

// CreateAtomic opens a temporary file in the directory of path
func CreateAtomic(path string) (*AtomicFile, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return &AtomicFile{
		path: path,
		tmp:  tmp,
		buf:  bufio.NewWriterSize(tmp, 256*1024),
	}, nil
}

func (f *AtomicFile) Write(p []byte) (int, error) {
	return f.buf.Write(p)
}

// Path returns the final location
func (f *AtomicFile) Path() string {
	return f.path
}

// Commit flushes, syncs and renames the temporary file over the target.
// An existing target keeps its permission bits.
func (f *AtomicFile) Commit() (err error) {
	if f.done {
		return fmt.Errorf("file %s already closed", f.path)
	}
	f.done = true
	tmpPath := f.tmp.Name()

	defer func() {
		if err != nil {
			_ = f.tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err = f.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush temp file: %w", err)
	}
	if err = f.tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(f.path); statErr == nil {
		mode = info.Mode().Perm()
	}
	if err = f.tmp.Chmod(mode); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err = f.tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err = os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Abort removes the temporary file. It is a no-op after Commit.
func (f *AtomicFile) Abort() {
	if f.done {
		return
	}
	f.done = true
	_ = f.tmp.Close()
	_ = os.Remove(f.tmp.Name())
}

// ReplaceFile writes path through a temporary file in the same directory and renames it into place.
// The previous content of path stays intact if fill or any write step fails.
func ReplaceFile(path string, fill func(w io.Writer) error) error {
	f, err := CreateAtomic(path)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		f.Abort()
		return err
	}
	return f.Commit()
}

// CopyFile copies src to dst atomically
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	return ReplaceFile(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}
