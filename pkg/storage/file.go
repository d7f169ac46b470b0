package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"tweetharvest/pkg/twitter"
)

// OpenMode selects how an output file is opened.
type OpenMode int

const (
	// Truncate discards any previous content
	Truncate OpenMode = iota
	// Append continues after existing content
	Append
)

func (m OpenMode) String() string {
	if m == Append {
		return "append"
	}
	return "truncate"
}

// RecordSink receives fetched records.
type RecordSink interface {
	WriteRecord(ctx context.Context, rec twitter.Record) error
	Close() error
}

// lineFile is an output file with a write buffer flushed after every item.
type lineFile struct {
	path string
	f    *os.File
	w    *bufio.Writer
	sync bool
	// existing is true when Append found earlier content
	existing bool
}

func openLineFile(path string, mode OpenMode, sync bool) (*lineFile, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if mode == Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	lf := &lineFile{path: path, f: f, w: bufio.NewWriter(f), sync: sync}
	if mode == Append {
		if err := lf.terminatePartialLine(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return lf, nil
}

// terminatePartialLine makes sure appended lines never join a line cut
// short by an earlier crash.
func (l *lineFile) terminatePartialLine() error {
	info, err := l.f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", l.path, err)
	}
	if info.Size() == 0 {
		return nil
	}
	l.existing = true

	r, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", l.path, err)
	}
	defer r.Close()

	last := make([]byte, 1)
	if _, err := r.ReadAt(last, info.Size()-1); err != nil && err != io.EOF {
		return fmt.Errorf("failed to read %s: %w", l.path, err)
	}
	if last[0] != '\n' {
		if _, err := l.f.Write([]byte{'\n'}); err != nil {
			return fmt.Errorf("failed to write %s: %w", l.path, err)
		}
	}
	return nil
}

// flush pushes buffered bytes to the file and optionally to disk.
func (l *lineFile) flush() error {
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", l.path, err)
	}
	if l.sync {
		if err := l.f.Sync(); err != nil {
			return fmt.Errorf("failed to sync %s: %w", l.path, err)
		}
	}
	return nil
}

func (l *lineFile) Close() error {
	flushErr := l.w.Flush()
	closeErr := l.f.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to write %s: %w", l.path, flushErr)
	}
	return closeErr
}

// Path returns the file being written.
func (l *lineFile) Path() string {
	return l.path
}
