// Package file implements the local filesystem data source for the ingestion
// pipeline: opening CSV files, streaming them line by line with bounded
// memory, and pre-counting data rows for progress reporting.
package file

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"conductor/internal/cerrors"
)

// maxLineBytes bounds a single physical line. Lines beyond this are a
// parsing problem, not a memory problem.
const maxLineBytes = 4 * 1024 * 1024

// Local is a filesystem data source that opens files from the local disk.
type Local struct{ path string }

// NewLocal returns a new Local data source bound to the provided filesystem
// path. The returned value is safe for concurrent use by multiple goroutines
// as long as the underlying path location is valid for concurrent reads.
func NewLocal(path string) *Local { return &Local{path: path} }

// Path returns the configured filesystem path.
func (l *Local) Path() string { return l.path }

// Open opens the configured path for reading and returns an io.ReadCloser.
//
// Behavior:
//   - If the context is already canceled or its deadline exceeded at the time
//     of the call, Open returns the context error immediately without touching
//     the filesystem.
//   - Directories and missing/unreadable paths yield a classified
//     file-access error; callers can still reach the underlying cause via
//     errors.Is/As (e.g., errors.Is(err, os.ErrNotExist)).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	info, err := os.Stat(l.path)
	if err != nil {
		return nil, cerrors.FileAccess(fmt.Sprintf("cannot access %s", l.path), err)
	}
	if info.IsDir() {
		return nil, cerrors.FileAccess(fmt.Sprintf("%s is a directory, not a file", l.path), nil)
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, cerrors.FileAccess(fmt.Sprintf("cannot open %s", l.path), err)
	}
	return f, nil
}

// Lines streams the file line by line. Each call starts a fresh pass over
// the file. CRLF and LF line endings are handled uniformly; the trailing
// '\r' of a CRLF line is stripped.
type Lines struct {
	rc      io.ReadCloser
	scanner *bufio.Scanner
}

// OpenLines opens the source for line-by-line iteration.
func (l *Local) OpenLines(ctx context.Context) (*Lines, error) {
	rc, err := l.Open(ctx)
	if err != nil {
		return nil, err
	}
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &Lines{rc: rc, scanner: sc}, nil
}

// Next advances to the next line. It returns false at end of file or on a
// read error; consult Err afterwards.
func (ls *Lines) Next() bool { return ls.scanner.Scan() }

// Text returns the current line with any trailing '\r' removed.
func (ls *Lines) Text() string {
	return strings.TrimSuffix(ls.scanner.Text(), "\r")
}

// Err reports the first non-EOF error encountered while scanning.
func (ls *Lines) Err() error {
	if err := ls.scanner.Err(); err != nil {
		return cerrors.FileAccess("read error while streaming file", err)
	}
	return nil
}

// Close releases the underlying file handle.
func (ls *Lines) Close() error { return ls.rc.Close() }

// CountDataLines performs a full pass over the file and returns the number
// of data lines: total lines minus one for the header. This is metadata for
// progress percentages, separate from the main streaming pass.
//
// A file with no lines at all yields a negative data-row count and is
// reported as a file-access error (empty file).
func (l *Local) CountDataLines(ctx context.Context) (int, error) {
	ls, err := l.OpenLines(ctx)
	if err != nil {
		return 0, err
	}
	defer ls.Close()

	total := 0
	for ls.Next() {
		total++
	}
	if err := ls.Err(); err != nil {
		return 0, err
	}

	data := total - 1
	if data < 0 {
		e := cerrors.FileAccess(fmt.Sprintf("%s is empty: no header line found", l.path), nil)
		e.Suggestions = append(e.Suggestions, "provide a file with a header line and at least zero data rows")
		return 0, e.WithDetail("empty", true)
	}
	return data, nil
}
