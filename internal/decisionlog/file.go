package decisionlog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/logging"
	"github.com/tradelab/draudit/pkg/metrics"
	"github.com/tradelab/draudit/pkg/model"
)

// FileLog is a JSONL decision log on disk. Writers are serialized by an
// in-process mutex and an exclusive advisory lock on the file.
type FileLog struct {
	path string
	mu   sync.Mutex
}

// NewFileLog creates a FileLog at path. The file is created on first append.
func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

// Path returns the log file path.
func (l *FileLog) Path() string { return l.path }

// Append implements Log.
func (l *FileLog) Append(ctx context.Context, rec *model.DecisionRecord) error {
	line, err := EncodeLine(rec)
	if err != nil {
		return err
	}
	return l.withLock(ctx, func(f *os.File) error {
		return l.writeLocked(f, line, rec)
	})
}

// AppendAt implements Log.
func (l *FileLog) AppendAt(ctx context.Context, cursor int, rec *model.DecisionRecord) error {
	line, err := EncodeLine(rec)
	if err != nil {
		return err
	}
	return l.withLock(ctx, func(f *os.File) error {
		lines, err := readLines(f)
		if err != nil {
			return err
		}
		write, err := resolveCursor(cursor, len(lines), line, func(n int) ([]byte, error) {
			return lines[n-1], nil
		})
		if err != nil || !write {
			return err
		}
		return l.writeLocked(f, line, rec)
	})
}

// Len implements Log.
func (l *FileLog) Len(ctx context.Context) (int, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open decision log: %w", err)
	}
	defer f.Close()
	lines, err := readLines(f)
	return len(lines), err
}

// Iterate implements Log. Lines are parsed lazily; a malformed line yields
// an ErrCorruption entry and iteration continues with the next line.
func (l *FileLog) Iterate(ctx context.Context) iter.Seq2[int, Entry] {
	return func(yield func(int, Entry) bool) {
		f, err := os.Open(l.path)
		if err != nil {
			if !os.IsNotExist(err) {
				yield(0, Entry{Err: fmt.Errorf("open decision log: %w", err)})
			}
			return
		}
		defer f.Close()

		r := bufio.NewReader(f)
		lineNo := 0
		for {
			if err := ctx.Err(); err != nil {
				yield(lineNo+1, Entry{Line: lineNo + 1, Err: err})
				return
			}
			b, err := r.ReadBytes('\n')
			if len(b) == 0 && err == io.EOF {
				return
			}
			lineNo++
			var e Entry
			switch {
			case err == io.EOF:
				e = Entry{Line: lineNo, Err: errclass.ErrCorruption.WithMessagef(
					"line %d: torn final line without newline", lineNo)}
			case err != nil:
				yield(lineNo, Entry{Line: lineNo, Err: fmt.Errorf("read decision log: %w", err)})
				return
			default:
				e = ParseLine(lineNo, b[:len(b)-1])
			}
			if !yield(lineNo, e) || err == io.EOF {
				return
			}
		}
	}
}

func (l *FileLog) withLock(ctx context.Context, fn func(f *os.File) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create decision log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open decision log: %w", err)
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return fmt.Errorf("lock decision log: %w", err)
	}
	defer unlockFile(f)

	return fn(f)
}

// writeLocked appends line at the end of f. A torn final line left by an
// interrupted writer is terminated first so the new record stays intact.
func (l *FileLog) writeLocked(f *os.File, line []byte, rec *model.DecisionRecord) error {
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	buf := make([]byte, 0, len(line)+2)
	if end > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, end-1); err != nil {
			return fmt.Errorf("read log tail: %w", err)
		}
		if last[0] != '\n' {
			logging.Warn("terminating torn final line before append", map[string]any{"path": l.path})
			buf = append(buf, '\n')
		}
	}
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("write decision record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync decision log: %w", err)
	}
	metrics.Default().RecordAppend()
	logging.Debug("decision record appended", map[string]any{
		"decision_id": rec.DecisionID,
		"core_hash":   string(rec.CoreHash),
	})
	return nil
}

// readLines returns every line of f without newlines, including a torn
// final line.
func readLines(f *os.File) ([][]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to start: %w", err)
	}
	var lines [][]byte
	r := bufio.NewReader(f)
	for {
		b, err := r.ReadBytes('\n')
		if len(b) > 0 {
			if b[len(b)-1] == '\n' {
				b = b[:len(b)-1]
			}
			lines = append(lines, b)
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read decision log: %w", err)
		}
	}
}
