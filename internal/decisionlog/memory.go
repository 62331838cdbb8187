package decisionlog

import (
	"context"
	"iter"
	"sync"

	"github.com/tradelab/draudit/pkg/model"
)

// MemoryLog is an in-process Log with the same line semantics as FileLog.
type MemoryLog struct {
	mu    sync.Mutex
	lines [][]byte
}

// NewMemoryLog creates an empty MemoryLog.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append implements Log.
func (l *MemoryLog) Append(ctx context.Context, rec *model.DecisionRecord) error {
	line, err := EncodeLine(rec)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
	return nil
}

// AppendAt implements Log.
func (l *MemoryLog) AppendAt(ctx context.Context, cursor int, rec *model.DecisionRecord) error {
	line, err := EncodeLine(rec)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	write, err := resolveCursor(cursor, len(l.lines), line, func(n int) ([]byte, error) {
		return l.lines[n-1], nil
	})
	if err != nil || !write {
		return err
	}
	l.lines = append(l.lines, line)
	return nil
}

// AppendRaw appends a line verbatim, bypassing validation. It is how
// legacy or damaged lines get into a MemoryLog.
func (l *MemoryLog) AppendRaw(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, []byte(line))
}

// Len implements Log.
func (l *MemoryLog) Len(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines), nil
}

// Iterate implements Log. It iterates a snapshot of the lines present when
// iteration starts.
func (l *MemoryLog) Iterate(ctx context.Context) iter.Seq2[int, Entry] {
	l.mu.Lock()
	lines := append([][]byte(nil), l.lines...)
	l.mu.Unlock()
	return func(yield func(int, Entry) bool) {
		for i, line := range lines {
			if err := ctx.Err(); err != nil {
				yield(i+1, Entry{Line: i + 1, Err: err})
				return
			}
			if !yield(i+1, ParseLine(i+1, line)) {
				return
			}
		}
	}
}
