// Package decisionlog implements the append-only decision record log of a
// run. Lines are canonical JSON, one record each, and are never rewritten,
// truncated or reordered.
package decisionlog

import (
	"bytes"
	"context"
	"fmt"
	"iter"

	"github.com/tradelab/draudit/internal/integrity"
	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/model"
)

// FileName is the log's name inside a run directory.
const FileName = "decision_records.jsonl"

// Entry is one line of the log as read back. Raw is the parsed line; it is
// not migrated or validated. Err is set when the line could not be read or
// parsed, in which case Raw is null.
type Entry struct {
	Line int
	Raw  jsonutil.Value
	Err  error
}

// Log is the decision record log contract.
type Log interface {
	// Append validates rec and appends it as one line.
	Append(ctx context.Context, rec *model.DecisionRecord) error
	// AppendAt appends rec only if the log holds exactly cursor lines, or
	// succeeds without writing if line cursor+1 already holds rec. The
	// timestamp is not compared.
	AppendAt(ctx context.Context, cursor int, rec *model.DecisionRecord) error
	// Len returns the number of lines, counting a torn final line.
	Len(ctx context.Context) (int, error)
	// Iterate yields every line in file order, keyed by 1-based line number.
	Iterate(ctx context.Context) iter.Seq2[int, Entry]
}

// EncodeLine validates rec, fills or checks its core hash and returns its
// canonical line without the trailing newline. rec.CoreHash is set when it
// was empty.
func EncodeLine(rec *model.DecisionRecord) ([]byte, error) {
	if rec == nil {
		return nil, errclass.ErrRecordInvalid.WithMessage("nil record")
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	core, err := integrity.ComputeCoreHash(rec.Facts)
	if err != nil {
		return nil, fmt.Errorf("decision %s: %w", rec.DecisionID, err)
	}
	switch rec.CoreHash {
	case "":
		rec.CoreHash = core
	case core:
	default:
		return nil, errclass.ErrRecordInvalid.WithMessagef(
			"decision %s: core_hash %s does not match facts (%s)", rec.DecisionID, rec.CoreHash.Short(), core.Short())
	}
	line, err := jsonutil.Canonicalize(rec.ToValue())
	if err != nil {
		return nil, fmt.Errorf("decision %s: %w", rec.DecisionID, err)
	}
	return line, nil
}

// ParseLine parses one log line into an Entry.
func ParseLine(lineNo int, line []byte) Entry {
	v, err := jsonutil.Parse(line)
	if err != nil {
		return Entry{Line: lineNo, Err: errclass.ErrCorruption.WithMessagef("line %d: %v", lineNo, err)}
	}
	return Entry{Line: lineNo, Raw: v}
}

// sameRecord reports whether two lines hold the same record, ignoring the
// timestamp stamped at append time.
func sameRecord(have, line []byte) bool {
	if bytes.Equal(have, line) {
		return true
	}
	a, err := jsonutil.Parse(have)
	if err != nil || a.Kind() != jsonutil.KindObject {
		return false
	}
	b, err := jsonutil.Parse(line)
	if err != nil || b.Kind() != jsonutil.KindObject {
		return false
	}
	return a.Without(model.FieldTimestamp).Equal(b.Without(model.FieldTimestamp))
}

// resolveCursor decides what AppendAt does against existing lines. existing
// returns line n (1-based) without its newline.
func resolveCursor(cursor, n int, line []byte, existing func(int) ([]byte, error)) (write bool, err error) {
	switch {
	case cursor == n:
		return true, nil
	case cursor >= 0 && cursor < n:
		have, err := existing(cursor + 1)
		if err != nil {
			return false, err
		}
		if sameRecord(have, line) {
			return false, nil
		}
		return false, errclass.ErrCursorConflict.WithMessagef(
			"line %d holds a different record", cursor+1)
	default:
		return false, errclass.ErrCursorConflict.WithMessagef(
			"cursor %d does not match log length %d", cursor, n)
	}
}
