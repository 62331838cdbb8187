// Package replay recomputes recorded decisions from their stored snapshots
// and checks that the recomputed facts are bit-exact.
package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradelab/draudit/internal/diff"
	"github.com/tradelab/draudit/internal/integrity"
	"github.com/tradelab/draudit/internal/snapshot"
	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/logging"
	"github.com/tradelab/draudit/pkg/metrics"
	"github.com/tradelab/draudit/pkg/model"
)

// DefaultTimeout bounds a single decision function call.
const DefaultTimeout = 30 * time.Second

// DecisionFunc recomputes decision facts from the snapshots a record
// references, in record order. It must honor ctx.
type DecisionFunc func(ctx context.Context, snapshots []jsonutil.Value) (jsonutil.Value, error)

// Result contains the outcome of replaying one record.
type Result struct {
	Line         int              `json:"line,omitempty"`
	DecisionID   string           `json:"decision_id"`
	Mode         model.ReplayMode `json:"mode"`
	Outcome      model.Outcome    `json:"outcome"`
	Detail       string           `json:"detail,omitempty"`
	SnapshotHash model.HashValue  `json:"snapshot_hash,omitempty"`
	Diff         *diff.Result     `json:"diff,omitempty"`
	Duration     time.Duration    `json:"-"`
	// Err is the classified error behind an error or hash_mismatch outcome.
	Err error `json:"-"`
}

// Offending converts a non-matching result into a summary entry.
func (r *Result) Offending() model.OffendingRecord {
	o := model.OffendingRecord{
		Line:         r.Line,
		DecisionID:   r.DecisionID,
		Kind:         r.Outcome,
		Detail:       r.Detail,
		SnapshotHash: r.SnapshotHash,
	}
	if r.Diff != nil {
		o.Diff = r.Diff.Lines()
	}
	return o
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithTimeout sets the per-call decision function timeout.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// Verifier replays records against a snapshot store. It only reads and is
// safe for concurrent use.
type Verifier struct {
	store   snapshot.Store
	timeout time.Duration
}

// NewVerifier creates a Verifier reading snapshots from store.
func NewVerifier(store snapshot.Store, opts ...Option) *Verifier {
	v := &Verifier{store: store, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Timeout returns the decision function timeout.
func (v *Verifier) Timeout() time.Duration { return v.timeout }

// Verify replays rec with fn and compares in mode. Failures are reported in
// the Result rather than returned, so one bad record never stops a run.
func (v *Verifier) Verify(ctx context.Context, rec *model.DecisionRecord, fn DecisionFunc, mode model.ReplayMode) *Result {
	start := time.Now()
	res := v.verify(ctx, rec, fn, mode)
	res.Duration = time.Since(start)

	metrics.Default().RecordReplay(string(res.Outcome), res.Duration)
	logging.Debug("decision replayed", map[string]any{
		"decision_id": res.DecisionID,
		"mode":        string(mode),
		"outcome":     string(res.Outcome),
	})
	return res
}

func (v *Verifier) verify(ctx context.Context, rec *model.DecisionRecord, fn DecisionFunc, mode model.ReplayMode) *Result {
	res := &Result{DecisionID: rec.DecisionID, Mode: mode}
	if mode != model.ModeStrictCore && mode != model.ModeStrictFull {
		return res.fail(model.OutcomeError, errclass.ErrReplay.WithMessagef("unknown replay mode %q", mode))
	}
	if fn == nil {
		return res.fail(model.OutcomeError, errclass.ErrReplay.WithMessage("no decision function"))
	}

	if rec.CoreHash != "" {
		core, err := integrity.ComputeCoreHash(rec.Facts)
		if err != nil {
			return res.fail(model.OutcomeError, err)
		}
		if core != rec.CoreHash {
			return res.fail(model.OutcomeHashMismatch, errclass.ErrHashMismatch.WithMessagef(
				"recorded core_hash %s does not match recorded facts (%s)", rec.CoreHash.Short(), core.Short()))
		}
	}

	if mode == model.ModeStrictCore && model.CoreFacts(rec.Facts).Len() == 0 {
		return res.fail(model.OutcomeError, errclass.ErrReplay.WithMessagef(
			"decision %s records none of the core facts %v", rec.DecisionID, model.CorePaths))
	}

	snaps := make([]jsonutil.Value, 0, len(rec.SnapshotHashes))
	for _, h := range rec.SnapshotHashes {
		payload, err := v.store.Get(ctx, h)
		if err != nil {
			res.SnapshotHash = h
			if errors.Is(err, errclass.ErrHashMismatch) {
				return res.fail(model.OutcomeHashMismatch, err)
			}
			return res.fail(model.OutcomeError, err)
		}
		snaps = append(snaps, payload)
	}

	recomputed, err := v.invoke(ctx, fn, snaps)
	if err != nil {
		return res.fail(model.OutcomeError, errclass.ErrReplay.WithMessage(err.Error()))
	}
	if recomputed.Kind() != jsonutil.KindObject {
		return res.fail(model.OutcomeError, errclass.ErrReplay.WithMessagef(
			"decision function returned %s, want object", recomputed.Kind()))
	}

	recorded, got := Comparable(rec, recomputed, mode)
	if recorded.Equal(got) {
		res.Outcome = model.OutcomeMatch
		return res
	}
	res.Outcome = model.OutcomeMismatch
	res.Diff = diff.Diff(recorded, got)
	res.Detail = fmt.Sprintf("%s facts differ at %v", mode, res.Diff.Paths())
	return res
}

// Comparable returns the recorded and recomputed facts reduced to what mode
// compares.
func Comparable(rec *model.DecisionRecord, recomputed jsonutil.Value, mode model.ReplayMode) (jsonutil.Value, jsonutil.Value) {
	if mode == model.ModeStrictCore {
		return model.CoreFacts(rec.Facts), model.CoreFacts(recomputed)
	}
	return model.ComparableFacts(rec.Facts, rec.Volatile), model.ComparableFacts(recomputed, rec.Volatile)
}

func (r *Result) fail(outcome model.Outcome, err error) *Result {
	r.Outcome = outcome
	r.Err = err
	r.Detail = err.Error()
	return r
}

// invoke runs fn on its own goroutine under the verifier timeout. A panic in
// fn is recovered and reported as an error. On timeout the goroutine is
// abandoned; fn is expected to observe ctx.
func (v *Verifier) invoke(ctx context.Context, fn DecisionFunc, snaps []jsonutil.Value) (jsonutil.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	type outcome struct {
		facts jsonutil.Value
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("decision function panicked: %v", p)}
			}
		}()
		facts, err := fn(ctx, snaps)
		done <- outcome{facts: facts, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return jsonutil.Value{}, fmt.Errorf("decision function timed out after %s", v.timeout)
			}
			return jsonutil.Value{}, fmt.Errorf("decision function failed: %w", o.err)
		}
		return o.facts, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return jsonutil.Value{}, fmt.Errorf("decision function timed out after %s", v.timeout)
		}
		return jsonutil.Value{}, ctx.Err()
	}
}
