// Package auditreport replays a whole run and folds the results into the
// run's audit summary.
package auditreport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tradelab/draudit/internal/decisionlog"
	"github.com/tradelab/draudit/internal/migrate"
	"github.com/tradelab/draudit/internal/replay"
	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/fsutil"
	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/logging"
	"github.com/tradelab/draudit/pkg/metrics"
	"github.com/tradelab/draudit/pkg/model"
	"github.com/tradelab/draudit/pkg/progress"
)

// SummaryFileName is the summary's name inside a run directory.
const SummaryFileName = "audit_summary.json"

// DefaultWorkers is the replay parallelism when none is configured.
const DefaultWorkers = 4

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithWorkers sets how many records are replayed concurrently.
func WithWorkers(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithRun names the run in the summary.
func WithRun(name string) Option {
	return func(a *Aggregator) { a.run = name }
}

// WithProgress reports each finished record.
func WithProgress(cb progress.Callback) Option {
	return func(a *Aggregator) {
		if cb != nil {
			a.progress = cb
		}
	}
}

// WithMigrator replaces the default migrator.
func WithMigrator(m *migrate.Migrator) Option {
	return func(a *Aggregator) { a.migrator = m }
}

// Aggregator audits every record of a decision log.
type Aggregator struct {
	log      decisionlog.Log
	verifier *replay.Verifier
	migrator *migrate.Migrator
	workers  int
	run      string
	progress progress.Callback
}

// New creates an Aggregator over log, replaying through verifier.
func New(log decisionlog.Log, verifier *replay.Verifier, opts ...Option) *Aggregator {
	a := &Aggregator{
		log:      log,
		verifier: verifier,
		migrator: migrate.New(),
		workers:  DefaultWorkers,
		progress: progress.Noop,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type job struct {
	line int
	rec  *model.DecisionRecord
}

// collector accumulates outcomes from concurrent workers.
type collector struct {
	mu      sync.Mutex
	summary model.AuditSummary
	done    int
	total   int
	cb      progress.Callback
}

func (c *collector) add(line int, decisionID string, outcome model.Outcome, off *model.OffendingRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary.TotalRecords++
	switch outcome {
	case model.OutcomeMatch:
		c.summary.Matched++
	case model.OutcomeMismatch:
		c.summary.Mismatched++
	case model.OutcomeHashMismatch:
		c.summary.HashMismatch++
	default:
		c.summary.Errors++
	}
	if off != nil {
		c.summary.OffendingRecords = append(c.summary.OffendingRecords, *off)
	}
	c.done++
	c.cb("audit", c.done, c.total, decisionID)
}

func (c *collector) fail(line int, decisionID string, err error) {
	c.add(line, decisionID, model.OutcomeError, &model.OffendingRecord{
		Line:       line,
		DecisionID: decisionID,
		Kind:       model.OutcomeError,
		Detail:     err.Error(),
	})
}

// Audit replays every line of the log with fn in mode. Unreadable,
// unmigratable and invalid lines are counted as errors; nothing is skipped
// silently. When ctx is cancelled Audit returns ctx.Err() and no summary.
func (a *Aggregator) Audit(ctx context.Context, fn replay.DecisionFunc, mode model.ReplayMode) (*model.AuditSummary, error) {
	if mode != model.ModeStrictCore && mode != model.ModeStrictFull {
		return nil, errclass.ErrReplay.WithMessagef("unknown replay mode %q", mode)
	}
	total, err := a.log.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("count decision records: %w", err)
	}

	c := &collector{total: total, cb: a.progress}
	c.summary.Run = a.run
	c.summary.Mode = mode

	jobs := make(chan job)
	var wg sync.WaitGroup
	for i := 0; i < a.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res := a.verifier.Verify(ctx, j.rec, fn, mode)
				res.Line = j.line
				var off *model.OffendingRecord
				if res.Outcome != model.OutcomeMatch {
					o := res.Offending()
					off = &o
				}
				c.add(j.line, res.DecisionID, res.Outcome, off)
			}
		}()
	}

	for line, entry := range a.log.Iterate(ctx) {
		if ctx.Err() != nil {
			break
		}
		if entry.Err != nil {
			c.fail(line, "", entry.Err)
			continue
		}
		rec, err := a.decode(entry.Raw)
		if err != nil {
			c.fail(line, decisionIDOf(entry.Raw), err)
			continue
		}
		select {
		case jobs <- job{line: line, rec: rec}:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := c.summary
	sort.Slice(s.OffendingRecords, func(i, j int) bool {
		return s.OffendingRecords[i].Line < s.OffendingRecords[j].Line
	})
	if s.OffendingRecords == nil {
		s.OffendingRecords = []model.OffendingRecord{}
	}
	s.Accepted = s.Clean()

	metrics.Default().RecordAudit(s.Accepted)
	logging.Info("audit finished", map[string]any{
		"run":           s.Run,
		"mode":          string(s.Mode),
		"total_records": s.TotalRecords,
		"matched":       s.Matched,
		"mismatched":    s.Mismatched,
		"hash_mismatch": s.HashMismatch,
		"errors":        s.Errors,
		"accepted":      s.Accepted,
	})
	return &s, nil
}

// decode migrates a raw line in memory and validates the result.
func (a *Aggregator) decode(raw jsonutil.Value) (*model.DecisionRecord, error) {
	rec, err := a.migrator.MigrateRecord(raw)
	if err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func decisionIDOf(raw jsonutil.Value) string {
	v, ok := raw.Get(model.FieldDecisionID)
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

// WriteSummary writes s to path as canonical JSON, replacing any previous
// summary atomically.
func WriteSummary(path string, s *model.AuditSummary) error {
	data, err := EncodeSummary(s)
	if err != nil {
		return err
	}
	if err := fsutil.AtomicWrite(path, data, 0644); err != nil {
		return fmt.Errorf("write audit summary: %w", err)
	}
	return nil
}

// EncodeSummary returns the canonical bytes of s.
func EncodeSummary(s *model.AuditSummary) ([]byte, error) {
	out := *s
	if out.OffendingRecords == nil {
		out.OffendingRecords = []model.OffendingRecord{}
	}
	data, err := jsonutil.CanonicalMarshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encode audit summary: %w", err)
	}
	return data, nil
}
