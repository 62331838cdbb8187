package draudit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tradelab/draudit/internal/auditreport"
	"github.com/tradelab/draudit/internal/migrate"
	"github.com/tradelab/draudit/internal/replay"
	"github.com/tradelab/draudit/internal/run"
	"github.com/tradelab/draudit/pkg/config"
	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/model"
	"github.com/tradelab/draudit/pkg/progress"
)

// Client provides producer and auditor operations on one run.
type Client struct {
	run      *run.Run
	cfg      *config.Config
	migrator *migrate.Migrator
	timeout  time.Duration
	progress progress.Callback
	now      func() time.Time
}

// Options configures Open. Zero fields fall back to <root>/draudit.yaml.
type Options struct {
	Run      string            // run name; defaults to "default"
	Backend  string            // "file" or "sqlite"
	Timeout  time.Duration     // decision function timeout
	Workers  int               // audit workers
	Progress progress.Callback // audit progress
	Now      func() time.Time  // record timestamps; defaults to time.Now
}

// Open opens (or lazily creates) a run under root.
func Open(root string, opts Options) (*Client, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("draudit open: %w", err)
	}
	if opts.Backend != "" {
		cfg.SnapshotBackend = opts.Backend
	}
	if opts.Workers > 0 {
		cfg.AuditWorkers = opts.Workers
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		if timeout, err = cfg.ReplayTimeoutDuration(); err != nil {
			return nil, err
		}
	}
	r, err := run.Open(root, opts.Run, cfg.SnapshotBackend)
	if err != nil {
		return nil, fmt.Errorf("draudit open: %w", err)
	}
	cb := opts.Progress
	if cb == nil {
		cb = progress.Noop
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		run:      r,
		cfg:      cfg,
		migrator: migrate.New(),
		timeout:  timeout,
		progress: cb,
		now:      now,
	}, nil
}

// Close releases the snapshot store.
func (c *Client) Close() error {
	return c.run.Close()
}

// Run returns the underlying run layout.
func (c *Client) Run() *run.Run {
	return c.run
}

// NewDecisionID returns a fresh random decision identifier.
func NewDecisionID() string {
	return uuid.NewString()
}

// PutSnapshot stores payload, which may be a jsonutil.Value or any value
// encoding/json can represent, and returns its content hash.
func (c *Client) PutSnapshot(ctx context.Context, payload any) (model.HashValue, error) {
	v, err := toValue(payload)
	if err != nil {
		return "", err
	}
	store, err := c.run.Store()
	if err != nil {
		return "", err
	}
	return store.Put(ctx, v)
}

// GetSnapshot reads and verifies a stored snapshot.
func (c *Client) GetSnapshot(ctx context.Context, h model.HashValue) (jsonutil.Value, error) {
	store, err := c.run.Store()
	if err != nil {
		return jsonutil.Value{}, err
	}
	return store.Get(ctx, h)
}

// RecordInput describes one decision to append.
type RecordInput struct {
	DecisionID string            // generated when empty
	Facts      any               // decision facts object
	Snapshots  []model.HashValue // hashes returned by PutSnapshot
	Volatile   []string          // fact paths ignored by strict-full replay
	Cursor     *int              // resume position; nil appends at the end
}

// Record appends a decision. Every referenced snapshot must already be
// stored. Retrying the same input at the same cursor is a no-op even
// though the retry carries a newer timestamp.
func (c *Client) Record(ctx context.Context, in RecordInput) (*model.DecisionRecord, error) {
	facts, err := toValue(in.Facts)
	if err != nil {
		return nil, err
	}
	store, err := c.run.Store()
	if err != nil {
		return nil, err
	}
	for _, h := range in.Snapshots {
		ok, err := store.Exists(ctx, h)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errclass.ErrNotFound.WithMessagef("record references unstored snapshot %s", h)
		}
	}
	id := in.DecisionID
	if id == "" {
		id = NewDecisionID()
	}
	rec := &model.DecisionRecord{
		SchemaVersion:  model.CurrentSchema,
		DecisionID:     id,
		Timestamp:      c.now().UTC().Format(time.RFC3339),
		SnapshotHashes: in.Snapshots,
		Facts:          facts,
		Volatile:       in.Volatile,
	}
	log := c.run.Log()
	if in.Cursor != nil {
		err = log.AppendAt(ctx, *in.Cursor, rec)
	} else {
		err = log.Append(ctx, rec)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Replay re-runs the decision with the given id.
func (c *Client) Replay(ctx context.Context, decisionID string, fn replay.DecisionFunc, mode model.ReplayMode) (*replay.Result, error) {
	line, rec, err := c.migrator.FindRecord(ctx, c.run.Log(), decisionID)
	if err != nil {
		return nil, err
	}
	store, err := c.run.Store()
	if err != nil {
		return nil, err
	}
	res := replay.NewVerifier(store, replay.WithTimeout(c.timeout)).Verify(ctx, rec, fn, mode)
	res.Line = line
	return res, nil
}

// Audit replays the whole run and writes audit_summary.json.
func (c *Client) Audit(ctx context.Context, fn replay.DecisionFunc, mode model.ReplayMode) (*model.AuditSummary, error) {
	store, err := c.run.Store()
	if err != nil {
		return nil, err
	}
	agg := auditreport.New(c.run.Log(), replay.NewVerifier(store, replay.WithTimeout(c.timeout)),
		auditreport.WithWorkers(c.cfg.AuditWorkers),
		auditreport.WithRun(c.run.Name),
		auditreport.WithMigrator(c.migrator),
		auditreport.WithProgress(c.progress),
	)
	s, err := agg.Audit(ctx, fn, mode)
	if err != nil {
		return nil, err
	}
	if err := auditreport.WriteSummary(c.run.SummaryPath(), s); err != nil {
		return nil, err
	}
	return s, nil
}

func toValue(v any) (jsonutil.Value, error) {
	if jv, ok := v.(jsonutil.Value); ok {
		return jv, nil
	}
	return jsonutil.FromAny(v)
}
