// Package draudit is the library API for producers and auditors of
// decision runs.
//
// A producer stores every input snapshot, then records the decision that
// was derived from them:
//
//	c, err := draudit.Open(root, draudit.Options{Run: "2024-06-01"})
//	defer c.Close()
//	h, err := c.PutSnapshot(ctx, bars)
//	rec, err := c.Record(ctx, draudit.RecordInput{Facts: facts, Snapshots: []model.HashValue{h}})
//
// An auditor later replays the run against the decision function:
//
//	summary, err := c.Audit(ctx, fn, model.ModeStrictCore)
//
// # Concurrency Safety
//
//   - PutSnapshot is safe from any number of goroutines and processes.
//   - Record serializes appends through a process-wide mutex and an
//     exclusive file lock, so concurrent producers never interleave lines.
//   - Replay and Audit only read the run.
package draudit
