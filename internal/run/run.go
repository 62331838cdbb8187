// Package run maps a named audit run onto its directory layout:
//
//	<root>/runs/<name>/decision_records.jsonl
//	<root>/runs/<name>/snapshots/snapshot_<hash>.json   (file backend)
//	<root>/runs/<name>/snapshots.db                     (sqlite backend)
//	<root>/runs/<name>/audit_summary.json
package run

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tradelab/draudit/internal/auditreport"
	"github.com/tradelab/draudit/internal/decisionlog"
	"github.com/tradelab/draudit/internal/snapshot"
	"github.com/tradelab/draudit/pkg/config"
	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/pathutil"
)

const (
	RunsDirName      = "runs"
	SnapshotsDirName = "snapshots"
	SQLiteFileName   = "snapshots.db"
	DefaultName      = "default"
)

// Run is one named run under a root directory.
type Run struct {
	Root    string
	Name    string
	Backend string

	store  snapshot.Store
	closer func() error
}

// Open resolves the run name under root. Nothing is created until a
// store or log is written.
func Open(root, name, backend string) (*Run, error) {
	if name == "" {
		name = DefaultName
	}
	if err := pathutil.ValidateName(name); err != nil {
		return nil, err
	}
	switch backend {
	case "":
		backend = config.BackendFile
	case config.BackendFile, config.BackendSQLite:
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", backend)
	}
	r := &Run{Root: root, Name: name, Backend: backend}
	if _, err := os.Stat(root); err == nil {
		if err := pathutil.ValidatePathSafety(root, r.Dir()); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Dir returns the run directory.
func (r *Run) Dir() string {
	return filepath.Join(r.Root, RunsDirName, r.Name)
}

// LogPath returns the decision log path.
func (r *Run) LogPath() string {
	return filepath.Join(r.Dir(), decisionlog.FileName)
}

// SnapshotsDir returns the file backend's snapshot directory.
func (r *Run) SnapshotsDir() string {
	return filepath.Join(r.Dir(), SnapshotsDirName)
}

// SQLitePath returns the sqlite backend's database path.
func (r *Run) SQLitePath() string {
	return filepath.Join(r.Dir(), SQLiteFileName)
}

// SummaryPath returns where the audit summary is written.
func (r *Run) SummaryPath() string {
	return filepath.Join(r.Dir(), auditreport.SummaryFileName)
}

// Exists reports whether the run directory exists.
func (r *Run) Exists() bool {
	info, err := os.Stat(r.Dir())
	return err == nil && info.IsDir()
}

// Log returns the run's decision log.
func (r *Run) Log() *decisionlog.FileLog {
	return decisionlog.NewFileLog(r.LogPath())
}

// Store opens the snapshot store for the configured backend. The store is
// cached; Close releases it.
func (r *Run) Store() (snapshot.Store, error) {
	if r.store != nil {
		return r.store, nil
	}
	switch r.Backend {
	case config.BackendSQLite:
		s, err := snapshot.OpenSQLiteStore(r.SQLitePath())
		if err != nil {
			return nil, err
		}
		r.store, r.closer = s, s.Close
	default:
		r.store = snapshot.NewFileStore(r.SnapshotsDir())
	}
	return r.store, nil
}

// Close releases the store if one was opened.
func (r *Run) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer()
	r.store, r.closer = nil, nil
	return err
}

// List returns the names of all runs under root, sorted.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, RunsDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && pathutil.ValidateName(e.Name()) == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// RequireExisting returns ErrNotFound when the run directory is missing.
func (r *Run) RequireExisting() error {
	if !r.Exists() {
		return errclass.ErrNotFound.WithMessagef("run %q not found under %s", r.Name, r.Root)
	}
	return nil
}
