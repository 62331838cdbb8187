package doctor

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/tradelab/draudit/internal/migrate"
	"github.com/tradelab/draudit/internal/run"
	"github.com/tradelab/draudit/internal/snapshot"
	"github.com/tradelab/draudit/pkg/fsutil"
	"github.com/tradelab/draudit/pkg/model"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
	Line        int    `json:"line,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.Severity == SeverityError || f.Severity == SeverityCritical {
		r.Healthy = false
	}
}

// Doctor performs run health checks.
type Doctor struct {
	run      *run.Run
	migrator *migrate.Migrator
}

// NewDoctor creates a new doctor.
func NewDoctor(r *run.Run) *Doctor {
	return &Doctor{run: r, migrator: migrate.New()}
}

// Check runs all diagnostic checks. Referenced snapshots are always read
// back and re-hashed; strict also re-hashes unreferenced ones.
func (d *Doctor) Check(ctx context.Context, strict bool) (*Result, error) {
	result := &Result{Healthy: true, Findings: []Finding{}}
	if err := d.run.RequireExisting(); err != nil {
		return nil, err
	}

	referenced, err := d.checkLog(ctx, result)
	if err != nil {
		return nil, err
	}
	if err := d.checkSnapshots(ctx, result, referenced, strict); err != nil {
		return nil, err
	}
	d.checkOrphanTmp(result)

	sort.SliceStable(result.Findings, func(i, j int) bool {
		a, b := result.Findings[i], result.Findings[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Description < b.Description
	})
	return result, nil
}

// checkLog reports unreadable lines and returns every referenced hash with
// the first line that references it.
func (d *Doctor) checkLog(ctx context.Context, result *Result) (map[model.HashValue]int, error) {
	referenced := make(map[model.HashValue]int)
	for line, entry := range d.run.Log().Iterate(ctx) {
		if entry.Err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.add(Finding{
				Category:    "log",
				Description: entry.Err.Error(),
				Severity:    SeverityCritical,
				Path:        d.run.LogPath(),
				Line:        line,
			})
			continue
		}
		rec, err := d.migrator.MigrateRecord(entry.Raw)
		if err != nil {
			result.add(Finding{
				Category:    "log",
				Description: fmt.Sprintf("record does not decode: %v", err),
				Severity:    SeverityError,
				Path:        d.run.LogPath(),
				Line:        line,
			})
			continue
		}
		for _, h := range rec.SnapshotHashes {
			if _, ok := referenced[h]; !ok {
				referenced[h] = line
			}
		}
	}
	return referenced, nil
}

func (d *Doctor) checkSnapshots(ctx context.Context, result *Result, referenced map[model.HashValue]int, strict bool) error {
	store, err := d.run.Store()
	if err != nil {
		return err
	}
	stored, err := store.List(ctx)
	if err != nil {
		return err
	}
	have := make(map[model.HashValue]bool, len(stored))
	for _, h := range stored {
		have[h] = true
	}

	for h, line := range referenced {
		if !have[h] {
			result.add(Finding{
				Category:    "snapshot",
				Description: fmt.Sprintf("referenced snapshot %s is missing", h),
				Severity:    SeverityCritical,
				Line:        line,
			})
			continue
		}
		verifySnapshot(ctx, store, result, h, line)
	}

	for _, h := range stored {
		if _, ok := referenced[h]; ok {
			continue
		}
		result.add(Finding{
			Category:    "snapshot",
			Description: fmt.Sprintf("snapshot %s is not referenced by any record", h),
			Severity:    SeverityInfo,
		})
		if strict {
			verifySnapshot(ctx, store, result, h, 0)
		}
	}
	return nil
}

func verifySnapshot(ctx context.Context, store snapshot.Store, result *Result, h model.HashValue, line int) {
	if _, err := store.Get(ctx, h); err != nil {
		result.add(Finding{
			Category:    "snapshot",
			Description: fmt.Sprintf("snapshot %s: %v", h, err),
			Severity:    SeverityCritical,
			Line:        line,
		})
	}
}

func (d *Doctor) checkOrphanTmp(result *Result) {
	filepath.WalkDir(d.run.Dir(), func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() && fsutil.IsTemp(entry.Name()) {
			result.add(Finding{
				Category:    "tmp",
				Description: fmt.Sprintf("orphan temp file: %s", entry.Name()),
				Severity:    SeverityWarning,
				Path:        path,
			})
		}
		return nil
	})
}
