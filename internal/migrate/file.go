package migrate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tradelab/draudit/internal/decisionlog"
	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/fsutil"
	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/logging"
)

// FileResult describes a completed batch migration.
type FileResult struct {
	Source   string `json:"source"`
	Dest     string `json:"dest"`
	Lines    int    `json:"lines"`
	Migrated int    `json:"migrated"`
}

// MigrateFile writes every record of the log at src, migrated, to a new log
// at dst. The source is never modified and dst must not exist. The first
// line that cannot be read or migrated stops the batch and nothing is
// written.
func (m *Migrator) MigrateFile(ctx context.Context, src, dst string) (*FileResult, error) {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return nil, fmt.Errorf("resolve destination: %w", err)
	}
	if absSrc == absDst {
		return nil, errclass.ErrMigration.WithMessage("destination must differ from source; logs are never migrated in place")
	}
	if _, err := os.Stat(absSrc); err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrNotFound.WithMessagef("decision log %s", src)
		}
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if _, err := os.Lstat(absDst); err == nil {
		return nil, errclass.ErrMigration.WithMessagef("destination %s already exists", dst)
	}

	res := &FileResult{Source: src, Dest: dst}
	var buf bytes.Buffer
	for n, entry := range decisionlog.NewFileLog(absSrc).Iterate(ctx) {
		if entry.Err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("line %d: %w", n, entry.Err)
		}
		out, err := m.Migrate(entry.Raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		line, err := jsonutil.Canonicalize(out)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if !out.Equal(entry.Raw) {
			res.Migrated++
		}
		res.Lines++
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(absDst), 0755); err != nil {
		return nil, fmt.Errorf("create destination dir: %w", err)
	}
	created, err := fsutil.AtomicCreate(absDst, buf.Bytes(), 0644)
	if err != nil {
		return nil, fmt.Errorf("write %s: %w", dst, err)
	}
	if !created {
		return nil, errclass.ErrMigration.WithMessagef("destination %s already exists", dst)
	}
	logging.Info("decision log migrated", map[string]any{
		"source":   src,
		"dest":     dst,
		"lines":    res.Lines,
		"migrated": res.Migrated,
	})
	return res, nil
}
