package migrate

import (
	"context"

	"github.com/tradelab/draudit/internal/decisionlog"
	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/model"
)

// FindRecord returns the first record in log with the given decision id,
// migrated to the current schema, and its line number. Lines that cannot
// be read are skipped.
func (m *Migrator) FindRecord(ctx context.Context, log decisionlog.Log, decisionID string) (int, *model.DecisionRecord, error) {
	for line, entry := range log.Iterate(ctx) {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		if entry.Err != nil {
			continue
		}
		id, ok := entry.Raw.Get(model.FieldDecisionID)
		if !ok {
			continue
		}
		if s, _ := id.AsString(); s != decisionID {
			continue
		}
		rec, err := m.MigrateRecord(entry.Raw)
		if err != nil {
			return line, nil, err
		}
		return line, rec, nil
	}
	return 0, nil, errclass.ErrNotFound.WithMessagef("decision %q not in log", decisionID)
}
