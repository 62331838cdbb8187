package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/tradelab/draudit/internal/run"
	"github.com/tradelab/draudit/internal/snapshot"
	"github.com/tradelab/draudit/pkg/color"
	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/model"
)

const minHashPrefix = 4

// resolveHash accepts a full hash or a unique prefix of a stored one.
func resolveHash(ctx context.Context, store snapshot.Store, query string) (model.HashValue, error) {
	query = strings.ToLower(query)
	if model.HashValue(query).Valid() {
		return model.HashValue(query), nil
	}
	if len(query) < minHashPrefix {
		return "", errclass.ErrNotFound.WithMessagef("hash prefix %q is shorter than %d characters", query, minHashPrefix)
	}
	hashes, err := store.List(ctx)
	if err != nil {
		return "", err
	}
	var matches []model.HashValue
	for _, h := range hashes {
		if strings.HasPrefix(string(h), query) {
			matches = append(matches, h)
		}
	}
	switch len(matches) {
	case 0:
		return "", errclass.ErrNotFound.WithMessagef("no snapshot matches %q\n%s", query, suggestSnapshots(query, hashes))
	case 1:
		return matches[0], nil
	default:
		short := make([]string, len(matches))
		for i, m := range matches {
			short[i] = color.Hash(m.Short())
		}
		return "", fmt.Errorf("hash prefix %q is ambiguous: %s", query, strings.Join(short, ", "))
	}
}

// suggestSnapshots returns a hint for a hash that matched nothing.
func suggestSnapshots(query string, hashes []model.HashValue) string {
	if len(hashes) == 0 {
		return "The run has no snapshots yet."
	}
	// closest by shared prefix length
	best, bestLen := model.HashValue(""), 0
	for _, h := range hashes {
		n := commonPrefix(string(h), query)
		if n > bestLen {
			best, bestLen = h, n
		}
	}
	if bestLen >= 2 {
		return fmt.Sprintf("Did you mean %s?", color.Hash(best.Short()))
	}
	return fmt.Sprintf("Run %s to see available snapshots.", color.Info("draudit snapshot ls"))
}

// suggestRuns lists the runs that do exist under root.
func suggestRuns(root string) string {
	names, err := run.List(root)
	if err != nil || len(names) == 0 {
		return "No runs exist yet; record a decision first."
	}
	return fmt.Sprintf("Available runs: %s", strings.Join(names, ", "))
}

func commonPrefix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
