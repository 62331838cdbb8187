package migrate

import (
	"fmt"

	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/model"
)

// Legacy 1.x member names.
const (
	v1SnapshotHash = "snapshot_hash"
	v1Decision     = "decision"
)

// V1Rules is the 1.x to 2.x chain, applied in order.
func V1Rules() []Rule {
	return []Rule{
		{
			Name:  "snapshot-hash-list",
			Doc:   docSnapshotHashList,
			Apply: snapshotHashList,
		},
		{
			Name:  "decision-to-facts",
			Doc:   docDecisionToFacts,
			Apply: decisionToFacts,
		},
		{
			Name:  "strategy-id-derive",
			Doc:   docStrategyIDDerive,
			Apply: deriveStrategyID,
		},
	}
}

const (
	docSnapshotHashList = `The single "snapshot_hash" string becomes the list "snapshot_hashes". ` +
		`If both are present the list must contain the single hash.`
	docDecisionToFacts  = `The "decision" object is renamed to "facts". Having both is an error.`
	docStrategyIDDerive = `An empty or absent facts.selection.strategy_id is derived as ` +
		`"{name}@{version}" from facts.strategy.name and facts.strategy.version. ` +
		`If either is missing or empty the record cannot be migrated.`
)

func snapshotHashList(rec jsonutil.Value) (jsonutil.Value, error) {
	single, ok := rec.Get(v1SnapshotHash)
	if !ok {
		return rec, nil
	}
	h, ok := single.AsString()
	if !ok {
		return jsonutil.Value{}, fmt.Errorf("%q must be a string, got %s", v1SnapshotHash, single.Kind())
	}
	list, ok := rec.Get(model.FieldSnapshotHashes)
	if !ok {
		return rec.Without(v1SnapshotHash).With(model.FieldSnapshotHashes, jsonutil.Array(jsonutil.String(h))), nil
	}
	if list.Kind() != jsonutil.KindArray {
		return jsonutil.Value{}, fmt.Errorf("%q must be an array, got %s", model.FieldSnapshotHashes, list.Kind())
	}
	for _, item := range list.Items() {
		if s, _ := item.AsString(); s == h {
			return rec.Without(v1SnapshotHash), nil
		}
	}
	return jsonutil.Value{}, fmt.Errorf("%q %s is not listed in %q", v1SnapshotHash, h, model.FieldSnapshotHashes)
}

func decisionToFacts(rec jsonutil.Value) (jsonutil.Value, error) {
	legacy, ok := rec.Get(v1Decision)
	if !ok {
		return rec, nil
	}
	if _, both := rec.Get(model.FieldFacts); both {
		return jsonutil.Value{}, fmt.Errorf("both %q and %q are present", v1Decision, model.FieldFacts)
	}
	if legacy.Kind() != jsonutil.KindObject {
		return jsonutil.Value{}, fmt.Errorf("%q must be an object, got %s", v1Decision, legacy.Kind())
	}
	return rec.Without(v1Decision).With(model.FieldFacts, legacy), nil
}

func deriveStrategyID(rec jsonutil.Value) (jsonutil.Value, error) {
	facts, ok := rec.Get(model.FieldFacts)
	if !ok || facts.Kind() != jsonutil.KindObject {
		return jsonutil.Value{}, fmt.Errorf("record has no %q object", model.FieldFacts)
	}
	current, declared := facts.Lookup("selection.strategy_id")
	if declared {
		if s, isStr := current.AsString(); !isStr || s != "" {
			return rec, nil
		}
	}
	// Records that never carried strategy information have nothing to derive.
	if _, ok := facts.Get("strategy"); !ok && !declared {
		return rec, nil
	}
	name := nonEmptyString(facts, "strategy.name")
	version := nonEmptyString(facts, "strategy.version")
	if name == "" || version == "" {
		return jsonutil.Value{}, fmt.Errorf(
			"selection.strategy_id is empty and strategy.name/strategy.version are not both set")
	}
	facts, err := facts.SetPath("selection.strategy_id", jsonutil.String(name+"@"+version))
	if err != nil {
		return jsonutil.Value{}, err
	}
	return rec.With(model.FieldFacts, facts), nil
}

func nonEmptyString(v jsonutil.Value, path string) string {
	m, ok := v.Lookup(path)
	if !ok {
		return ""
	}
	s, _ := m.AsString()
	return s
}
