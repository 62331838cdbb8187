// Package migrate upgrades legacy decision records to the current schema.
//
// Only explicit rules are applied. A record of the current major version is
// returned as is, since minor and patch changes never require rewriting.
// A legacy record runs through every rule of its major version in order; a
// rule that cannot decide without guessing fails the whole record.
package migrate

import (
	"fmt"

	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/model"
)

// Rule is one documented, deterministic rewrite step.
type Rule struct {
	Name  string
	Doc   string
	Apply func(rec jsonutil.Value) (jsonutil.Value, error)
}

// Migrator holds the closed rule chains, keyed by the major version they
// upgrade from.
type Migrator struct {
	target model.SchemaVersion
	chains map[int][]Rule
}

// New returns a Migrator targeting model.CurrentSchema with the built-in
// rule chains.
func New() *Migrator {
	return &Migrator{
		target: model.CurrentSchema,
		chains: map[int][]Rule{
			1: V1Rules(),
		},
	}
}

// Rules returns the chain applied to records of the given major version.
func (m *Migrator) Rules(major int) []Rule {
	return m.chains[major]
}

// Migrate returns raw upgraded to the current schema. It never mutates raw
// and the same input always produces the same output or the same error.
func (m *Migrator) Migrate(raw jsonutil.Value) (jsonutil.Value, error) {
	if raw.Kind() != jsonutil.KindObject {
		return jsonutil.Value{}, errclass.ErrMigration.WithMessagef("record must be an object, got %s", raw.Kind())
	}
	vm, ok := raw.Get(model.FieldSchemaVersion)
	if !ok {
		return jsonutil.Value{}, errclass.ErrMigration.WithMessagef("missing %q", model.FieldSchemaVersion)
	}
	text, ok := vm.AsString()
	if !ok {
		return jsonutil.Value{}, errclass.ErrMigration.WithMessagef("%q must be a string", model.FieldSchemaVersion)
	}
	version, err := model.ParseSchemaVersion(text)
	if err != nil {
		return jsonutil.Value{}, errclass.ErrMigration.WithMessage(err.Error())
	}

	switch {
	case version.Major == m.target.Major:
		return raw, nil
	case version.Major > m.target.Major:
		return jsonutil.Value{}, errclass.ErrMigration.WithMessagef(
			"schema %s is newer than supported %s", version, m.target)
	}
	chain, ok := m.chains[version.Major]
	if !ok {
		return jsonutil.Value{}, errclass.ErrMigration.WithMessagef("no migration rules for schema %s", version)
	}

	out := raw
	for _, rule := range chain {
		out, err = rule.Apply(out)
		if err != nil {
			return jsonutil.Value{}, errclass.ErrMigration.WithMessagef("rule %s: %v", rule.Name, err)
		}
	}
	out = out.With(model.FieldSchemaVersion, jsonutil.String(m.target.String()))

	rec, err := model.DecodeRecord(out)
	if err == nil {
		err = rec.Validate()
	}
	if err != nil {
		return jsonutil.Value{}, errclass.ErrMigration.WithMessagef("migrated record is invalid: %v", err)
	}
	return out, nil
}

// MigrateRecord migrates raw and decodes the result.
func (m *Migrator) MigrateRecord(raw jsonutil.Value) (*model.DecisionRecord, error) {
	out, err := m.Migrate(raw)
	if err != nil {
		return nil, err
	}
	rec, err := model.DecodeRecord(out)
	if err != nil {
		return nil, fmt.Errorf("decode migrated record: %w", err)
	}
	return rec, nil
}
