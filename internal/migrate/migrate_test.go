package migrate_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelab/draudit/internal/decisionlog"
	"github.com/tradelab/draudit/internal/migrate"
	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/model"
)

var h1 = strings.Repeat("a1", 32)

func parse(t *testing.T, s string) jsonutil.Value {
	t.Helper()
	v, err := jsonutil.Parse([]byte(s))
	require.NoError(t, err)
	return v
}

func legacy(t *testing.T, decision string) jsonutil.Value {
	return parse(t, `{"schema_version":"1.2.0","decision_id":"d-1","timestamp":"2024-01-02T03:04:05Z",`+
		`"snapshot_hash":"`+h1+`","decision":`+decision+`}`)
}

func TestMigrate_CurrentMajorUnchanged(t *testing.T) {
	m := migrate.New()
	raw := parse(t, `{"schema_version":"2.0.3","decision_id":"d-1","snapshot_hashes":["`+h1+`"],`+
		`"facts":{"selection":{"strategy_id":""}},"future_field":true}`)
	out, err := m.Migrate(raw)
	require.NoError(t, err)
	assert.True(t, out.Equal(raw))
}

func TestMigrate_V1DerivesStrategyID(t *testing.T) {
	m := migrate.New()
	out, err := m.Migrate(legacy(t, `{"strategy":{"name":"trend","version":"1.4"},"risk_state":"GREEN"}`))
	require.NoError(t, err)

	rec, err := model.DecodeRecord(out)
	require.NoError(t, err)
	assert.Equal(t, model.CurrentSchema, rec.SchemaVersion)
	assert.Equal(t, []model.HashValue{model.HashValue(h1)}, rec.SnapshotHashes)

	id, ok := rec.Facts.Lookup("selection.strategy_id")
	require.True(t, ok)
	s, _ := id.AsString()
	assert.Equal(t, "trend@1.4", s)

	_, ok = out.Get("snapshot_hash")
	assert.False(t, ok)
	_, ok = out.Get("decision")
	assert.False(t, ok)
}

func TestMigrate_V1KeepsExistingStrategyID(t *testing.T) {
	m := migrate.New()
	rec, err := m.MigrateRecord(legacy(t, `{"selection":{"strategy_id":"mr@2"},"strategy":{"name":"trend","version":"1.4"}}`))
	require.NoError(t, err)
	id, _ := rec.Facts.Lookup("selection.strategy_id")
	s, _ := id.AsString()
	assert.Equal(t, "mr@2", s)
}

func TestMigrate_V1WithoutStrategyInfo(t *testing.T) {
	m := migrate.New()
	rec, err := m.MigrateRecord(legacy(t, `{"risk_state":"RED","action":"FLAT"}`))
	require.NoError(t, err)
	_, ok := rec.Facts.Lookup("selection.strategy_id")
	assert.False(t, ok)
	assert.Equal(t, model.CurrentSchema, rec.SchemaVersion)
}

func TestMigrate_V1Failures(t *testing.T) {
	m := migrate.New()
	tests := []struct {
		name string
		raw  string
	}{
		{"missing strategy version", `{"schema_version":"1.0.0","decision_id":"d","snapshot_hash":"` + h1 +
			`","decision":{"strategy":{"name":"trend"}}}`},
		{"empty strategy id without source", `{"schema_version":"1.0.0","decision_id":"d","snapshot_hash":"` + h1 +
			`","decision":{"selection":{"strategy_id":""}}}`},
		{"empty strategy name", `{"schema_version":"1.0.0","decision_id":"d","snapshot_hash":"` + h1 +
			`","decision":{"strategy":{"name":"","version":"1"}}}`},
		{"no facts at all", `{"schema_version":"1.0.0","decision_id":"d","snapshot_hash":"` + h1 + `"}`},
		{"decision and facts", `{"schema_version":"1.0.0","decision_id":"d","snapshot_hash":"` + h1 +
			`","decision":{},"facts":{}}`},
		{"inconsistent hashes", `{"schema_version":"1.0.0","decision_id":"d","snapshot_hash":"` + h1 +
			`","snapshot_hashes":["` + strings.Repeat("b2", 32) + `"],"decision":{"selection":{"strategy_id":"x@1"}}}`},
		{"missing version", `{"decision_id":"d"}`},
		{"malformed version", `{"schema_version":"v1"}`},
		{"future major", `{"schema_version":"3.0.0"}`},
		{"major zero", `{"schema_version":"0.9.0"}`},
		{"not an object", `["schema_version"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Migrate(parse(t, tt.raw))
			assert.ErrorIs(t, err, errclass.ErrMigration)
		})
	}
}

func TestMigrate_Deterministic(t *testing.T) {
	m := migrate.New()
	in := legacy(t, `{"strategy":{"name":"trend","version":"1.4"},"reason_codes":["A","B"]}`)
	a, errA := m.Migrate(in)
	b, errB := migrate.New().Migrate(in)
	require.NoError(t, errA)
	require.NoError(t, errB)
	ca, _ := jsonutil.Canonicalize(a)
	cb, _ := jsonutil.Canonicalize(b)
	assert.Equal(t, string(ca), string(cb))

	bad := legacy(t, `{"strategy":{"name":"trend"}}`)
	_, e1 := m.Migrate(bad)
	_, e2 := m.Migrate(bad)
	require.Error(t, e1)
	assert.Equal(t, e1.Error(), e2.Error())
}

func TestMigrate_DoesNotMutateInput(t *testing.T) {
	in := legacy(t, `{"strategy":{"name":"trend","version":"1.4"}}`)
	before, _ := jsonutil.Canonicalize(in)
	_, err := migrate.New().Migrate(in)
	require.NoError(t, err)
	after, _ := jsonutil.Canonicalize(in)
	assert.Equal(t, string(before), string(after))
}

func TestRules_Documented(t *testing.T) {
	rules := migrate.New().Rules(1)
	require.Len(t, rules, 3)
	for _, r := range rules {
		assert.NotEmpty(t, r.Name)
		assert.NotEmpty(t, r.Doc)
	}
	assert.Empty(t, migrate.New().Rules(2))
}

func writeLog(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
}

func TestMigrateFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "old.jsonl")
	dst := filepath.Join(dir, "new", "decision_records.jsonl")
	writeLog(t, src,
		`{"schema_version":"1.0.0","decision_id":"d-1","snapshot_hash":"`+h1+`","decision":{"strategy":{"name":"a","version":"1"}}}`,
		`{"schema_version":"2.1.0","decision_id":"d-2","snapshot_hashes":["`+h1+`"],"facts":{}}`,
	)
	before, err := os.ReadFile(src)
	require.NoError(t, err)

	res, err := migrate.New().MigrateFile(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Lines)
	assert.Equal(t, 1, res.Migrated)

	after, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"strategy_id":"a@1"`)
	assert.Contains(t, lines[0], `"schema_version":"2.1.0"`)
}

func TestMigrateFile_FailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "old.jsonl")
	dst := filepath.Join(dir, "new.jsonl")
	writeLog(t, src,
		`{"schema_version":"1.0.0","decision_id":"d-1","snapshot_hash":"`+h1+`","decision":{"strategy":{"name":"a","version":"1"}}}`,
		`{"schema_version":"1.0.0","decision_id":"d-2","snapshot_hash":"`+h1+`","decision":{}}`,
	)

	_, err := migrate.New().MigrateFile(context.Background(), src, dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, errclass.ErrMigration)
	assert.Contains(t, err.Error(), "line 2")

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}

func TestMigrateFile_CorruptLineStops(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "old.jsonl")
	writeLog(t, src, `{broken`)
	_, err := migrate.New().MigrateFile(context.Background(), src, filepath.Join(dir, "new.jsonl"))
	assert.ErrorIs(t, err, errclass.ErrCorruption)
}

func TestMigrateFile_RefusesInPlaceAndExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "old.jsonl")
	writeLog(t, src, `{"schema_version":"2.1.0","decision_id":"d","snapshot_hashes":["`+h1+`"],"facts":{}}`)
	m := migrate.New()

	_, err := m.MigrateFile(context.Background(), src, src)
	assert.ErrorIs(t, err, errclass.ErrMigration)

	existing := filepath.Join(dir, "exists.jsonl")
	require.NoError(t, os.WriteFile(existing, []byte("keep\n"), 0644))
	_, err = m.MigrateFile(context.Background(), src, existing)
	assert.ErrorIs(t, err, errclass.ErrMigration)
	data, _ := os.ReadFile(existing)
	assert.Equal(t, "keep\n", string(data))

	_, err = m.MigrateFile(context.Background(), filepath.Join(dir, "absent.jsonl"), filepath.Join(dir, "x.jsonl"))
	assert.ErrorIs(t, err, errclass.ErrNotFound)
}

func TestFindRecord(t *testing.T) {
	ctx := context.Background()
	log := decisionlog.NewMemoryLog()
	log.AppendRaw(`{"decision_id":"broken"`)
	log.AppendRaw(`{"schema_version":"1.0.0","decision_id":"legacy","snapshot_hash":"` + h1 + `","decision":{"strategy":{"name":"trend","version":"1.4"},"action":"HOLD"}}`)

	line, rec, err := migrate.New().FindRecord(ctx, log, "legacy")
	require.NoError(t, err)
	assert.Equal(t, 2, line)
	assert.Equal(t, model.CurrentSchema, rec.SchemaVersion)
	assert.Equal(t, []model.HashValue{model.HashValue(h1)}, rec.SnapshotHashes)

	_, _, err = migrate.New().FindRecord(ctx, log, "absent")
	assert.ErrorIs(t, err, errclass.ErrNotFound)
}
