package model_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/model"
)

var testHash = model.HashValue(strings.Repeat("ab", 32))

func validRecord() *model.DecisionRecord {
	return &model.DecisionRecord{
		SchemaVersion:  model.CurrentSchema,
		DecisionID:     "d-1",
		Timestamp:      "2026-10-18T09:30:00Z",
		SnapshotHashes: []model.HashValue{testHash},
		Facts:          jsonutil.MustFromAny(map[string]any{"risk_state": "GREEN"}),
	}
}

func TestParseSchemaVersion(t *testing.T) {
	v, err := model.ParseSchemaVersion("2.1.0")
	require.NoError(t, err)
	assert.Equal(t, model.SchemaVersion{Major: 2, Minor: 1}, v)
	assert.Equal(t, "2.1.0", v.String())

	for _, bad := range []string{"", "2", "2.1", "2.1.0.4", "v2.1.0", "2.01.0", "2.-1.0", "a.b.c"} {
		_, err := model.ParseSchemaVersion(bad)
		assert.Error(t, err, bad)
	}
}

func TestSchemaVersion_Compatible(t *testing.T) {
	assert.True(t, model.SchemaVersion{Major: 2, Minor: 9}.Compatible())
	assert.False(t, model.SchemaVersion{Major: 1, Minor: 4}.Compatible())
	assert.False(t, model.SchemaVersion{Major: 3}.Compatible())
}

func TestDecisionRecord_Validate(t *testing.T) {
	require.NoError(t, validRecord().Validate())

	tests := map[string]func(r *model.DecisionRecord){
		"legacy major":   func(r *model.DecisionRecord) { r.SchemaVersion = model.SchemaVersion{Major: 1} },
		"empty id":       func(r *model.DecisionRecord) { r.DecisionID = "" },
		"bad timestamp":  func(r *model.DecisionRecord) { r.Timestamp = "yesterday" },
		"no snapshots":   func(r *model.DecisionRecord) { r.SnapshotHashes = nil },
		"bad hash":       func(r *model.DecisionRecord) { r.SnapshotHashes = []model.HashValue{"ABC"} },
		"facts not obj":  func(r *model.DecisionRecord) { r.Facts = jsonutil.String("GREEN") },
		"empty volatile": func(r *model.DecisionRecord) { r.Volatile = []string{""} },
		"bad core hash":  func(r *model.DecisionRecord) { r.CoreHash = "zz" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			r := validRecord()
			mutate(r)
			err := r.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errclass.ErrRecordInvalid))
		})
	}
}

func TestDecisionRecord_ValueRoundTrip(t *testing.T) {
	r := validRecord()
	r.Volatile = []string{"generated_at"}
	r.CoreHash = testHash

	decoded, err := model.DecodeRecord(r.ToValue())
	require.NoError(t, err)
	assert.Equal(t, r.DecisionID, decoded.DecisionID)
	assert.Equal(t, r.Timestamp, decoded.Timestamp)
	assert.Equal(t, r.SnapshotHashes, decoded.SnapshotHashes)
	assert.Equal(t, r.Volatile, decoded.Volatile)
	assert.Equal(t, r.CoreHash, decoded.CoreHash)
	assert.True(t, r.Facts.Equal(decoded.Facts))
}

func TestDecodeRecord_IgnoresUnknownMembers(t *testing.T) {
	raw := validRecord().ToValue().With("added_in_2_4", jsonutil.Bool(true))
	rec, err := model.DecodeRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, "d-1", rec.DecisionID)
}

func TestDecodeRecord_Rejects(t *testing.T) {
	base := validRecord().ToValue()
	tests := map[string]jsonutil.Value{
		"not object":     jsonutil.Array(),
		"no version":     base.Without(model.FieldSchemaVersion),
		"legacy version": base.With(model.FieldSchemaVersion, jsonutil.String("1.0.0")),
		"id not string":  base.With(model.FieldDecisionID, jsonutil.Int(7)),
		"hashes scalar":  base.With(model.FieldSnapshotHashes, jsonutil.String(string(testHash))),
		"hash not str":   base.With(model.FieldSnapshotHashes, jsonutil.Array(jsonutil.Int(1))),
		"no facts":       base.Without(model.FieldFacts),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := model.DecodeRecord(raw)
			assert.True(t, errors.Is(err, errclass.ErrRecordInvalid), "got %v", err)
		})
	}
}

func TestCoreFacts(t *testing.T) {
	facts := jsonutil.MustFromAny(map[string]any{
		"selection":    map[string]any{"strategy_id": "trend@2", "score": 0.7},
		"risk_state":   "GREEN",
		"action":       "BUY",
		"reason_codes": []any{"R1"},
		"generated_at": "2026-10-18T09:30:00Z",
	})
	core := model.CoreFacts(facts)
	assert.Equal(t, `{"action":"BUY","reason_codes":["R1"],"risk_state":"GREEN","selection":{"strategy_id":"trend@2"}}`, core.String())
}

func TestComparableFacts(t *testing.T) {
	facts := jsonutil.MustFromAny(map[string]any{"a": 1, "meta": map[string]any{"at": "now", "k": 2}})
	out := model.ComparableFacts(facts, []string{"meta.at"})
	assert.Equal(t, `{"a":1,"meta":{"k":2}}`, out.String())
}

func TestAuditSummary_Clean(t *testing.T) {
	s := &model.AuditSummary{Matched: 3}
	assert.True(t, s.Clean())
	s.Errors = 1
	assert.False(t, s.Clean())
}
