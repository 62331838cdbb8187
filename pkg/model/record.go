package model

import (
	"fmt"
	"time"

	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/pathutil"
)

// Record member names.
const (
	FieldSchemaVersion  = "schema_version"
	FieldDecisionID     = "decision_id"
	FieldTimestamp      = "timestamp"
	FieldSnapshotHashes = "snapshot_hashes"
	FieldFacts          = "facts"
	FieldVolatile       = "volatile"
	FieldCoreHash       = "core_hash"
)

// CorePaths are the fact paths compared in strict-core replay: selected
// strategy, risk state, permission, action and reason codes.
var CorePaths = []string{
	"selection.strategy_id",
	"risk_state",
	"permission",
	"action",
	"reason_codes",
}

// DecisionRecord is one immutable line of a run's decision log.
type DecisionRecord struct {
	SchemaVersion  SchemaVersion  `json:"schema_version"`
	DecisionID     string         `json:"decision_id"`
	Timestamp      string         `json:"timestamp,omitempty"` // informational, never compared
	SnapshotHashes []HashValue    `json:"snapshot_hashes"`
	Facts          jsonutil.Value `json:"facts"`
	Volatile       []string       `json:"volatile,omitempty"`
	CoreHash       HashValue      `json:"core_hash,omitempty"`
}

// Validate checks r against the current schema. It does not verify CoreHash
// against the facts; that is the log's job at append time.
func (r *DecisionRecord) Validate() error {
	if !r.SchemaVersion.Compatible() {
		return errclass.ErrRecordInvalid.WithMessagef(
			"schema %s is not readable as %s", r.SchemaVersion, CurrentSchema)
	}
	if err := pathutil.ValidateIdentifier(r.DecisionID); err != nil {
		return errclass.ErrRecordInvalid.WithMessagef("decision_id: %v", err)
	}
	if r.Timestamp != "" {
		if _, err := time.Parse(time.RFC3339Nano, r.Timestamp); err != nil {
			return errclass.ErrRecordInvalid.WithMessagef("timestamp %q is not RFC3339", r.Timestamp)
		}
	}
	if len(r.SnapshotHashes) == 0 {
		return errclass.ErrRecordInvalid.WithMessagef("decision %s references no snapshot", r.DecisionID)
	}
	for i, h := range r.SnapshotHashes {
		if !h.Valid() {
			return errclass.ErrRecordInvalid.WithMessagef("snapshot_hashes[%d] %q is not a sha256 hex digest", i, h)
		}
	}
	if r.Facts.Kind() != jsonutil.KindObject {
		return errclass.ErrRecordInvalid.WithMessagef("facts must be an object, got %s", r.Facts.Kind())
	}
	for i, p := range r.Volatile {
		if p == "" {
			return errclass.ErrRecordInvalid.WithMessagef("volatile[%d] is empty", i)
		}
	}
	if r.CoreHash != "" && !r.CoreHash.Valid() {
		return errclass.ErrRecordInvalid.WithMessagef("core_hash %q is not a sha256 hex digest", r.CoreHash)
	}
	return nil
}

// ToValue renders r as a canonical JSON object.
func (r *DecisionRecord) ToValue() jsonutil.Value {
	hashes := make([]jsonutil.Value, len(r.SnapshotHashes))
	for i, h := range r.SnapshotHashes {
		hashes[i] = jsonutil.String(string(h))
	}
	members := map[string]jsonutil.Value{
		FieldSchemaVersion:  jsonutil.String(r.SchemaVersion.String()),
		FieldDecisionID:     jsonutil.String(r.DecisionID),
		FieldSnapshotHashes: jsonutil.Array(hashes...),
		FieldFacts:          r.Facts,
	}
	if r.Timestamp != "" {
		members[FieldTimestamp] = jsonutil.String(r.Timestamp)
	}
	if len(r.Volatile) > 0 {
		paths := make([]jsonutil.Value, len(r.Volatile))
		for i, p := range r.Volatile {
			paths[i] = jsonutil.String(p)
		}
		members[FieldVolatile] = jsonutil.Array(paths...)
	}
	if r.CoreHash != "" {
		members[FieldCoreHash] = jsonutil.String(string(r.CoreHash))
	}
	return jsonutil.Object(members)
}

// DecodeRecord reads a current-major record from a parsed log line. Unknown
// members are ignored. Legacy majors must go through the migrator first.
func DecodeRecord(raw jsonutil.Value) (*DecisionRecord, error) {
	if raw.Kind() != jsonutil.KindObject {
		return nil, errclass.ErrRecordInvalid.WithMessagef("record must be an object, got %s", raw.Kind())
	}
	versionText, err := stringMember(raw, FieldSchemaVersion, true)
	if err != nil {
		return nil, err
	}
	version, err := ParseSchemaVersion(versionText)
	if err != nil {
		return nil, errclass.ErrRecordInvalid.WithMessage(err.Error())
	}
	if !version.Compatible() {
		return nil, errclass.ErrRecordInvalid.WithMessagef(
			"schema %s needs migration to %s", version, CurrentSchema)
	}

	rec := &DecisionRecord{SchemaVersion: version}
	if rec.DecisionID, err = stringMember(raw, FieldDecisionID, true); err != nil {
		return nil, err
	}
	if rec.Timestamp, err = stringMember(raw, FieldTimestamp, false); err != nil {
		return nil, err
	}
	hashes, err := stringList(raw, FieldSnapshotHashes, true)
	if err != nil {
		return nil, err
	}
	for _, h := range hashes {
		rec.SnapshotHashes = append(rec.SnapshotHashes, HashValue(h))
	}
	facts, ok := raw.Get(FieldFacts)
	if !ok {
		return nil, errclass.ErrRecordInvalid.WithMessagef("missing %q", FieldFacts)
	}
	rec.Facts = facts
	if rec.Volatile, err = stringList(raw, FieldVolatile, false); err != nil {
		return nil, err
	}
	core, err := stringMember(raw, FieldCoreHash, false)
	if err != nil {
		return nil, err
	}
	rec.CoreHash = HashValue(core)
	return rec, nil
}

// CoreFacts extracts the strict-core subset of facts. Paths absent from
// facts are absent from the result.
func CoreFacts(facts jsonutil.Value) jsonutil.Value {
	core := jsonutil.Object(nil)
	for _, p := range CorePaths {
		v, ok := facts.Lookup(p)
		if !ok {
			continue
		}
		// Intermediate members are created fresh, so SetPath cannot fail here.
		core, _ = core.SetPath(p, v)
	}
	return core
}

// ComparableFacts returns facts without the given volatile paths.
func ComparableFacts(facts jsonutil.Value, volatile []string) jsonutil.Value {
	out := facts
	for _, p := range volatile {
		out = out.WithoutPath(p)
	}
	return out
}

func stringMember(raw jsonutil.Value, key string, required bool) (string, error) {
	v, ok := raw.Get(key)
	if !ok {
		if required {
			return "", errclass.ErrRecordInvalid.WithMessagef("missing %q", key)
		}
		return "", nil
	}
	s, ok := v.AsString()
	if !ok {
		return "", errclass.ErrRecordInvalid.WithMessagef("%q must be a string, got %s", key, v.Kind())
	}
	return s, nil
}

func stringList(raw jsonutil.Value, key string, required bool) ([]string, error) {
	v, ok := raw.Get(key)
	if !ok {
		if required {
			return nil, errclass.ErrRecordInvalid.WithMessagef("missing %q", key)
		}
		return nil, nil
	}
	if v.Kind() != jsonutil.KindArray {
		return nil, errclass.ErrRecordInvalid.WithMessagef("%q must be an array, got %s", key, v.Kind())
	}
	out := make([]string, 0, v.Len())
	for i, item := range v.Items() {
		s, ok := item.AsString()
		if !ok {
			return nil, errclass.ErrRecordInvalid.WithMessage(fmt.Sprintf("%s[%d] must be a string", key, i))
		}
		out = append(out, s)
	}
	return out, nil
}
