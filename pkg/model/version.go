package model

import (
	"fmt"
	"strconv"
	"strings"
)

// SchemaVersion is a semantic version triple for decision records.
//
// MAJOR changes are breaking and need an explicit migration rule, MINOR
// changes are additive (readers ignore unknown fields), PATCH changes never
// alter the record shape.
type SchemaVersion struct {
	Major int
	Minor int
	Patch int
}

// CurrentSchema is the record shape written by this version.
// 2.1 added the optional "volatile" and "core_hash" members.
var CurrentSchema = SchemaVersion{Major: 2, Minor: 1, Patch: 0}

// ParseSchemaVersion parses "MAJOR.MINOR.PATCH".
func ParseSchemaVersion(s string) (SchemaVersion, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return SchemaVersion{}, fmt.Errorf("schema version %q is not MAJOR.MINOR.PATCH", s)
	}
	var nums [3]int
	for i, p := range parts {
		if p == "" || (len(p) > 1 && p[0] == '0') {
			return SchemaVersion{}, fmt.Errorf("schema version %q has malformed component %q", s, p)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return SchemaVersion{}, fmt.Errorf("schema version %q has malformed component %q", s, p)
		}
		nums[i] = n
	}
	return SchemaVersion{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func (v SchemaVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// MarshalText implements encoding.TextMarshaler.
func (v SchemaVersion) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *SchemaVersion) UnmarshalText(text []byte) error {
	parsed, err := ParseSchemaVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Compatible reports whether a record at v can be read without migration.
func (v SchemaVersion) Compatible() bool {
	return v.Major == CurrentSchema.Major
}
