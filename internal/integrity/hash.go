// Package integrity computes content addresses: SHA-256 over canonical bytes,
// rendered as lowercase hex without prefix.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/model"
)

// HashBytes returns the content address of canonical bytes.
func HashBytes(data []byte) model.HashValue {
	sum := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(sum[:]))
}

// HashValue canonicalizes v and hashes the result.
func HashValue(v jsonutil.Value) (model.HashValue, error) {
	data, err := jsonutil.Canonicalize(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}
	return HashBytes(data), nil
}

// ComputeCoreHash hashes the strict-core subset of a record's facts.
// Excludes: everything outside model.CorePaths.
func ComputeCoreHash(facts jsonutil.Value) (model.HashValue, error) {
	return HashValue(model.CoreFacts(facts))
}

// ValidHash reports whether s is syntactically a content address.
func ValidHash(s string) bool {
	return model.HashValue(s).Valid()
}
