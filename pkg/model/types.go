// Package model defines the persistent data types of the decision-audit
// engine: decision records, schema versions and audit summaries.
package model

import "regexp"

// HashValue is a SHA-256 digest stored as 64 lowercase hex characters.
type HashValue string

var hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Valid reports whether h is syntactically a content address.
func (h HashValue) Valid() bool {
	return hashPattern.MatchString(string(h))
}

// Short returns the first 12 characters for display.
func (h HashValue) Short() string {
	s := string(h)
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// ReplayMode selects which part of a decision is compared during replay.
type ReplayMode string

const (
	// ModeStrictCore compares only the decision-relevant core facts.
	ModeStrictCore ReplayMode = "strict-core"
	// ModeStrictFull compares all facts except paths marked volatile.
	ModeStrictFull ReplayMode = "strict-full"
)

// Outcome classifies a single replay. The set is closed.
type Outcome string

const (
	OutcomeMatch        Outcome = "match"
	OutcomeMismatch     Outcome = "mismatch"
	OutcomeHashMismatch Outcome = "hash_mismatch"
	OutcomeError        Outcome = "error"
)
