package model

// OffendingRecord identifies one record that kept a run from being accepted.
type OffendingRecord struct {
	Line         int       `json:"line"`
	DecisionID   string    `json:"decision_id,omitempty"`
	Kind         Outcome   `json:"kind"`
	Detail       string    `json:"detail"`
	SnapshotHash HashValue `json:"snapshot_hash,omitempty"`
	Diff         []string  `json:"diff,omitempty"`
}

// AuditSummary is the persisted result of auditing a run. It carries no
// wall-clock data so that auditing the same run twice yields identical bytes.
type AuditSummary struct {
	Run              string            `json:"run,omitempty"`
	Mode             ReplayMode        `json:"mode"`
	TotalRecords     int               `json:"total_records"`
	Matched          int               `json:"matched"`
	Mismatched       int               `json:"mismatched"`
	HashMismatch     int               `json:"hash_mismatch"`
	Errors           int               `json:"errors"`
	Accepted         bool              `json:"accepted"`
	OffendingRecords []OffendingRecord `json:"offending_records"`
}

// Clean reports whether every counter other than Matched is zero.
func (s *AuditSummary) Clean() bool {
	return s.Mismatched == 0 && s.HashMismatch == 0 && s.Errors == 0
}
