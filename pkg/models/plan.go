package models

import "strings"

// fullScanMarkers are the plan-node names backends use for a full table scan.
var fullScanMarkers = []string{
	"SEQ_SCAN",
	"Seq Scan",
	"TABLE_SCAN",
	"FULL SCAN",
}

// ExecutionPlan is the ordered sequence of plan lines a backend produced for
// one query execution. It is read-only; discard it after logging or comparison.
type ExecutionPlan []string

// String joins the plan lines for logging.
func (p ExecutionPlan) String() string {
	return strings.Join(p, "\n")
}

// UsesFullScan reports whether any plan line names a full-table-scan node.
func (p ExecutionPlan) UsesFullScan() bool {
	for _, line := range p {
		for _, marker := range fullScanMarkers {
			if strings.Contains(line, marker) {
				return true
			}
		}
	}
	return false
}

// Equal reports whether two plans have identical line sequences.
func (p ExecutionPlan) Equal(other ExecutionPlan) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}
