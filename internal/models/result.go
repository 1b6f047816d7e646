package models

import "fmt"

// BatchResult is the closed set of outcomes for one batch.
type BatchResult string

const (
	BatchOK                  BatchResult = "ok"
	BatchFailure             BatchResult = "failure"
	BatchWrongProjectName    BatchResult = "wrong_project_name"
	BatchNoShotgridHierarchy BatchResult = "no_shotgrid_hierarchy"
)

var batchResults = []BatchResult{BatchOK, BatchFailure, BatchWrongProjectName, BatchNoShotgridHierarchy}

// BatchResults lists every result in declaration order.
func BatchResults() []BatchResult {
	return append([]BatchResult(nil), batchResults...)
}

func (r BatchResult) Valid() bool {
	for _, known := range batchResults {
		if r == known {
			return true
		}
	}
	return false
}

func (r BatchResult) String() string {
	return string(r)
}

// ParseBatchResult converts a persisted value back into a BatchResult.
func ParseBatchResult(raw string) (BatchResult, error) {
	r := BatchResult(raw)
	if !r.Valid() {
		return "", fmt.Errorf("unknown batch result %q", raw)
	}
	return r, nil
}
