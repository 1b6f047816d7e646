package batch

import (
	"context"
	"fmt"

	"leecher/internal/hierarchy"
	"leecher/internal/models"
)

// CheckResult summarizes what a batch would pull from Shotgrid.
type CheckResult struct {
	Status      models.BatchResult `json:"status"`
	ProjectName string             `json:"project_name,omitempty"`
	ProjectCode string             `json:"project_code,omitempty"`
	Counts      map[string]int     `json:"counts"`
}

// Check fetches the source hierarchy without writing anything.
func (r *Runner) Check(ctx context.Context, cmd models.BatchCommand) (*CheckResult, error) {
	snap, err := r.fetcher.FetchHierarchy(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("fetch hierarchy: %w", err)
	}

	res := &CheckResult{Status: models.BatchNoShotgridHierarchy, Counts: map[string]int{}}
	if snap == nil {
		return res, nil
	}
	for _, row := range snap.Rows {
		t, _ := row["type"].(string)
		res.Counts[t]++
		if t == string(hierarchy.TypeProject) {
			res.Status = models.BatchOK
			res.ProjectName, _ = row["id"].(string)
			res.ProjectCode, _ = row["code"].(string)
		}
	}
	return res, nil
}
