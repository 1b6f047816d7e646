package models

import "time"

// ShotgridCredentials is the script auth bundle for one Shotgrid site.
type ShotgridCredentials struct {
	URL        string `json:"shotgrid_url"`
	ScriptName string `json:"script_name"`
	ScriptKey  string `json:"script_key"`
}

// FieldsMapping remaps Shotgrid field names per entity type.
type FieldsMapping map[string]any

// BatchCommand identifies one project sync job.
type BatchCommand struct {
	ProjectID     int64               `json:"project_id"`
	ProjectName   string              `json:"project_name"`
	Overwrite     bool                `json:"overwrite"`
	Credentials   ShotgridCredentials `json:"credentials"`
	FieldsMapping FieldsMapping       `json:"fields_mapping,omitempty"`
}

// ScheduleProject is the registry record for a scheduled project.
type ScheduleProject struct {
	ProjectName string       `json:"project_name"`
	Command     BatchCommand `json:"command"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// ScheduleQueueItem is one pending sync attempt.
type ScheduleQueueItem struct {
	ID        string       `json:"id"`
	Command   BatchCommand `json:"command"`
	CreatedAt time.Time    `json:"created_at"`
}

// ScheduleLog records the outcome of one drained queue item.
type ScheduleLog struct {
	ID          string      `json:"id"`
	QueueItemID string      `json:"queue_item_id"`
	ProjectName string      `json:"project_name"`
	BatchResult BatchResult `json:"batch_result"`
	CreatedAt   time.Time   `json:"created_at"`
}

// DrainReport summarizes one drain invocation.
type DrainReport struct {
	Processed int                 `json:"processed_count"`
	Skipped   int                 `json:"skipped_count"`
	Results   map[BatchResult]int `json:"result_tally"`
}

func NewDrainReport() *DrainReport {
	return &DrainReport{Results: make(map[BatchResult]int)}
}

// Add counts one processed item.
func (r *DrainReport) Add(result BatchResult) {
	r.Processed++
	r.Results[result]++
}
