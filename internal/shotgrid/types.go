package shotgrid

// EntityRef is a Shotgrid link to another entity.
type EntityRef struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

type Project struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// Step is a pipeline step; the full list forms the project step catalog.
type Step struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	ShortName string `json:"short_name"`
}

type Asset struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	AssetType string `json:"sg_asset_type"`
}

type Episode struct {
	ID   int64  `json:"id"`
	Name string `json:"code"`
}

type Sequence struct {
	ID      int64      `json:"id"`
	Name    string     `json:"code"`
	Episode *EntityRef `json:"episode,omitempty"`
}

// ShotParams carries the editorial cut range of a shot.
type ShotParams struct {
	CutIn  int64 `json:"sg_cut_in"`
	CutOut int64 `json:"sg_cut_out"`
}

type Shot struct {
	ID           int64       `json:"id"`
	Code         string      `json:"code"`
	Sequence     *EntityRef  `json:"sg_sequence,omitempty"`
	Episode      *EntityRef  `json:"sg_episode,omitempty"`
	LinkedAssets []EntityRef `json:"assets,omitempty"`
	Params       *ShotParams `json:"params,omitempty"`
}

func (s Shot) HasParams() bool {
	return s.Params != nil
}

type Task struct {
	ID      int64      `json:"id"`
	Content string     `json:"content"`
	Entity  *EntityRef `json:"entity,omitempty"`
	Step    *EntityRef `json:"step,omitempty"`
}

// StepName is the name of the linked pipeline step, empty when unset.
func (t Task) StepName() string {
	if t.Step == nil {
		return ""
	}
	return t.Step.Name
}

// Hierarchy is everything fetched for one Shotgrid project.
type Hierarchy struct {
	Project   *Project
	Steps     []Step
	Assets    []Asset
	Episodes  []Episode
	Sequences []Sequence
	Shots     []Shot
	Tasks     []Task
}
