package hierarchy

// Type is the closed vocabulary of hierarchy row kinds.
type Type string

const (
	TypeProject  Type = "project"
	TypeGroup    Type = "group"
	TypeEpisode  Type = "episode"
	TypeSequence Type = "sequence"
	TypeShot     Type = "shot"
	TypeAsset    Type = "asset"
	TypeTask     Type = "task"
)

// Types returns every known row type.
func Types() []Type {
	return []Type{TypeProject, TypeGroup, TypeEpisode, TypeSequence, TypeShot, TypeAsset, TypeTask}
}

// Params are the project-level defaults each entity may override.
type Params struct {
	ClipIn           int64    `json:"clip_in"`
	ClipOut          int64    `json:"clip_out"`
	FPS              float64  `json:"fps"`
	FrameStart       int64    `json:"frame_start"`
	FrameEnd         int64    `json:"frame_end"`
	HandleStart      int64    `json:"handle_start"`
	HandleEnd        int64    `json:"handle_end"`
	PixelAspect      float64  `json:"pixel_aspect"`
	ResolutionWidth  int64    `json:"resolution_width"`
	ResolutionHeight int64    `json:"resolution_height"`
	ToolsEnv         []string `json:"tools_env"`
}

// DefaultParams are used when the destination has no project yet.
func DefaultParams() Params {
	return Params{
		ClipIn:           1,
		ClipOut:          1,
		FPS:              25,
		FrameStart:       1001,
		FrameEnd:         1001,
		HandleStart:      0,
		HandleEnd:        0,
		PixelAspect:      1,
		ResolutionWidth:  1920,
		ResolutionHeight: 1080,
		ToolsEnv:         []string{},
	}
}

// Base holds the fields shared by every row variant.
type Base struct {
	ID     string `json:"id"`
	SrcID  *int64 `json:"src_id,omitempty"`
	Parent string `json:"parent"`
	Params Params `json:"params"`
}

func (b *Base) Common() *Base { return b }

// Row is one mapped hierarchy node. The variant set is closed.
type Row interface {
	Type() Type
	Common() *Base
	row()
}

type ProjectStep struct {
	Code      string `json:"code"`
	ShortName string `json:"short_name"`
}

type ProjectConfig struct {
	Steps []ProjectStep `json:"steps"`
}

type Project struct {
	Base
	Code   string        `json:"code"`
	Config ProjectConfig `json:"config"`
}

type Group struct{ Base }

type Episode struct{ Base }

type Sequence struct{ Base }

type LinkedAsset struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Shot struct {
	Base
	LinkedAssets []LinkedAsset `json:"linked_assets"`
}

type Asset struct{ Base }

type Task struct {
	Base
	TaskType string `json:"task_type"`
}

func (*Project) Type() Type  { return TypeProject }
func (*Group) Type() Type    { return TypeGroup }
func (*Episode) Type() Type  { return TypeEpisode }
func (*Sequence) Type() Type { return TypeSequence }
func (*Shot) Type() Type     { return TypeShot }
func (*Asset) Type() Type    { return TypeAsset }
func (*Task) Type() Type     { return TypeTask }

func (*Project) row()  {}
func (*Group) row()    {}
func (*Episode) row()  {}
func (*Sequence) row() {}
func (*Shot) row()     {}
func (*Asset) row()    {}
func (*Task) row()     {}

// RawRow is an untyped record tagged by its "type" key.
type RawRow map[string]any

// Snapshot is a fetched hierarchy in raw form together with the step catalog.
type Snapshot struct {
	Rows  []RawRow      `json:"rows"`
	Steps []ProjectStep `json:"steps"`
}

// ProjectData is what the destination already knows about a project.
type ProjectData struct {
	Name       string `json:"name"`
	ShotgridID int64  `json:"shotgrid_id"`
	Params     Params `json:"params"`
}
