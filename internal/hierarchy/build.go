package hierarchy

import (
	"fmt"
	"sort"

	"leecher/internal/shotgrid"
)

func cloneParams(p Params) Params {
	p.ToolsEnv = append([]string{}, p.ToolsEnv...)
	return p
}

func srcID(id int64) *int64 {
	return &id
}

// TopShotGroup is the "shot" group directly under the project.
func TopShotGroup(project string, defaults Params) *Group {
	return &Group{Base: Base{ID: string(TypeShot), Parent: ProjectPath(project), Params: cloneParams(defaults)}}
}

// TopAssetGroup is the "asset" group directly under the project.
func TopAssetGroup(project string, defaults Params) *Group {
	return &Group{Base: Base{ID: string(TypeAsset), Parent: ProjectPath(project), Params: cloneParams(defaults)}}
}

// AssetGroup groups assets of one asset type under the top asset group.
func AssetGroup(project, assetType string, defaults Params) *Group {
	return &Group{Base: Base{ID: assetType, Parent: JoinPath(project, string(TypeAsset)), Params: cloneParams(defaults)}}
}

// EpisodeShotGroup places an episode under the top shot group.
func EpisodeShotGroup(project string, ep shotgrid.Episode, defaults Params) *Episode {
	return &Episode{Base: Base{
		ID:     ep.Name,
		SrcID:  srcID(ep.ID),
		Parent: JoinPath(project, string(TypeShot)),
		Params: cloneParams(defaults),
	}}
}

func SequenceShotGroup(seq shotgrid.Sequence, parent string, defaults Params) *Sequence {
	return &Sequence{Base: Base{ID: seq.Name, SrcID: srcID(seq.ID), Parent: parent, Params: cloneParams(defaults)}}
}

func FromProject(p shotgrid.Project, steps []shotgrid.Step, defaults Params) *Project {
	return &Project{
		Base:   Base{ID: p.Name, SrcID: srcID(p.ID), Params: cloneParams(defaults)},
		Code:   p.Code,
		Config: ProjectConfig{Steps: StepsOf(steps)},
	}
}

func FromAsset(a shotgrid.Asset, parent string, defaults Params) *Asset {
	return &Asset{Base: Base{ID: a.Code, SrcID: srcID(a.ID), Parent: parent, Params: cloneParams(defaults)}}
}

// FromShot maps a shot; a nonzero cut overrides the default clip range.
func FromShot(s shotgrid.Shot, parent string, defaults Params) *Shot {
	shot := &Shot{
		Base:         Base{ID: s.Code, SrcID: srcID(s.ID), Parent: parent, Params: cloneParams(defaults)},
		LinkedAssets: make([]LinkedAsset, 0, len(s.LinkedAssets)),
	}
	for _, la := range s.LinkedAssets {
		shot.LinkedAssets = append(shot.LinkedAssets, LinkedAsset{ID: la.ID, Name: la.Name})
	}
	if !s.HasParams() {
		return shot
	}
	if s.Params.CutIn != 0 {
		shot.Params.ClipIn = s.Params.CutIn
	}
	if s.Params.CutOut != 0 {
		shot.Params.ClipOut = s.Params.CutOut
	}
	return shot
}

func FromTask(t shotgrid.Task, parent string, defaults Params) *Task {
	return &Task{
		Base:     Base{ID: fmt.Sprintf("%s_%d", t.Content, t.ID), SrcID: srcID(t.ID), Parent: parent, Params: cloneParams(defaults)},
		TaskType: t.StepName(),
	}
}

func StepsOf(steps []shotgrid.Step) []ProjectStep {
	out := make([]ProjectStep, 0, len(steps))
	for _, s := range steps {
		out = append(out, ProjectStep{Code: s.Code, ShortName: s.ShortName})
	}
	return out
}

// Assemble lays out a fetched hierarchy as rows, parents before children.
// It returns nil when the snapshot has no project.
func Assemble(h *shotgrid.Hierarchy, defaults Params) []Row {
	if h == nil || h.Project == nil {
		return nil
	}
	name := h.Project.Name
	rows := []Row{
		FromProject(*h.Project, h.Steps, defaults),
		TopShotGroup(name, defaults),
		TopAssetGroup(name, defaults),
	}

	// entity type + id -> path children of that entity hang from
	paths := make(map[string]string)
	key := func(entityType string, id int64) string { return fmt.Sprintf("%s:%d", entityType, id) }

	assetTypes := make(map[string]struct{})
	for _, a := range h.Assets {
		if a.AssetType != "" {
			assetTypes[a.AssetType] = struct{}{}
		}
	}
	for _, assetType := range sortedKeys(assetTypes) {
		rows = append(rows, AssetGroup(name, assetType, defaults))
	}
	for _, a := range h.Assets {
		parent := JoinPath(name, string(TypeAsset))
		if a.AssetType != "" {
			parent = JoinPath(name, string(TypeAsset), a.AssetType)
		}
		asset := FromAsset(a, parent, defaults)
		rows = append(rows, asset)
		paths[key("Asset", a.ID)] = PathOf(asset)
	}

	for _, ep := range h.Episodes {
		episode := EpisodeShotGroup(name, ep, defaults)
		rows = append(rows, episode)
		paths[key("Episode", ep.ID)] = PathOf(episode)
	}

	topShot := JoinPath(name, string(TypeShot))
	for _, seq := range h.Sequences {
		parent := topShot
		if seq.Episode != nil {
			if p, ok := paths[key("Episode", seq.Episode.ID)]; ok {
				parent = p
			}
		}
		sequence := SequenceShotGroup(seq, parent, defaults)
		rows = append(rows, sequence)
		paths[key("Sequence", seq.ID)] = PathOf(sequence)
	}

	for _, s := range h.Shots {
		parent := topShot
		if s.Sequence != nil {
			if p, ok := paths[key("Sequence", s.Sequence.ID)]; ok {
				parent = p
			}
		} else if s.Episode != nil {
			if p, ok := paths[key("Episode", s.Episode.ID)]; ok {
				parent = p
			}
		}
		shot := FromShot(s, parent, defaults)
		rows = append(rows, shot)
		paths[key("Shot", s.ID)] = PathOf(shot)
	}

	for _, t := range h.Tasks {
		if t.Entity == nil {
			continue
		}
		parent, ok := paths[key(t.Entity.Type, t.Entity.ID)]
		if !ok {
			continue
		}
		rows = append(rows, FromTask(t, parent, defaults))
	}
	return rows
}

// SnapshotOf encodes a fetched hierarchy as raw rows. Rows carry no
// params of their own so the mapper applies the destination defaults.
func SnapshotOf(h *shotgrid.Hierarchy) *Snapshot {
	snap := &Snapshot{Rows: []RawRow{}, Steps: []ProjectStep{}}
	if h == nil {
		return snap
	}
	snap.Steps = StepsOf(h.Steps)
	for _, row := range Assemble(h, Params{}) {
		snap.Rows = append(snap.Rows, ToRaw(row))
	}
	return snap
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
