package hierarchy

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Mapper converts raw rows into typed rows. It carries the project step
// catalog so project rows can be built without any global lookup.
type Mapper struct {
	steps []ProjectStep
}

func NewMapper(steps []ProjectStep) *Mapper {
	return &Mapper{steps: append([]ProjectStep(nil), steps...)}
}

// ToRow maps a single raw row. On error the returned row is always nil.
func (m *Mapper) ToRow(raw RawRow, defaults Params) (Row, error) {
	rawType, ok := raw["type"]
	if !ok {
		return nil, &MappingError{Field: "type", Reason: "missing"}
	}
	typeName, ok := rawType.(string)
	if !ok {
		return nil, &MappingError{Field: "type", Reason: fmt.Sprintf("expected string, got %T", rawType)}
	}
	t := Type(typeName)

	fields := normalize(raw)
	base, err := m.base(t, fields, defaults)
	if err != nil {
		return nil, err
	}

	switch t {
	case TypeProject:
		code, err := optString(t, fields, "code")
		if err != nil {
			return nil, err
		}
		steps := append([]ProjectStep{}, m.steps...)
		return &Project{Base: base, Code: code, Config: ProjectConfig{Steps: steps}}, nil
	case TypeGroup:
		return &Group{Base: base}, nil
	case TypeEpisode:
		return &Episode{Base: base}, nil
	case TypeSequence:
		return &Sequence{Base: base}, nil
	case TypeShot:
		return m.shot(base, fields)
	case TypeAsset:
		return &Asset{Base: base}, nil
	case TypeTask:
		return m.task(base, fields)
	default:
		return nil, &UnknownTypeError{Type: typeName}
	}
}

// MapRows maps every row independently. Rows that fail are reported by
// index and left out; the others are returned in input order.
func (m *Mapper) MapRows(raws []RawRow, defaults Params) ([]Row, []*RowError) {
	rows := make([]Row, 0, len(raws))
	var failed []*RowError
	for i, raw := range raws {
		row, err := m.ToRow(raw, defaults)
		if err != nil {
			failed = append(failed, &RowError{Index: i, Err: err})
			continue
		}
		rows = append(rows, row)
	}
	return rows, failed
}

func (m *Mapper) base(t Type, fields map[string]any, defaults Params) (Base, error) {
	if !known(t) {
		return Base{}, &UnknownTypeError{Type: string(t)}
	}

	id, err := reqID(t, fields)
	if err != nil {
		return Base{}, err
	}
	b := Base{ID: id}

	if v, ok := fields["src_id"]; ok {
		n, ok := asInt(v)
		if !ok {
			return Base{}, &MappingError{Type: t, Field: "src_id", Reason: fmt.Sprintf("expected integer, got %T", v)}
		}
		b.SrcID = &n
	}

	if t != TypeProject {
		parent, err := optString(t, fields, "parent")
		if err != nil {
			return Base{}, err
		}
		if parent == "" {
			return Base{}, &MappingError{Type: t, Field: "parent", Reason: "missing"}
		}
		b.Parent = parent
	}

	b.Params, err = overlay(t, defaults, fields["params"])
	if err != nil {
		return Base{}, err
	}
	return b, nil
}

func (m *Mapper) shot(base Base, fields map[string]any) (Row, error) {
	// A zero cut is dropped by normalize, so it falls back to the default.
	if v, ok := fields["cut_in"]; ok {
		n, ok := asInt(v)
		if !ok {
			return nil, &MappingError{Type: TypeShot, Field: "cut_in", Reason: fmt.Sprintf("expected integer, got %T", v)}
		}
		base.Params.ClipIn = n
	}
	if v, ok := fields["cut_out"]; ok {
		n, ok := asInt(v)
		if !ok {
			return nil, &MappingError{Type: TypeShot, Field: "cut_out", Reason: fmt.Sprintf("expected integer, got %T", v)}
		}
		base.Params.ClipOut = n
	}

	shot := &Shot{Base: base, LinkedAssets: []LinkedAsset{}}
	if v, ok := fields["linked_assets"]; ok {
		items, ok := v.([]any)
		if !ok {
			return nil, &MappingError{Type: TypeShot, Field: "linked_assets", Reason: "expected list"}
		}
		for i, item := range items {
			la, err := linkedAsset(item)
			if err != nil {
				return nil, &MappingError{Type: TypeShot, Field: fmt.Sprintf("linked_assets[%d]", i), Reason: err.Error()}
			}
			shot.LinkedAssets = append(shot.LinkedAssets, la)
		}
	}
	return shot, nil
}

func (m *Mapper) task(base Base, fields map[string]any) (Row, error) {
	taskType, err := optString(TypeTask, fields, "task_type")
	if err != nil {
		return nil, err
	}
	if taskType == "" {
		taskType = stepName(fields)
	}
	return &Task{Base: base, TaskType: taskType}, nil
}

func stepName(fields map[string]any) string {
	if step, ok := fields["step"].(map[string]any); ok {
		if name, ok := asString(step["name"]); ok {
			return name
		}
	}
	if name, ok := asString(fields["step_name"]); ok {
		return name
	}
	return ""
}

func linkedAsset(v any) (LinkedAsset, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return LinkedAsset{}, fmt.Errorf("expected mapping, got %T", v)
	}
	id, ok := asInt(m["id"])
	if !ok {
		return LinkedAsset{}, fmt.Errorf("id: expected integer")
	}
	name, _ := asString(m["name"])
	return LinkedAsset{ID: id, Name: name}, nil
}

func known(t Type) bool {
	for _, k := range Types() {
		if k == t {
			return true
		}
	}
	return false
}

// normalize strips leading underscores from keys and drops empty values.
// When several keys collapse to one name, the key with the fewest
// underscores wins: "id" over "_id" over "__id".
func normalize(raw RawRow) map[string]any {
	out := make(map[string]any, len(raw))
	depth := make(map[string]int, len(raw))
	for k, v := range raw {
		if k == "type" || isEmpty(v) {
			continue
		}
		name := strings.TrimLeft(k, "_")
		d := len(k) - len(name)
		if prev, ok := depth[name]; ok && prev < d {
			continue
		}
		out[name] = v
		depth[name] = d
	}
	return out
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return err == nil && f == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array:
		return rv.Len() == 0
	default:
		return rv.IsZero()
	}
}

func reqID(t Type, fields map[string]any) (string, error) {
	v, ok := fields["id"]
	if !ok {
		return "", &MappingError{Type: t, Field: "id", Reason: "missing"}
	}
	if s, ok := asString(v); ok {
		return s, nil
	}
	if n, ok := asInt(v); ok {
		return strconv.FormatInt(n, 10), nil
	}
	return "", &MappingError{Type: t, Field: "id", Reason: fmt.Sprintf("expected string or integer, got %T", v)}
}

func optString(t Type, fields map[string]any, key string) (string, error) {
	v, ok := fields[key]
	if !ok {
		return "", nil
	}
	s, ok := asString(v)
	if !ok {
		return "", &MappingError{Type: t, Field: key, Reason: fmt.Sprintf("expected string, got %T", v)}
	}
	return s, nil
}

// overlay applies a raw params mapping on top of defaults key by key.
func overlay(t Type, defaults Params, raw any) (Params, error) {
	p := defaults
	p.ToolsEnv = append([]string{}, defaults.ToolsEnv...)
	if raw == nil {
		return p, nil
	}
	values, ok := raw.(map[string]any)
	if !ok {
		return Params{}, &MappingError{Type: t, Field: "params", Reason: fmt.Sprintf("expected mapping, got %T", raw)}
	}

	ints := map[string]*int64{
		"clip_in":           &p.ClipIn,
		"clip_out":          &p.ClipOut,
		"frame_start":       &p.FrameStart,
		"frame_end":         &p.FrameEnd,
		"handle_start":      &p.HandleStart,
		"handle_end":        &p.HandleEnd,
		"resolution_width":  &p.ResolutionWidth,
		"resolution_height": &p.ResolutionHeight,
	}
	floats := map[string]*float64{
		"fps":          &p.FPS,
		"pixel_aspect": &p.PixelAspect,
	}

	for key, v := range values {
		if v == nil {
			continue
		}
		if dst, ok := ints[key]; ok {
			n, ok := asInt(v)
			if !ok {
				return Params{}, &MappingError{Type: t, Field: "params." + key, Reason: fmt.Sprintf("expected integer, got %T", v)}
			}
			*dst = n
			continue
		}
		if dst, ok := floats[key]; ok {
			f, ok := asFloat(v)
			if !ok {
				return Params{}, &MappingError{Type: t, Field: "params." + key, Reason: fmt.Sprintf("expected number, got %T", v)}
			}
			*dst = f
			continue
		}
		if key == "tools_env" {
			env, ok := asStrings(v)
			if !ok {
				return Params{}, &MappingError{Type: t, Field: "params.tools_env", Reason: "expected list of strings"}
			}
			p.ToolsEnv = env
		}
	}
	return p, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func asStrings(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return append([]string{}, list...), true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
