package hierarchy

// ToRaw encodes a row back into the raw form ToRow accepts.
// Only nonzero params are emitted.
func ToRaw(row Row) RawRow {
	b := row.Common()
	raw := RawRow{
		"type": string(row.Type()),
		"id":   b.ID,
	}
	if b.SrcID != nil {
		raw["src_id"] = *b.SrcID
	}
	if b.Parent != "" {
		raw["parent"] = b.Parent
	}
	if params := sparseParams(b.Params); len(params) > 0 {
		raw["params"] = params
	}

	switch r := row.(type) {
	case *Project:
		raw["code"] = r.Code
	case *Shot:
		raw["cut_in"] = r.Params.ClipIn
		raw["cut_out"] = r.Params.ClipOut
		links := make([]any, 0, len(r.LinkedAssets))
		for _, la := range r.LinkedAssets {
			links = append(links, map[string]any{"id": la.ID, "name": la.Name})
		}
		raw["linked_assets"] = links
	case *Task:
		raw["task_type"] = r.TaskType
	}
	return raw
}

func sparseParams(p Params) map[string]any {
	out := make(map[string]any)
	ints := map[string]int64{
		"clip_in":           p.ClipIn,
		"clip_out":          p.ClipOut,
		"frame_start":       p.FrameStart,
		"frame_end":         p.FrameEnd,
		"handle_start":      p.HandleStart,
		"handle_end":        p.HandleEnd,
		"resolution_width":  p.ResolutionWidth,
		"resolution_height": p.ResolutionHeight,
	}
	for k, v := range ints {
		if v != 0 {
			out[k] = v
		}
	}
	if p.FPS != 0 {
		out["fps"] = p.FPS
	}
	if p.PixelAspect != 0 {
		out["pixel_aspect"] = p.PixelAspect
	}
	if len(p.ToolsEnv) > 0 {
		out["tools_env"] = append([]string{}, p.ToolsEnv...)
	}
	return out
}
