package hierarchy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefaults() Params {
	p := DefaultParams()
	p.ClipIn = 1
	p.ClipOut = 100
	return p
}

func TestMapper_ShotCutOverridesNonzeroOnly(t *testing.T) {
	m := NewMapper(nil)

	row, err := m.ToRow(RawRow{
		"type":    "shot",
		"id":      "SH010",
		"parent":  ",P,shot,",
		"cut_in":  0,
		"cut_out": 120,
	}, testDefaults())
	require.NoError(t, err)

	shot, ok := row.(*Shot)
	require.True(t, ok)
	assert.Equal(t, int64(1), shot.Params.ClipIn)
	assert.Equal(t, int64(120), shot.Params.ClipOut)
	assert.Equal(t, float64(25), shot.Params.FPS)
}

func TestMapper_ShotCutFromJSONNumbers(t *testing.T) {
	row, err := NewMapper(nil).ToRow(RawRow{
		"type":    "shot",
		"id":      json.Number("10"),
		"parent":  ",P,shot,",
		"cut_in":  json.Number("0"),
		"cut_out": json.Number("48"),
	}, testDefaults())
	require.NoError(t, err)

	shot := row.(*Shot)
	assert.Equal(t, "10", shot.ID)
	assert.Equal(t, int64(1), shot.Params.ClipIn)
	assert.Equal(t, int64(48), shot.Params.ClipOut)
}

func TestMapper_UnknownType(t *testing.T) {
	m := NewMapper(nil)

	row, err := m.ToRow(RawRow{"type": "nonexistent_type", "id": "x", "parent": ",P,"}, testDefaults())
	assert.Nil(t, row)

	var unknown *UnknownTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nonexistent_type", unknown.Type)
}

func TestMapper_MalformedRows(t *testing.T) {
	m := NewMapper(nil)

	tests := []struct {
		name  string
		raw   RawRow
		field string
	}{
		{"missing type", RawRow{"id": "a"}, "type"},
		{"missing id", RawRow{"type": "asset", "parent": ",P,asset,"}, "id"},
		{"missing parent", RawRow{"type": "asset", "id": "tree"}, "parent"},
		{"bad src id", RawRow{"type": "asset", "id": "tree", "parent": ",P,", "src_id": "abc"}, "src_id"},
		{"bad params", RawRow{"type": "asset", "id": "tree", "parent": ",P,", "params": map[string]any{"fps": "fast"}}, "params.fps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := m.ToRow(tt.raw, testDefaults())
			assert.Nil(t, row)

			var mapping *MappingError
			require.ErrorAs(t, err, &mapping)
			assert.Equal(t, tt.field, mapping.Field)
		})
	}
}

func TestMapper_StripsPrivatePrefixAndIgnoresExtras(t *testing.T) {
	m := NewMapper(nil)

	row, err := m.ToRow(RawRow{
		"type":     "asset",
		"_id":      "tree",
		"__parent": ",P,asset,prop,",
		"_src_id":  float64(12),
		"unknown":  "ignored",
	}, testDefaults())
	require.NoError(t, err)

	asset, ok := row.(*Asset)
	require.True(t, ok)
	assert.Equal(t, "tree", asset.ID)
	assert.Equal(t, ",P,asset,prop,", asset.Parent)
	require.NotNil(t, asset.SrcID)
	assert.Equal(t, int64(12), *asset.SrcID)
}

func TestMapper_PlainKeyWinsOverPrefixed(t *testing.T) {
	m := NewMapper(nil)

	// порядок обхода map случаен, поэтому гоняем несколько раз
	for i := 0; i < 50; i++ {
		row, err := m.ToRow(RawRow{
			"type":     "asset",
			"__id":     "deep",
			"_id":      "shallow",
			"id":       "tree",
			"_parent":  ",P,asset,other,",
			"parent":   ",P,asset,prop,",
			"__src_id": 3,
			"_src_id":  12,
		}, testDefaults())
		require.NoError(t, err)

		asset := row.(*Asset)
		assert.Equal(t, "tree", asset.ID)
		assert.Equal(t, ",P,asset,prop,", asset.Parent)
		require.NotNil(t, asset.SrcID)
		assert.Equal(t, int64(12), *asset.SrcID)
	}
}

func TestMapper_ParamsOverlayDefaults(t *testing.T) {
	m := NewMapper(nil)

	row, err := m.ToRow(RawRow{
		"type":   "sequence",
		"id":     "SQ01",
		"parent": ",P,shot,",
		"params": map[string]any{"fps": 24, "frame_start": float64(1), "tools_env": []any{"maya"}},
	}, testDefaults())
	require.NoError(t, err)

	p := row.Common().Params
	assert.Equal(t, float64(24), p.FPS)
	assert.Equal(t, int64(1), p.FrameStart)
	assert.Equal(t, []string{"maya"}, p.ToolsEnv)
	assert.Equal(t, int64(1920), p.ResolutionWidth)
}

func TestMapper_TaskType(t *testing.T) {
	m := NewMapper(nil)
	parent := ",P,asset,prop,tree,"

	row, err := m.ToRow(RawRow{"type": "task", "id": "model_1", "parent": parent, "step": map[string]any{"name": "Model"}}, testDefaults())
	require.NoError(t, err)
	assert.Equal(t, "Model", row.(*Task).TaskType)

	row, err = m.ToRow(RawRow{"type": "task", "id": "model_2", "parent": parent, "task_type": "Rig", "step_name": "Model"}, testDefaults())
	require.NoError(t, err)
	assert.Equal(t, "Rig", row.(*Task).TaskType)

	row, err = m.ToRow(RawRow{"type": "task", "id": "model_3", "parent": parent}, testDefaults())
	require.NoError(t, err)
	assert.Equal(t, "", row.(*Task).TaskType)
}

func TestMapper_ProjectUsesStepCatalog(t *testing.T) {
	steps := []ProjectStep{{Code: "Animation", ShortName: "ANM"}, {Code: "Layout", ShortName: "LAY"}}
	m := NewMapper(steps)

	row, err := m.ToRow(RawRow{"type": "project", "id": "P", "src_id": 42, "code": "p"}, testDefaults())
	require.NoError(t, err)

	project, ok := row.(*Project)
	require.True(t, ok)
	assert.Equal(t, "p", project.Code)
	assert.Equal(t, steps, project.Config.Steps)
	assert.Empty(t, project.Parent)
}

func TestMapper_MapRowsKeepsGoodRows(t *testing.T) {
	m := NewMapper(nil)

	rows, failed := m.MapRows([]RawRow{
		{"type": "project", "id": "P"},
		{"type": "bogus", "id": "x"},
		{"type": "group", "id": "shot", "parent": ",P,"},
		{"type": "asset"},
	}, testDefaults())

	require.Len(t, rows, 2)
	assert.Equal(t, TypeProject, rows[0].Type())
	assert.Equal(t, TypeGroup, rows[1].Type())

	require.Len(t, failed, 2)
	assert.Equal(t, 1, failed[0].Index)
	assert.Equal(t, 3, failed[1].Index)

	var unknown *UnknownTypeError
	assert.ErrorAs(t, failed[0], &unknown)
}

func TestMapper_RoundTrip(t *testing.T) {
	m := NewMapper(nil)
	src := int64(9)
	shot := &Shot{
		Base:         Base{ID: "SH010", SrcID: &src, Parent: ",P,shot,SQ01,", Params: testDefaults()},
		LinkedAssets: []LinkedAsset{{ID: 3, Name: "hero"}},
	}
	shot.Params.ClipOut = 150

	row, err := m.ToRow(ToRaw(shot), testDefaults())
	require.NoError(t, err)
	assert.Equal(t, shot, row)
}
