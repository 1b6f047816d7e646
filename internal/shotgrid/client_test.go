package shotgrid

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"leecher/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSite struct {
	t          *testing.T
	shots      []map[string]any
	project    bool
	search     []map[string]any
	lastSearch map[string]any
}

func (f *fakeSite) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		if r.PostForm.Get("client_id") != "leecher" || r.PostForm.Get("client_secret") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tok","token_type":"Bearer","expires_in":600}`)
	})

	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("GET /api/v1/entity/projects/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		if !f.project {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"errors":[{"status":404}]}`)
			return
		}
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		f.write(w, map[string]any{"data": map[string]any{
			"id": id, "type": "Project",
			"attributes": map[string]any{"name": "Demo", "code": "demo"},
		}})
	}))
	mux.HandleFunc("GET /api/v1/entity/steps", authed(func(w http.ResponseWriter, r *http.Request) {
		f.write(w, map[string]any{"data": []any{
			map[string]any{"id": 1, "type": "Step", "attributes": map[string]any{"code": "Animation", "short_name": "ANM"}},
		}})
	}))
	mux.HandleFunc("GET /api/v1/entity/shots", authed(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, "42", r.URL.Query().Get("filter[project.Project.id]"))
		size, _ := strconv.Atoi(r.URL.Query().Get("page[size]"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page[number]"))
		start := min((page-1)*size, len(f.shots))
		end := min(start+size, len(f.shots))
		f.write(w, map[string]any{"data": f.shots[start:end]})
	}))
	for _, c := range []string{"assets", "episodes", "sequences", "tasks"} {
		mux.HandleFunc("GET /api/v1/entity/"+c, authed(func(w http.ResponseWriter, r *http.Request) {
			f.write(w, map[string]any{"data": []any{}})
		}))
	}
	mux.HandleFunc("POST /api/v1/entity/event_log_entries/_search", authed(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(f.t, searchMediaType, r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.lastSearch = body
		f.write(w, map[string]any{"data": f.search})
	}))
	return mux
}

func (f *fakeSite) write(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(f.t, json.NewEncoder(w).Encode(v))
}

func shotResource(id int64, code string, cutIn, cutOut any) map[string]any {
	return map[string]any{
		"id": id, "type": "Shot",
		"attributes": map[string]any{"code": code, "sg_cut_in": cutIn, "sg_cut_out": cutOut},
		"relationships": map[string]any{
			"sg_sequence": map[string]any{"data": map[string]any{"id": 7, "type": "Sequence", "name": "SQ01"}},
			"assets":      map[string]any{"data": []any{map[string]any{"id": 3, "type": "Asset", "name": "hero"}}},
		},
	}
}

func newTestClient(t *testing.T, site *fakeSite, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(site.handler())
	t.Cleanup(srv.Close)

	creds := models.ShotgridCredentials{URL: srv.URL + "/", ScriptName: "leecher", ScriptKey: "secret"}
	return NewClient(context.Background(), creds, opts)
}

func TestClient_FetchHierarchy(t *testing.T) {
	site := &fakeSite{t: t, project: true, shots: []map[string]any{
		shotResource(10, "SH010", 1, 120),
		shotResource(11, "SH020", nil, nil),
		shotResource(12, "SH030", 5, 50),
	}}
	client := newTestClient(t, site, Options{PageSize: 2})

	h, err := client.FetchHierarchy(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, h.Project)

	assert.Equal(t, "Demo", h.Project.Name)
	assert.Equal(t, "demo", h.Project.Code)
	require.Len(t, h.Steps, 1)
	assert.Equal(t, "ANM", h.Steps[0].ShortName)

	require.Len(t, h.Shots, 3)
	first := h.Shots[0]
	assert.Equal(t, "SH010", first.Code)
	require.NotNil(t, first.Sequence)
	assert.Equal(t, int64(7), first.Sequence.ID)
	assert.Equal(t, []EntityRef{{ID: 3, Type: "Asset", Name: "hero"}}, first.LinkedAssets)
	require.True(t, first.HasParams())
	assert.Equal(t, ShotParams{CutIn: 1, CutOut: 120}, *first.Params)
	assert.False(t, h.Shots[1].HasParams())
	assert.Equal(t, "SH030", h.Shots[2].Code)
}

func TestClient_FetchHierarchyMissingProject(t *testing.T) {
	client := newTestClient(t, &fakeSite{t: t}, Options{})

	h, err := client.FetchHierarchy(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, h.Project)
}

func TestClient_BadCredentials(t *testing.T) {
	srv := httptest.NewServer((&fakeSite{t: t, project: true}).handler())
	defer srv.Close()

	creds := models.ShotgridCredentials{URL: srv.URL, ScriptName: "leecher", ScriptKey: "wrong"}
	client := NewClient(context.Background(), creds, Options{})

	_, err := client.FetchHierarchy(context.Background(), 42)
	assert.Error(t, err)
}

func TestClient_FieldsMapping(t *testing.T) {
	client := NewClient(context.Background(), models.ShotgridCredentials{URL: "https://sg.local"}, Options{
		FieldsMapping: models.FieldsMapping{
			"shot": map[string]any{"sg_cut_in": "sg_head_in"},
		},
	})

	assert.Equal(t, "code,sg_head_in", client.fieldList("shot", []string{"code", "sg_cut_in"}))
	assert.Equal(t, "sg_cut_in", client.fieldName("asset", "sg_cut_in"))
}

func TestEventPoller_Poll(t *testing.T) {
	site := &fakeSite{t: t, search: []map[string]any{
		{
			"id": 101, "type": "EventLogEntry",
			"attributes": map[string]any{"event_type": EventNewAsset, "created_at": "2024-03-01T10:00:00Z"},
			"relationships": map[string]any{
				"entity":  map[string]any{"data": map[string]any{"id": 5, "type": "Asset", "name": "tree"}},
				"project": map[string]any{"data": map[string]any{"id": 42, "type": "Project", "name": "Demo"}},
				"user":    map[string]any{"data": map[string]any{"id": 9, "type": "HumanUser", "name": "Ann"}},
			},
		},
		{"id": 105, "type": "EventLogEntry", "attributes": map[string]any{"event_type": EventNewAsset}},
	}}
	client := newTestClient(t, site, Options{})
	poller := NewEventPoller(client, 100, 0, nil)

	events, err := poller.Poll(context.Background())
	require.NoError(t, err)

	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, int64(5), ev.ID)
	assert.Equal(t, "tree", ev.Name)
	assert.Equal(t, int64(42), ev.Project.ID)
	assert.Equal(t, "Ann", ev.User.Name)
	assert.Equal(t, "Shotgun_Asset_New_42_5", ev.UniqueID())
	assert.Equal(t, int64(105), poller.Cursor())

	filters, ok := site.lastSearch["filters"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"id", "greater_than", float64(100)}, filters[0])
}
