package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"leecher/internal/domain"
	"leecher/internal/export"
	"leecher/internal/hierarchy"
	"leecher/internal/models"
)

const maxBodyBytes = 1 << 20

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.svc.Store != nil {
		if err := s.svc.Store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "schedule store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// parseListQuery reads project_name, skip, limit and order (asc|desc).
func parseListQuery(r *http.Request) (models.ListQuery, error) {
	v := r.URL.Query()
	q := models.ListQuery{
		ProjectName: strings.TrimSpace(v.Get("project_name")),
		Limit:       models.DefaultListLimit,
	}

	if raw := v.Get("skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, errors.New("skip must be a non-negative integer")
		}
		q.Skip = n
	}
	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, errors.New("limit must be a positive integer")
		}
		q.Limit = n
	}
	switch strings.ToLower(v.Get("order")) {
	case "", "asc":
	case "desc":
		q.Descending = true
	default:
		return q, errors.New("order must be asc or desc")
	}
	return q, nil
}

func (s *HTTPServer) handleListProjects(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	projects, err := s.svc.Scheduler.ListProjects(r.Context(), q)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(projects))
}

func (s *HTTPServer) handleListQueue(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := s.svc.Scheduler.ListQueue(r.Context(), q)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (s *HTTPServer) handleListLogs(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logs, err := s.svc.Scheduler.ListLogs(r.Context(), q)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(logs))
}

func (s *HTTPServer) handleExportLogs(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if r.URL.Query().Get("limit") == "" {
		q.Limit = models.MaxListLimit
	}
	logs, err := s.svc.Scheduler.ListLogs(r.Context(), q)
	if err != nil {
		s.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="schedule_logs.xlsx"`)
	if err := export.WriteLogs(w, logs); err != nil {
		s.log.Error().Err(err).Msg("Failed to export schedule logs")
	}
}

func (s *HTTPServer) handleDrain(w http.ResponseWriter, r *http.Request) {
	// обрыв клиента не прерывает прогон
	report, err := s.svc.Drainer.Drain(context.WithoutCancel(r.Context()))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	body, ok := s.decodeBatchConfig(w, r)
	if !ok {
		return
	}

	item, err := s.svc.Scheduler.Submit(r.Context(), project, body.ToCommand(project))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	purged, err := s.svc.Scheduler.Cancel(r.Context(), project)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project_name": project, "purged": purged})
}

func (s *HTTPServer) handleBatchCreate(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	body, ok := s.decodeBatchConfig(w, r)
	if !ok {
		return
	}
	cmd := body.ToCommand(project)
	if err := cmd.Validate(); err != nil {
		s.fail(w, err)
		return
	}
	s.writeBatchResult(w, s.svc.Batcher.Create(r.Context(), cmd))
}

func (s *HTTPServer) handleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	body, ok := s.decodeBatchConfig(w, r)
	if !ok {
		return
	}
	cmd := body.ToCommand(project)
	if err := cmd.Validate(); err != nil {
		s.fail(w, err)
		return
	}
	result, err := s.svc.Batcher.Update(r.Context(), cmd)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeBatchResult(w, result)
}

func (s *HTTPServer) handleBatchCheck(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	projectID, err := strconv.ParseInt(v.Get("shotgrid_project_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "shotgrid_project_id must be an integer")
		return
	}
	cmd := models.BatchCommand{
		ProjectID:   projectID,
		ProjectName: "check",
		Credentials: models.ShotgridCredentials{
			URL:        v.Get("shotgrid_url"),
			ScriptName: v.Get("script_name"),
			ScriptKey:  v.Get("script_key"),
		},
	}
	if err := cmd.Validate(); err != nil {
		s.fail(w, err)
		return
	}

	res, err := s.svc.Batcher.Check(r.Context(), cmd)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type mapRequest struct {
	Rows     []hierarchy.RawRow      `json:"rows"`
	Steps    []hierarchy.ProjectStep `json:"steps"`
	Defaults *hierarchy.Params       `json:"defaults,omitempty"`
}

type rowFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// handleMapHierarchy maps posted raw rows without writing anything.
func (s *HTTPServer) handleMapHierarchy(w http.ResponseWriter, r *http.Request) {
	var req mapRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	defaults := hierarchy.DefaultParams()
	if req.Defaults != nil {
		defaults = *req.Defaults
	}

	rows, failed := hierarchy.NewMapper(req.Steps).MapRows(req.Rows, defaults)
	failures := make([]rowFailure, 0, len(failed))
	for _, f := range failed {
		failures = append(failures, rowFailure{Index: f.Index, Error: f.Err.Error()})
	}

	mapped := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		mapped = append(mapped, map[string]any{
			"type": row.Type(),
			"path": hierarchy.PathOf(row),
			"row":  row,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"rows": mapped, "errors": failures})
}

func (s *HTTPServer) decodeBatchConfig(w http.ResponseWriter, r *http.Request) (models.BatchConfig, bool) {
	var body models.BatchConfig
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return body, false
	}
	return body, true
}

func (s *HTTPServer) writeBatchResult(w http.ResponseWriter, result models.BatchResult) {
	if result == models.BatchWrongProjectName {
		writeError(w, http.StatusInternalServerError, "Openpype and Shotgrid project name does not correspond")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": result.String()})
}

// fail maps domain errors to status codes.
func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidCommand):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrProjectNotScheduled), errors.Is(err, domain.ErrProjectNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrDrainInProgress), errors.Is(err, domain.ErrWrongProjectName):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
