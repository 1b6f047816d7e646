package repository

import (
	"context"
	"sort"
	"sync"

	"leecher/internal/models"
)

// MemoryScheduleStore is an in-process schedule store for tests and
// single-shot CLI runs.
type MemoryScheduleStore struct {
	mu       sync.Mutex
	projects map[string]*models.ScheduleProject
	queue    []*models.ScheduleQueueItem
	logs     []*models.ScheduleLog
	logged   map[string]struct{}
}

func NewMemoryScheduleStore() *MemoryScheduleStore {
	return &MemoryScheduleStore{
		projects: make(map[string]*models.ScheduleProject),
		logged:   make(map[string]struct{}),
	}
}

func (s *MemoryScheduleStore) UpsertProject(_ context.Context, project *models.ScheduleProject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *project
	s.projects[project.ProjectName] = &cp
	return nil
}

func (s *MemoryScheduleStore) DeleteProject(_ context.Context, projectName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectName]; !ok {
		return false, nil
	}
	delete(s.projects, projectName)
	return true, nil
}

func (s *MemoryScheduleStore) ListProjects(_ context.Context, q models.ListQuery) ([]*models.ScheduleProject, error) {
	s.mu.Lock()
	projects := make([]*models.ScheduleProject, 0, len(s.projects))
	for _, p := range s.projects {
		cp := *p
		projects = append(projects, &cp)
	}
	s.mu.Unlock()

	sort.Slice(projects, func(i, j int) bool {
		if projects[i].UpdatedAt.Equal(projects[j].UpdatedAt) {
			return projects[i].ProjectName < projects[j].ProjectName
		}
		return projects[i].UpdatedAt.Before(projects[j].UpdatedAt)
	})
	return models.Page(projects, q, func(p *models.ScheduleProject) string { return p.ProjectName }), nil
}

func (s *MemoryScheduleStore) EnqueueItem(_ context.Context, item *models.ScheduleQueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.queue = append(s.queue, &cp)
	return nil
}

func (s *MemoryScheduleStore) ListQueue(_ context.Context, q models.ListQuery) ([]*models.ScheduleQueueItem, error) {
	s.mu.Lock()
	items := make([]*models.ScheduleQueueItem, 0, len(s.queue))
	for _, item := range s.queue {
		cp := *item
		items = append(items, &cp)
	}
	s.mu.Unlock()
	return models.Page(items, q, func(i *models.ScheduleQueueItem) string { return i.Command.ProjectName }), nil
}

func (s *MemoryScheduleStore) RemoveQueueItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.queue {
		if item.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryScheduleStore) PurgeQueue(_ context.Context, projectName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.queue[:0]
	purged := 0
	for _, item := range s.queue {
		if item.Command.ProjectName == projectName {
			purged++
			continue
		}
		kept = append(kept, item)
	}
	s.queue = kept
	return purged, nil
}

func (s *MemoryScheduleStore) AppendLog(_ context.Context, log *models.ScheduleLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logged[log.QueueItemID]; ok {
		return nil
	}
	cp := *log
	s.logs = append(s.logs, &cp)
	s.logged[log.QueueItemID] = struct{}{}
	return nil
}

func (s *MemoryScheduleStore) HasLog(_ context.Context, queueItemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.logged[queueItemID]
	return ok, nil
}

func (s *MemoryScheduleStore) ListLogs(_ context.Context, q models.ListQuery) ([]*models.ScheduleLog, error) {
	s.mu.Lock()
	logs := make([]*models.ScheduleLog, 0, len(s.logs))
	for _, l := range s.logs {
		cp := *l
		logs = append(logs, &cp)
	}
	s.mu.Unlock()
	return models.Page(logs, q, func(l *models.ScheduleLog) string { return l.ProjectName }), nil
}

func (s *MemoryScheduleStore) Ping(context.Context) error {
	return nil
}
