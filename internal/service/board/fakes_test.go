package board

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"projecthub/internal/apperr"
	"projecthub/internal/model"
)

type fakeTaskStore struct {
	mu         sync.Mutex
	nextID     int
	tasks      map[int]model.Task
	countCalls int
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{
		nextID: 1,
		tasks:  make(map[int]model.Task),
	}
}

func (s *fakeTaskStore) Insert(_ context.Context, t *model.Task) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	stored := *t
	stored.ID = id
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	s.tasks[id] = stored
	return id, nil
}

func (s *fakeTaskStore) GetByID(_ context.Context, id int) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, apperr.NotFound("task", id)
	}
	out := t
	return &out, nil
}

func (s *fakeTaskStore) ListByProject(_ context.Context, projectID int) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Task
	for _, t := range s.tasks {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *fakeTaskStore) MaxPositionForStatus(_ context.Context, projectID int, status string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	max := 0
	for _, t := range s.tasks {
		if t.ProjectID == projectID && t.Status == status && t.Position > max {
			max = t.Position
		}
	}
	return max, nil
}

func (s *fakeTaskStore) Move(_ context.Context, id int, patch model.TaskPatch, shift *model.PositionShift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return apperr.NotFound("task", id)
	}
	if shift != nil {
		for tid, t := range s.tasks {
			if t.ProjectID == shift.ProjectID && t.Status == shift.Status && t.Position >= shift.FromPosition {
				t.Position++
				s.tasks[tid] = t
			}
		}
	}
	s.applyPatch(id, patch)
	return nil
}

func (s *fakeTaskStore) Update(_ context.Context, id int, patch model.TaskPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return apperr.NotFound("task", id)
	}
	s.applyPatch(id, patch)
	return nil
}

// applyPatch assumes the caller holds mu and the task exists.
func (s *fakeTaskStore) applyPatch(id int, patch model.TaskPatch) {
	t := s.tasks[id]

	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.AssignedTo != nil {
		t.AssignedTo = patch.AssignedTo
	}
	if patch.ClearAssignee {
		t.AssignedTo = nil
	}
	if patch.DueDate != nil {
		t.DueDate = patch.DueDate
	}
	if patch.ClearDueDate {
		t.DueDate = nil
	}
	if patch.CompletedAt != nil {
		t.CompletedAt = patch.CompletedAt
	}
	if patch.ClearCompletedAt {
		t.CompletedAt = nil
	}
	if patch.Position != nil {
		t.Position = *patch.Position
	}
	t.UpdatedAt = time.Now()
	s.tasks[id] = t
}

func (s *fakeTaskStore) Delete(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return apperr.NotFound("task", id)
	}
	delete(s.tasks, id)
	return nil
}

func (s *fakeTaskStore) CountByStatus(_ context.Context, projectID int) (*model.TaskStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.countCalls++
	stats := &model.TaskStats{}
	for _, t := range s.tasks {
		if t.ProjectID != projectID {
			continue
		}
		stats.Total++
		switch t.Status {
		case model.TaskStatusTodo:
			stats.Todo++
		case model.TaskStatusInProgress:
			stats.InProgress++
		case model.TaskStatusReview:
			stats.Review++
		case model.TaskStatusCompleted:
			stats.Completed++
		}
	}
	return stats, nil
}

func (s *fakeTaskStore) stored(id int) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

type fakeCommentStore struct {
	mu       sync.Mutex
	nextID   int
	comments []model.TaskComment
}

func newFakeCommentStore() *fakeCommentStore {
	return &fakeCommentStore{nextID: 1}
}

func (s *fakeCommentStore) Insert(_ context.Context, c *model.TaskComment) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	stored := *c
	stored.ID = id
	stored.CreatedAt = time.Now()
	s.comments = append(s.comments, stored)
	return id, nil
}

func (s *fakeCommentStore) ListByTask(_ context.Context, taskID int) ([]model.TaskComment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.TaskComment
	for _, c := range s.comments {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeProjectStore struct {
	mu       sync.Mutex
	projects map[int]model.Project
}

func newFakeProjectStore() *fakeProjectStore {
	return &fakeProjectStore{projects: make(map[int]model.Project)}
}

func (s *fakeProjectStore) put(p model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
}

func (s *fakeProjectStore) GetByID(_ context.Context, id int) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, apperr.NotFound("project", id)
	}
	out := p
	return &out, nil
}

type fakeStatsCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeStatsCache() *fakeStatsCache {
	return &fakeStatsCache{data: make(map[string][]byte)}
}

func (c *fakeStatsCache) Get(_ context.Context, key string, dest any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.data[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (c *fakeStatsCache) Set(_ context.Context, key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.data[key] = raw
}

func (c *fakeStatsCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}
