package milestone

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"projecthub/internal/apperr"
	"projecthub/internal/model"
)

type fakeMilestoneStore struct {
	mu         sync.Mutex
	nextID     int
	milestones map[int]model.Milestone
	listCalls  int
	updateErr  error
}

func newFakeMilestoneStore() *fakeMilestoneStore {
	return &fakeMilestoneStore{
		nextID:     1,
		milestones: make(map[int]model.Milestone),
	}
}

func (s *fakeMilestoneStore) Insert(_ context.Context, m *model.Milestone) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	stored := *m
	stored.ID = id
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	s.milestones[id] = stored
	return id, nil
}

func (s *fakeMilestoneStore) GetByID(_ context.Context, id int) (*model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.milestones[id]
	if !ok {
		return nil, apperr.NotFound("milestone", id)
	}
	out := m
	return &out, nil
}

func (s *fakeMilestoneStore) ListByProject(_ context.Context, projectID int) ([]model.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listCalls++
	var out []model.Milestone
	for _, m := range s.milestones {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (s *fakeMilestoneStore) MaxPosition(_ context.Context, projectID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	max := 0
	for _, m := range s.milestones {
		if m.ProjectID == projectID && m.Position > max {
			max = m.Position
		}
	}
	return max, nil
}

func (s *fakeMilestoneStore) Update(_ context.Context, id int, patch model.MilestonePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.updateErr != nil {
		return s.updateErr
	}

	m, ok := s.milestones[id]
	if !ok {
		return apperr.NotFound("milestone", id)
	}

	if patch.Title != nil {
		m.Title = *patch.Title
	}
	if patch.Description != nil {
		m.Description = *patch.Description
	}
	if patch.DueDate != nil {
		m.DueDate = *patch.DueDate
	}
	if patch.Status != nil {
		m.Status = *patch.Status
	}
	if patch.Progress != nil {
		m.Progress = *patch.Progress
	}
	if patch.AssignedTo != nil {
		m.AssignedTo = patch.AssignedTo
	}
	if patch.ClearAssignee {
		m.AssignedTo = nil
	}
	if patch.CompletedAt != nil {
		m.CompletedAt = patch.CompletedAt
	}
	if patch.ClearCompletedAt {
		m.CompletedAt = nil
	}
	if patch.Position != nil {
		m.Position = *patch.Position
	}
	m.UpdatedAt = time.Now()
	s.milestones[id] = m
	return nil
}

func (s *fakeMilestoneStore) Delete(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.milestones[id]; !ok {
		return apperr.NotFound("milestone", id)
	}
	delete(s.milestones, id)
	return nil
}

// stored returns the raw persisted row, bypassing the read-time transform.
func (s *fakeMilestoneStore) stored(id int) (model.Milestone, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[id]
	return m, ok
}

type fakeActivityStore struct {
	mu        sync.Mutex
	nextID    int
	entries   []model.MilestoneActivity
	insertErr error
}

func newFakeActivityStore() *fakeActivityStore {
	return &fakeActivityStore{nextID: 1}
}

func (s *fakeActivityStore) Insert(_ context.Context, a *model.MilestoneActivity) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertErr != nil {
		return 0, s.insertErr
	}

	id := s.nextID
	s.nextID++

	stored := *a
	stored.ID = id
	stored.CreatedAt = time.Now()
	s.entries = append(s.entries, stored)
	return id, nil
}

func (s *fakeActivityStore) ListByMilestone(_ context.Context, milestoneID int) ([]model.MilestoneActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.MilestoneActivity
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].MilestoneID == milestoneID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func (s *fakeActivityStore) byType(milestoneID int, activityType string) []model.MilestoneActivity {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.MilestoneActivity
	for _, e := range s.entries {
		if e.MilestoneID == milestoneID && e.ActivityType == activityType {
			out = append(out, e)
		}
	}
	return out
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
	mu      sync.Mutex
	data    map[string][]byte
	hits    int
	deletes int
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
	if err := json.Unmarshal(raw, dest); err != nil {
		return false
	}
	c.hits++
	return true
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
	c.deletes++
	delete(c.data, key)
}

type publishedEvent struct {
	routingKey string
	payload    any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{routingKey: routingKey, payload: payload})
	return nil
}

func (p *fakePublisher) published() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEvent, len(p.events))
	copy(out, p.events)
	return out
}

var errStoreDown = errors.New("store down")
