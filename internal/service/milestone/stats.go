package milestone

import (
	"context"
	"fmt"
	"sort"
	"time"

	"projecthub/internal/apperr"
	"projecthub/internal/model"
	"projecthub/pkg/metrics"
)

// upcomingWindow is how far ahead a due date counts as "upcoming".
const upcomingWindow = 14 * 24 * time.Hour

// recentCompletionsLimit caps the recent-completions list.
const recentCompletionsLimit = 3

func statsCacheKey(projectID int) string {
	return fmt.Sprintf("stats:timeline:%d", projectID)
}

// TimelineStats aggregates the project's milestones. Results are cached in
// redis with a short TTL; a cache failure falls back to computing directly.
func (s *Service) TimelineStats(ctx context.Context, actor model.Actor, projectID int) (*model.TimelineStats, error) {
	if actor.ID == 0 {
		return nil, apperr.ErrUnauthorized
	}

	if s.cache != nil {
		var cached model.TimelineStats
		if s.cache.Get(ctx, statsCacheKey(projectID), &cached) {
			metrics.IncrementStatsCacheLookup("timeline", "hit")
			return &cached, nil
		}
		metrics.IncrementStatsCacheLookup("timeline", "miss")
	}

	milestones, err := s.milestones.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	stats := computeTimelineStats(milestones, s.now())

	if s.cache != nil {
		s.cache.Set(ctx, statsCacheKey(projectID), stats)
	}
	return stats, nil
}

func computeTimelineStats(milestones []model.Milestone, now time.Time) *model.TimelineStats {
	stats := &model.TimelineStats{
		Total:             len(milestones),
		UpcomingDeadlines: []model.UpcomingDeadline{},
		RecentCompletions: []model.Milestone{},
	}

	progressSum := 0
	completed := []model.Milestone{}

	for _, m := range milestones {
		progressSum += m.Progress

		switch {
		case m.Status == model.MilestoneStatusCompleted:
			stats.Completed++
			completed = append(completed, m)
		case m.IsOverdue(now):
			stats.Overdue++
		case m.Status == model.MilestoneStatusInProgress:
			stats.InProgress++
		}

		if m.Status != model.MilestoneStatusCompleted &&
			!m.DueDate.Before(now) && m.DueDate.Sub(now) <= upcomingWindow {
			stats.UpcomingDeadlines = append(stats.UpcomingDeadlines, model.UpcomingDeadline{
				Milestone:    m,
				DaysUntilDue: int(m.DueDate.Sub(now).Hours() / 24),
			})
		}
	}

	if len(milestones) > 0 {
		stats.OverallProgress = progressSum / len(milestones)
	}

	sort.Slice(stats.UpcomingDeadlines, func(i, j int) bool {
		return stats.UpcomingDeadlines[i].DaysUntilDue < stats.UpcomingDeadlines[j].DaysUntilDue
	})

	sort.Slice(completed, func(i, j int) bool {
		ti, tj := completed[i].CompletedAt, completed[j].CompletedAt
		if ti == nil || tj == nil {
			return tj == nil && ti != nil
		}
		return ti.After(*tj)
	})
	if len(completed) > recentCompletionsLimit {
		completed = completed[:recentCompletionsLimit]
	}
	stats.RecentCompletions = completed

	return stats
}

// invalidateStats drops the cached aggregate after any mutation, best-effort.
func (s *Service) invalidateStats(ctx context.Context, projectID int) {
	if s.cache != nil {
		s.cache.Delete(ctx, statsCacheKey(projectID))
	}
}
