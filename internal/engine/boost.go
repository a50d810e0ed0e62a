package engine

import (
	"sort"
	"time"

	"intraops/internal/config"
	"intraops/internal/domain"
)

// Score computes the read-time priority of a task. Manual boost short-circuits
// to a score above anything reachable by the weighted terms; otherwise impact
// and urgency contribute linearly and due-date proximity adds a stepped bonus.
// Monotone in every input: raising impact, urgency, or due-date pressure never
// lowers the score. The score is never persisted.
func Score(t domain.Task, now time.Time, cfg *config.Config) int {
	b := cfg.Boost
	if t.ManualBoost {
		return b.ManualScore
	}
	return t.Impact*b.ImpactWeight + t.Urgency*b.UrgencyWeight + dueScore(t.DueDate, now, cfg)
}

func dueScore(due *string, now time.Time, cfg *config.Config) int {
	if due == nil || *due == "" {
		return 0
	}
	d, err := time.Parse("2006-01-02", *due)
	if err != nil {
		if d, err = time.Parse(time.RFC3339, *due); err != nil {
			return 0
		}
	}
	b := cfg.Boost
	days := int(d.Sub(now).Hours() / 24)
	switch {
	case d.Before(now):
		return b.OverdueScore
	case days <= b.DueSoonDays:
		return b.DueSoonScore
	case days <= b.DueNearDays:
		return b.DueNearScore
	default:
		return 0
	}
}

func fillBoost(tasks []domain.Task, now time.Time, cfg *config.Config) {
	for i := range tasks {
		tasks[i].Boost = Score(tasks[i], now, cfg)
	}
}

// SortByPriority orders tasks boost-descending, ties broken by due date
// ascending (nulls last), then id. Fills each task's Boost field.
func SortByPriority(tasks []domain.Task, now time.Time, cfg *config.Config) {
	fillBoost(tasks, now, cfg)
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Boost != b.Boost {
			return a.Boost > b.Boost
		}
		switch {
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate != nil && b.DueDate != nil && *a.DueDate != *b.DueDate:
			return *a.DueDate < *b.DueDate
		}
		return a.ID < b.ID
	})
}

// sortByDueDate orders tasks due date ascending with nulls last, then id.
func sortByDueDate(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate != nil && b.DueDate != nil && *a.DueDate != *b.DueDate:
			return *a.DueDate < *b.DueDate
		}
		return a.ID < b.ID
	})
}

// sortByCreatedAt orders tasks newest first, then id.
func sortByCreatedAt(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		return a.ID < b.ID
	})
}
