package engine_test

import (
	"testing"
	"time"

	"intraops/internal/config"
	"intraops/internal/domain"
	"intraops/internal/engine"
)

func TestScore(t *testing.T) {
	cfg := config.Default()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		task domain.Task
		want int
	}{
		{"manual boost dominates", domain.Task{ManualBoost: true, Impact: 3, Urgency: 3}, cfg.Boost.ManualScore},
		{"base weights", domain.Task{Impact: 2, Urgency: 3}, 2*cfg.Boost.ImpactWeight + 3*cfg.Boost.UrgencyWeight},
		{"overdue", domain.Task{Impact: 1, Urgency: 1, DueDate: strPtr("2026-03-01")},
			cfg.Boost.ImpactWeight + cfg.Boost.UrgencyWeight + cfg.Boost.OverdueScore},
		{"due soon", domain.Task{Impact: 1, Urgency: 1, DueDate: strPtr("2026-03-12")},
			cfg.Boost.ImpactWeight + cfg.Boost.UrgencyWeight + cfg.Boost.DueSoonScore},
		{"due near", domain.Task{Impact: 1, Urgency: 1, DueDate: strPtr("2026-03-20")},
			cfg.Boost.ImpactWeight + cfg.Boost.UrgencyWeight + cfg.Boost.DueNearScore},
		{"far future", domain.Task{Impact: 1, Urgency: 1, DueDate: strPtr("2026-06-01")},
			cfg.Boost.ImpactWeight + cfg.Boost.UrgencyWeight},
		{"unparseable due date ignored", domain.Task{Impact: 1, Urgency: 1, DueDate: strPtr("soon")},
			cfg.Boost.ImpactWeight + cfg.Boost.UrgencyWeight},
	}
	for _, tc := range cases {
		if got := engine.Score(tc.task, now, cfg); got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestSortByPriority(t *testing.T) {
	cfg := config.Default()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tasks := []domain.Task{
		{ID: 1, Impact: 1, Urgency: 1},
		{ID: 2, Impact: 1, Urgency: 1, DueDate: strPtr("2026-03-01")},
		{ID: 3, ManualBoost: true},
		{ID: 4, Impact: 3, Urgency: 3},
		{ID: 5, Impact: 1, Urgency: 1, DueDate: strPtr("2026-02-20")},
	}
	engine.SortByPriority(tasks, now, cfg)

	// manual first, then high weights, then the two overdue tasks by due
	// date, then the one with nothing going for it
	want := []int64{3, 4, 5, 2, 1}
	for i, id := range want {
		if tasks[i].ID != id {
			t.Fatalf("position %d: got id %d, want %d (order %v)", i, tasks[i].ID, id, taskIDs(tasks))
		}
	}
	if tasks[0].Boost != cfg.Boost.ManualScore {
		t.Fatalf("boost not filled: %d", tasks[0].Boost)
	}

	// equal boost, nil due date sorts after a set one, id breaks full ties
	tied := []domain.Task{
		{ID: 7, Impact: 2, Urgency: 2},
		{ID: 6, Impact: 2, Urgency: 2},
		{ID: 8, Impact: 2, Urgency: 2, DueDate: strPtr("2026-05-01")},
	}
	engine.SortByPriority(tied, now, cfg)
	if tied[0].ID != 8 || tied[1].ID != 6 || tied[2].ID != 7 {
		t.Fatalf("tie break order wrong: %v", taskIDs(tied))
	}
}

func taskIDs(tasks []domain.Task) []int64 {
	ids := make([]int64, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
