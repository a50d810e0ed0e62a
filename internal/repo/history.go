package repo

import (
	"context"
	"strings"

	"intraops/internal/domain"
)

type HistoryFilters struct {
	TaskID   int64
	Kind     string
	Limit    int
	CursorID int64
}

// ListHistory returns history rows newest-first with id-cursor pagination.
func (r Repo) ListHistory(ctx context.Context, f HistoryFilters) ([]domain.HistoryEntry, error) {
	clauses := []string{"task_id=?"}
	args := []any{f.TaskID}
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.CursorID > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.CursorID)
	}
	query := `SELECT id,task_id,actor_id,kind,payload_json,ts FROM task_history WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		if err := rows.Scan(&h.ID, &h.TaskID, &h.ActorID, &h.Kind, &h.Payload, &h.TS); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}
