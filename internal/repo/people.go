package repo

import (
	"context"
	"database/sql"

	"intraops/internal/domain"
)

func (r Repo) ListResponsibles(ctx context.Context, taskID int64) ([]domain.Responsible, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT task_id,person_id,is_leader,created_at FROM task_responsibles WHERE task_id=? ORDER BY created_at, person_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Responsible
	for rows.Next() {
		var resp domain.Responsible
		if err := rows.Scan(&resp.TaskID, &resp.PersonID, &resp.IsLeader, &resp.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, resp)
	}
	return res, rows.Err()
}

// ClearLeaders drops the leader flag from every responsible of a task. Run in
// the same transaction as the SetLeader insert to keep the exclusivity
// invariant.
func (r Repo) ClearLeaders(ctx context.Context, tx *sql.Tx, taskID int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE task_responsibles SET is_leader=0 WHERE task_id=?`, taskID)
	return err
}

func (r Repo) UpsertResponsible(ctx context.Context, tx *sql.Tx, resp domain.Responsible) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_responsibles(task_id,person_id,is_leader,created_at) VALUES (?,?,?,?)
ON CONFLICT(task_id,person_id) DO UPDATE SET is_leader=excluded.is_leader`,
		resp.TaskID, resp.PersonID, resp.IsLeader, resp.CreatedAt)
	return err
}

func (r Repo) RemoveResponsible(ctx context.Context, tx *sql.Tx, taskID, personID int64) error {
	return oneAffected(tx.ExecContext(ctx, `DELETE FROM task_responsibles WHERE task_id=? AND person_id=?`, taskID, personID))
}

func (r Repo) ListCollaborators(ctx context.Context, taskID int64) ([]domain.Collaborator, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT task_id,person_id,role,created_at FROM task_collaborators WHERE task_id=? ORDER BY created_at, person_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Collaborator
	for rows.Next() {
		var c domain.Collaborator
		var role sql.NullString
		if err := rows.Scan(&c.TaskID, &c.PersonID, &role, &c.CreatedAt); err != nil {
			return nil, err
		}
		if role.Valid {
			c.Role = role.String
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpsertCollaborator(ctx context.Context, tx *sql.Tx, c domain.Collaborator) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_collaborators(task_id,person_id,role,created_at) VALUES (?,?,?,?)
ON CONFLICT(task_id,person_id) DO UPDATE SET role=excluded.role`,
		c.TaskID, c.PersonID, nullable(c.Role), c.CreatedAt)
	return err
}

func (r Repo) RemoveCollaborator(ctx context.Context, tx *sql.Tx, taskID, personID int64) error {
	return oneAffected(tx.ExecContext(ctx, `DELETE FROM task_collaborators WHERE task_id=? AND person_id=?`, taskID, personID))
}
