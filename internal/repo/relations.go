package repo

import (
	"context"
	"database/sql"

	"intraops/internal/domain"
)

func (r Repo) RelationExists(ctx context.Context, tx *sql.Tx, taskID, relatedID, typeID int64) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM task_relations WHERE task_id=? AND related_task_id=? AND type_id=?`, taskID, relatedID, typeID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) InsertRelation(ctx context.Context, tx *sql.Tx, taskID, relatedID, typeID int64, createdAt string) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO task_relations(task_id,related_task_id,type_id,created_at) VALUES (?,?,?,?)`,
		taskID, relatedID, typeID, createdAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) DeleteRelation(ctx context.Context, tx *sql.Tx, taskID, relationID int64) error {
	return oneAffected(tx.ExecContext(ctx, `DELETE FROM task_relations WHERE id=? AND task_id=?`, relationID, taskID))
}

func (r Repo) ListRelations(ctx context.Context, taskID int64) ([]domain.Relation, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT tr.id, tr.task_id, tr.related_task_id, rt.code, tr.created_at
FROM task_relations tr JOIN relation_types rt ON rt.id=tr.type_id WHERE tr.task_id=? ORDER BY tr.id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Relation
	for rows.Next() {
		var rel domain.Relation
		if err := rows.Scan(&rel.ID, &rel.TaskID, &rel.RelatedTaskID, &rel.TypeCode, &rel.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rel)
	}
	return res, rows.Err()
}
