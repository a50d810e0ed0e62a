package repo

import (
	"context"
	"database/sql"

	"intraops/internal/domain"
)

func scanAttachment(row taskRow) (domain.Attachment, error) {
	var a domain.Attachment
	var taskID, commentID sql.NullInt64
	var url, driveID sql.NullString
	err := row.Scan(&a.ID, &taskID, &commentID, &a.Name, &a.Mime, &a.Size, &url, &driveID, &a.IsEmbedded, &a.UploaderID, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if taskID.Valid {
		a.TaskID = &taskID.Int64
	}
	if commentID.Valid {
		a.CommentID = &commentID.Int64
	}
	if url.Valid {
		a.URL = url.String
	}
	if driveID.Valid {
		a.DriveID = driveID.String
	}
	return a, nil
}

const attachmentColumns = `id,task_id,comment_id,name,mime,size,url,drive_id,is_embedded,uploader_id,created_at`

func (r Repo) GetAttachment(ctx context.Context, id int64) (domain.Attachment, error) {
	return scanAttachment(r.DB.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id=?`, id))
}

func (r Repo) InsertAttachment(ctx context.Context, tx *sql.Tx, a domain.Attachment) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO attachments(task_id,comment_id,name,mime,size,url,drive_id,is_embedded,uploader_id,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		nullableInt64Ptr(a.TaskID), nullableInt64Ptr(a.CommentID), a.Name, a.Mime, a.Size,
		nullable(a.URL), nullable(a.DriveID), a.IsEmbedded, a.UploaderID, a.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DeleteAttachment hard-deletes the metadata row; the stored file's lifecycle
// belongs to the bridge.
func (r Repo) DeleteAttachment(ctx context.Context, tx *sql.Tx, id int64) error {
	return oneAffected(tx.ExecContext(ctx, `DELETE FROM attachments WHERE id=?`, id))
}

func (r Repo) ListTaskAttachments(ctx context.Context, taskID int64) ([]domain.Attachment, error) {
	return r.listAttachments(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE task_id=? ORDER BY id`, taskID)
}

// ListCommentAttachmentsByTask returns attachments of every comment on a task.
func (r Repo) ListCommentAttachmentsByTask(ctx context.Context, taskID int64) ([]domain.Attachment, error) {
	return r.listAttachments(ctx, `SELECT `+attachmentColumns+` FROM attachments
WHERE comment_id IN (SELECT id FROM comments WHERE task_id=?) ORDER BY id`, taskID)
}

func (r Repo) listAttachments(ctx context.Context, query string, args ...any) ([]domain.Attachment, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
