package repo

import (
	"context"
	"database/sql"

	"intraops/internal/domain"
)

func scanComment(row taskRow) (domain.Comment, error) {
	var c domain.Comment
	var replyTo sql.NullInt64
	err := row.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Content, &replyTo, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if replyTo.Valid {
		c.ReplyToID = &replyTo.Int64
	}
	return c, nil
}

func (r Repo) GetComment(ctx context.Context, id int64) (domain.Comment, error) {
	return scanComment(r.DB.QueryRowContext(ctx, `SELECT id,task_id,author_id,content,reply_to_id,created_at FROM comments WHERE id=?`, id))
}

func (r Repo) ListComments(ctx context.Context, taskID int64) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,task_id,author_id,content,reply_to_id,created_at FROM comments WHERE task_id=? ORDER BY id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO comments(task_id,author_id,content,reply_to_id,created_at) VALUES (?,?,?,?,?)`,
		c.TaskID, c.AuthorID, c.Content, nullableInt64Ptr(c.ReplyToID), c.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) InsertMention(ctx context.Context, tx *sql.Tx, commentID, personID int64) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO comment_mentions(comment_id,person_id) VALUES (?,?)`, commentID, personID)
	return err
}

// ListMentionsByTask returns comment-id -> mentioned person ids for all
// comments of a task.
func (r Repo) ListMentionsByTask(ctx context.Context, taskID int64) (map[int64][]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT m.comment_id, m.person_id FROM comment_mentions m
JOIN comments c ON c.id=m.comment_id WHERE c.task_id=? ORDER BY m.comment_id, m.person_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[int64][]int64{}
	for rows.Next() {
		var commentID, personID int64
		if err := rows.Scan(&commentID, &personID); err != nil {
			return nil, err
		}
		res[commentID] = append(res[commentID], personID)
	}
	return res, rows.Err()
}

func (r Repo) ReactionExists(ctx context.Context, tx *sql.Tx, commentID, personID int64, emoji string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM comment_reactions WHERE comment_id=? AND person_id=? AND emoji=?`, commentID, personID, emoji).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) InsertReaction(ctx context.Context, tx *sql.Tx, reaction domain.Reaction) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO comment_reactions(comment_id,person_id,emoji,created_at) VALUES (?,?,?,?)`,
		reaction.CommentID, reaction.PersonID, reaction.Emoji, reaction.CreatedAt)
	return err
}

func (r Repo) DeleteReaction(ctx context.Context, tx *sql.Tx, commentID, personID int64, emoji string) error {
	return oneAffected(tx.ExecContext(ctx, `DELETE FROM comment_reactions WHERE comment_id=? AND person_id=? AND emoji=?`, commentID, personID, emoji))
}

// ListReactionsByTask returns every reaction row for the comments of a task.
func (r Repo) ListReactionsByTask(ctx context.Context, taskID int64) ([]domain.Reaction, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT rc.comment_id, rc.person_id, rc.emoji, rc.created_at FROM comment_reactions rc
JOIN comments c ON c.id=rc.comment_id WHERE c.task_id=? ORDER BY rc.comment_id, rc.emoji, rc.person_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Reaction
	for rows.Next() {
		var reaction domain.Reaction
		if err := rows.Scan(&reaction.CommentID, &reaction.PersonID, &reaction.Emoji, &reaction.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, reaction)
	}
	return res, rows.Err()
}
