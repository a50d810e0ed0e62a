// Package comments implements threaded task comments with mentions, emoji
// reactions, and per-viewer rendering of the thread.
package comments

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"intraops/internal/config"
	"intraops/internal/domain"
	"intraops/internal/engine"
	"intraops/internal/history"
	"intraops/internal/notify"
	"intraops/internal/repo"
)

const replyPreviewLen = 80

type Manager struct {
	DB       *sql.DB
	Repo     repo.Repo
	History  history.Writer
	Config   *config.Config
	Notifier *notify.Sender

	Now func() time.Time
}

func NewManager(db *sql.DB, cfg *config.Config, notifier *notify.Sender) *Manager {
	return &Manager{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		History:  history.Writer{DB: db},
		Config:   cfg,
		Notifier: notifier,
	}
}

func (m *Manager) timestamp() string {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	return now().UTC().Format(time.RFC3339)
}

func (m *Manager) liveTask(ctx context.Context, id int64) (domain.Task, error) {
	t, err := m.Repo.GetTask(ctx, id)
	if err != nil {
		return t, err
	}
	if t.DeletedAt != nil {
		return t, repo.ErrNotFound
	}
	return t, nil
}

// Post adds a comment and returns the whole thread rendered for the author.
// A reply must target a comment on the same task. When the client sends no
// mention list, @<digits> tokens in the content are used instead; mentions of
// unknown persons are dropped. Attachment descriptors land in the same
// transaction as the comment, scoped to it. Mentioned people other than the
// author are notified after commit.
func (m *Manager) Post(ctx context.Context, actorID, taskID int64, content string, replyTo *int64, mentions []int64, attachments []engine.AttachmentInput) ([]domain.Comment, error) {
	if content == "" {
		return nil, engine.ValidationError{Field: "content", Reason: "content is required"}
	}
	for _, a := range attachments {
		if a.Name == "" {
			return nil, engine.ValidationError{Field: "attachments", Reason: "attachment name is required"}
		}
	}
	t, err := m.liveTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if replyTo != nil {
		parent, err := m.Repo.GetComment(ctx, *replyTo)
		if err != nil {
			return nil, err
		}
		if parent.TaskID != taskID {
			return nil, fmt.Errorf("comment %d belongs to another task: %w", *replyTo, repo.ErrNotFound)
		}
	}
	if len(mentions) == 0 {
		mentions = ParseMentions(content)
	} else {
		mentions = dedupIDs(mentions)
	}
	persons, err := m.Repo.ListPersonsByIDs(ctx, mentions)
	if err != nil {
		return nil, err
	}

	ts := m.timestamp()
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	id, err := m.Repo.InsertComment(ctx, tx, domain.Comment{
		TaskID: taskID, AuthorID: actorID, Content: content, ReplyToID: replyTo, CreatedAt: ts,
	})
	if err != nil {
		return nil, err
	}
	for _, p := range persons {
		if err := m.Repo.InsertMention(ctx, tx, id, p.ID); err != nil {
			return nil, err
		}
	}
	for _, a := range attachments {
		_, err := m.Repo.InsertAttachment(ctx, tx, domain.Attachment{
			CommentID:  &id,
			Name:       a.Name,
			Mime:       a.Mime,
			Size:       a.Size,
			URL:        a.URL,
			DriveID:    a.DriveID,
			IsEmbedded: a.IsEmbedded,
			UploaderID: actorID,
			CreatedAt:  ts,
		})
		if err != nil {
			return nil, err
		}
	}
	err = m.History.Append(ctx, tx, taskID, actorID, history.KindComentario, history.Payload{"comment_id": id})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	var dests []notify.Destination
	for _, p := range persons {
		if p.ID != actorID {
			dests = append(dests, notify.Destination{PersonID: p.ID, RoutingID: p.RoutingID})
		}
	}
	if len(dests) > 0 {
		link := ""
		if m.Config.Notify.LinkBase != "" {
			link = fmt.Sprintf("%s/tareas/%d", m.Config.Notify.LinkBase, taskID)
		}
		m.Notifier.Send(notify.Notification{
			Kind:         notify.KindMention,
			Title:        "Te mencionaron en un comentario",
			Body:         t.Title,
			Payload:      map[string]any{"task_id": taskID, "comment_id": id},
			LinkURL:      link,
			Channels:     m.Config.Notify.Channels,
			Destinations: dests,
		})
	}
	return m.Thread(ctx, taskID, actorID)
}

// Thread returns every comment of a task rendered for one viewer: author
// names, is-mine flags, reply previews, mentions, comment attachments, and
// aggregated reactions.
func (m *Manager) Thread(ctx context.Context, taskID, viewerID int64) ([]domain.Comment, error) {
	if _, err := m.liveTask(ctx, taskID); err != nil {
		return nil, err
	}
	list, err := m.Repo.ListComments(ctx, taskID)
	if err != nil {
		return nil, err
	}
	mentions, err := m.Repo.ListMentionsByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	reactions, err := m.Repo.ListReactionsByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	attachments, err := m.Repo.ListCommentAttachmentsByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]string, len(list))
	authorIDs := make([]int64, 0, len(list))
	seen := map[int64]bool{}
	for _, c := range list {
		byID[c.ID] = c.Content
		if !seen[c.AuthorID] {
			seen[c.AuthorID] = true
			authorIDs = append(authorIDs, c.AuthorID)
		}
	}
	persons, err := m.Repo.ListPersonsByIDs(ctx, authorIDs)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(persons))
	for _, p := range persons {
		names[p.ID] = p.Name
	}

	attachByComment := map[int64][]domain.Attachment{}
	for _, a := range attachments {
		if a.CommentID != nil {
			attachByComment[*a.CommentID] = append(attachByComment[*a.CommentID], a)
		}
	}
	summaries := summarize(reactions, viewerID)

	for i := range list {
		c := &list[i]
		c.AuthorName = names[c.AuthorID]
		c.IsMine = c.AuthorID == viewerID
		c.Mentions = mentions[c.ID]
		c.Attachments = attachByComment[c.ID]
		c.Reactions = summaries[c.ID]
		if c.ReplyToID != nil {
			if parent, ok := byID[*c.ReplyToID]; ok {
				preview := truncatePreview(parent)
				c.ReplyPreview = &preview
			}
		}
	}
	return list, nil
}

// ToggleReaction adds the viewer's reaction or removes it if already present,
// then returns the comment's refreshed reaction summaries. Toggling twice is
// an involution.
func (m *Manager) ToggleReaction(ctx context.Context, actorID, commentID int64, emoji string) ([]domain.ReactionSummary, error) {
	if emoji == "" {
		return nil, engine.ValidationError{Field: "emoji", Reason: "emoji is required"}
	}
	c, err := m.Repo.GetComment(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if _, err := m.liveTask(ctx, c.TaskID); err != nil {
		return nil, err
	}

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	exists, err := m.Repo.ReactionExists(ctx, tx, commentID, actorID, emoji)
	if err != nil {
		return nil, err
	}
	if exists {
		err = m.Repo.DeleteReaction(ctx, tx, commentID, actorID, emoji)
	} else {
		err = m.Repo.InsertReaction(ctx, tx, domain.Reaction{
			CommentID: commentID, PersonID: actorID, Emoji: emoji, CreatedAt: m.timestamp(),
		})
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	reactions, err := m.Repo.ListReactionsByTask(ctx, c.TaskID)
	if err != nil {
		return nil, err
	}
	return summarize(reactions, actorID)[commentID], nil
}

// truncatePreview cuts long content at replyPreviewLen bytes, backing up to a
// rune boundary so the preview is always valid UTF-8.
func truncatePreview(s string) string {
	if len(s) <= replyPreviewLen {
		return s
	}
	cut := replyPreviewLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	var res []int64
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			res = append(res, id)
		}
	}
	return res
}

func summarize(reactions []domain.Reaction, viewerID int64) map[int64][]domain.ReactionSummary {
	res := map[int64][]domain.ReactionSummary{}
	for _, r := range reactions {
		list := res[r.CommentID]
		found := false
		for i := range list {
			if list[i].Emoji == r.Emoji {
				list[i].Count++
				if r.PersonID == viewerID {
					list[i].Mine = true
				}
				found = true
				break
			}
		}
		if !found {
			list = append(list, domain.ReactionSummary{
				Emoji: r.Emoji, Count: 1, Mine: r.PersonID == viewerID,
			})
		}
		res[r.CommentID] = list
	}
	return res
}
