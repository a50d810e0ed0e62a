package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"intraops/internal/comments"
	"intraops/internal/domain"
	"intraops/internal/engine"
)

func registerComments(api huma.API, m *comments.Manager) {
	huma.Register(api, huma.Operation{
		OperationID: "task-comments",
		Method:      http.MethodGet,
		Path:        "/tareas/{id}/comentarios",
		Summary:     "Comment thread",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body []domain.Comment `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		thread, err := m.Thread(ctx, input.ID, p.PersonID)
		if err != nil {
			return nil, handleError(err)
		}
		if thread == nil {
			thread = []domain.Comment{}
		}
		return &struct {
			Body []domain.Comment `json:"body"`
		}{Body: thread}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "post-comment",
		Method:        http.MethodPost,
		Path:          "/tareas/{id}/comentarios",
		Summary:       "Post a comment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			Content     string                   `json:"content"`
			ReplyToID   *int64                   `json:"reply_to_id,omitempty"`
			Mentions    []int64                  `json:"mentions,omitempty"`
			Attachments []engine.AttachmentInput `json:"attachments,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body []domain.Comment `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Content == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "content is required", nil)
		}
		thread, err := m.Post(ctx, p.PersonID, input.ID, input.Body.Content, input.Body.ReplyToID, input.Body.Mentions, input.Body.Attachments)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Comment `json:"body"`
		}{Body: thread}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-reaction",
		Method:      http.MethodPost,
		Path:        "/comentarios/{id}/reacciones",
		Summary:     "Toggle an emoji reaction",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			Emoji string `json:"emoji"`
		} `json:"body"`
	}) (*struct {
		Body []domain.ReactionSummary `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Emoji == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "emoji is required", nil)
		}
		summaries, err := m.ToggleReaction(ctx, p.PersonID, input.ID, input.Body.Emoji)
		if err != nil {
			return nil, handleError(err)
		}
		if summaries == nil {
			summaries = []domain.ReactionSummary{}
		}
		return &struct {
			Body []domain.ReactionSummary `json:"body"`
		}{Body: summaries}, nil
	})
}
