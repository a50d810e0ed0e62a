package server

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"intraops/internal/bridge"
	"intraops/internal/domain"
	"intraops/internal/engine"
)

func registerChecklist(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-checklist-item",
		Method:        http.MethodPost,
		Path:          "/tareas/{id}/checklist",
		Summary:       "Add checklist item",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			Title string `json:"title"`
		} `json:"body"`
	}) (*struct {
		Body domain.ChecklistItem `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		item, err := e.AddChecklistItem(ctx, p.PersonID, input.ID, input.Body.Title)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChecklistItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-checklist-item",
		Method:      http.MethodPatch,
		Path:        "/tareas/{id}/checklist/{item_id}",
		Summary:     "Update checklist item",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID     int64 `path:"id"`
		ItemID int64 `path:"item_id"`
		Body   struct {
			Title *string `json:"title,omitempty"`
			Done  *bool   `json:"done,omitempty"`
		} `json:"body"`
	}) (*struct{}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.UpdateChecklistItem(ctx, p.PersonID, input.ID, input.ItemID, input.Body.Title, input.Body.Done); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-checklist-item",
		Method:      http.MethodDelete,
		Path:        "/tareas/{id}/checklist/{item_id}",
		Summary:     "Delete checklist item",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID     int64 `path:"id"`
		ItemID int64 `path:"item_id"`
	}) (*struct{}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteChecklistItem(ctx, p.PersonID, input.ID, input.ItemID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-checklist",
		Method:      http.MethodPut,
		Path:        "/tareas/{id}/checklist/orden",
		Summary:     "Bulk reorder checklist",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			Items []engine.ChecklistOrder `json:"items"`
		} `json:"body"`
	}) (*struct {
		Body []domain.ChecklistItem `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ReorderChecklist(ctx, p.PersonID, input.ID, input.Body.Items)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ChecklistItem `json:"body"`
		}{Body: items}, nil
	})
}

func registerRelations(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-relation",
		Method:        http.MethodPost,
		Path:          "/tareas/{id}/relaciones",
		Summary:       "Relate two tasks",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			RelatedTaskID int64  `json:"related_task_id"`
			Type          string `json:"type"`
		} `json:"body"`
	}) (*struct {
		Body domain.Relation `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rel, err := e.AddRelation(ctx, p.PersonID, input.ID, input.Body.RelatedTaskID, input.Body.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Relation `json:"body"`
		}{Body: rel}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-relation",
		Method:      http.MethodDelete,
		Path:        "/tareas/{id}/relaciones/{relation_id}",
		Summary:     "Remove a relation",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID         int64 `path:"id"`
		RelationID int64 `path:"relation_id"`
	}) (*struct{}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveRelation(ctx, p.PersonID, input.ID, input.RelationID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAttachments(api huma.API, e *engine.Engine, store bridge.Bridge) {
	huma.Register(api, huma.Operation{
		OperationID:   "upload-task-attachment",
		Method:        http.MethodPost,
		Path:          "/tareas/{id}/adjuntos",
		Summary:       "Upload a task attachment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID       int64  `path:"id"`
		Filename string `query:"filename"`
		Embedded bool   `query:"embedded"`
		RawBody  []byte
	}) (*struct {
		Body domain.Attachment `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Filename == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "filename is required", nil)
		}
		if len(input.RawBody) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		// The task must be live before bytes are stored; a failed insert
		// afterwards would leave an orphaned file behind.
		if err := e.EnsureLive(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		stored, err := store.Store(ctx, fmt.Sprintf("task/%d", input.ID), input.Filename, bytes.NewReader(input.RawBody))
		if err != nil {
			return nil, handleError(err)
		}
		a, err := e.AddTaskAttachment(ctx, p.PersonID, input.ID, engine.AttachmentInput{
			Name:       stored.Name,
			Mime:       stored.Mime,
			Size:       stored.Size,
			URL:        stored.URL,
			DriveID:    stored.DriveID,
			IsEmbedded: input.Embedded,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Attachment `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-attachment",
		Method:      http.MethodDelete,
		Path:        "/adjuntos/{id}",
		Summary:     "Delete an attachment",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveAttachment(ctx, p.PersonID, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
