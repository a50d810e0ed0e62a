package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"intraops/internal/domain"
	"intraops/internal/engine"
)

func registerMembers(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "add-responsible",
		Method:      http.MethodPost,
		Path:        "/tareas/{id}/responsables",
		Summary:     "Add or promote a responsible",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64                   `path:"id"`
		Body engine.ResponsibleInput `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AddResponsible(ctx, p.PersonID, input.ID, input.Body.PersonID, input.Body.IsLeader)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-responsible",
		Method:      http.MethodDelete,
		Path:        "/tareas/{id}/responsables/{person_id}",
		Summary:     "Remove a responsible",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID       int64 `path:"id"`
		PersonID int64 `path:"person_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RemoveResponsible(ctx, p.PersonID, input.ID, input.PersonID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-collaborator",
		Method:      http.MethodPost,
		Path:        "/tareas/{id}/colaboradores",
		Summary:     "Add a collaborator",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64                    `path:"id"`
		Body engine.CollaboratorInput `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AddCollaborator(ctx, p.PersonID, input.ID, input.Body.PersonID, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-collaborator",
		Method:      http.MethodDelete,
		Path:        "/tareas/{id}/colaboradores/{person_id}",
		Summary:     "Remove a collaborator",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID       int64 `path:"id"`
		PersonID int64 `path:"person_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.RemoveCollaborator(ctx, p.PersonID, input.ID, input.PersonID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-tag",
		Method:      http.MethodPut,
		Path:        "/tareas/{id}/etiquetas/{tag_id}",
		Summary:     "Assign a tag",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID    int64 `path:"id"`
		TagID int64 `path:"tag_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.AssignTag(ctx, p.PersonID, input.ID, input.TagID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unassign-tag",
		Method:      http.MethodDelete,
		Path:        "/tareas/{id}/etiquetas/{tag_id}",
		Summary:     "Unassign a tag",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID    int64 `path:"id"`
		TagID int64 `path:"tag_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.UnassignTag(ctx, p.PersonID, input.ID, input.TagID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}
