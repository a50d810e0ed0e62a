package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"intraops/internal/domain"
	"intraops/internal/engine"
	"intraops/internal/repo"
)

func registerTasks(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tareas",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body engine.CreateTaskInput `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Create(ctx, p.PersonID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tareas",
		Summary:     "List tasks by priority",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ClientID        int64  `query:"client_id"`
		StatusID        int64  `query:"status_id"`
		ParentID        int64  `query:"parent_id"`
		Mine            bool   `query:"mine"`
		IncludeArchived bool   `query:"include_archived"`
		Sort            string `query:"sort" enum:"priority,due_date,created_at" default:"priority"`
		Limit           int    `query:"limit" default:"50"`
		Offset          int    `query:"offset"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		filters := repo.TaskFilters{
			ClientID:        input.ClientID,
			StatusID:        input.StatusID,
			ParentID:        input.ParentID,
			IncludeArchived: input.IncludeArchived,
			Limit:           input.Limit,
			Offset:          input.Offset,
		}
		if input.Mine {
			filters.MineFor = p.PersonID
		}
		tasks, err := e.List(ctx, filters, input.Sort)
		if err != nil {
			return nil, handleError(err)
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "kanban-board",
		Method:      http.MethodGet,
		Path:        "/tareas/board",
		Summary:     "Kanban board",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []engine.BoardColumn `json:"body"`
	}, error) {
		board, err := e.Board(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.BoardColumn `json:"body"`
		}{Body: board}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tareas/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tareas/{id}",
		Summary:     "Update task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id"`
		Body engine.TaskPatch `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Patch(ctx, p.PersonID, input.ID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-status",
		Method:      http.MethodPatch,
		Path:        "/tareas/{id}/estado",
		Summary:     "Change task status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			StatusID int64  `json:"status_id"`
			Reason   string `json:"reason,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		status, err := e.Repo.GetStatus(ctx, input.Body.StatusID)
		if err == nil && status.IsCancelled && !p.Elevated() {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "elevated role required to cancel", nil)
		}
		t, err := e.SetStatus(ctx, p.PersonID, input.ID, input.Body.StatusID, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-approval",
		Method:      http.MethodPatch,
		Path:        "/tareas/{id}/aprobacion",
		Summary:     "Drive the approval sub-workflow",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			State  string `json:"approval_status" enum:"pending,approved,rejected"`
			Reason string `json:"reason,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SetApproval(ctx, p.PersonID, input.ID, input.Body.State, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-task-kanban",
		Method:      http.MethodPatch,
		Path:        "/tareas/{id}/kanban",
		Summary:     "Move task on the board",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			StatusID int64 `json:"status_id"`
			Order    int   `json:"order"`
		} `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.MoveKanban(ctx, p.PersonID, input.ID, input.Body.StatusID, input.Body.Order)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-task",
		Method:      http.MethodPost,
		Path:        "/tareas/{id}/archivo",
		Summary:     "Archive or unarchive task",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		Body struct {
			Archived bool `json:"archived"`
		} `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.SetArchived(ctx, p.PersonID, input.ID, input.Body.Archived)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}

func registerTrash(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "trash-task",
		Method:      http.MethodDelete,
		Path:        "/tareas/{id}",
		Summary:     "Move task to trash",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		if err := requireElevated(ctx); err != nil {
			return nil, err
		}
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.MoveToTrash(ctx, p.PersonID, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-trash",
		Method:      http.MethodGet,
		Path:        "/papelera",
		Summary:     "List trashed tasks",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		if err := requireElevated(ctx); err != nil {
			return nil, err
		}
		tasks, err := e.ListTrash(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if tasks == nil {
			tasks = []domain.Task{}
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: tasks}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-task",
		Method:      http.MethodPost,
		Path:        "/papelera/{id}/restaurar",
		Summary:     "Restore task from trash",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if err := requireElevated(ctx); err != nil {
			return nil, err
		}
		p, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Restore(ctx, p.PersonID, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}

func registerHistory(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "task-history",
		Method:      http.MethodGet,
		Path:        "/tareas/{id}/historial",
		Summary:     "Task audit trail",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID     int64  `path:"id"`
		Kind   string `query:"kind"`
		Limit  int    `query:"limit" default:"50"`
		Cursor int64  `query:"cursor"`
	}) (*struct {
		Body []domain.HistoryEntry `json:"body"`
	}, error) {
		if _, err := e.Repo.GetTask(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		entries, err := e.HistoryOf(ctx, repo.HistoryFilters{
			TaskID:   input.ID,
			Kind:     input.Kind,
			Limit:    input.Limit,
			CursorID: input.Cursor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if entries == nil {
			entries = []domain.HistoryEntry{}
		}
		return &struct {
			Body []domain.HistoryEntry `json:"body"`
		}{Body: entries}, nil
	})
}
