package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"intraops/internal/domain"
	"intraops/internal/engine"
)

func registerCatalog(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-statuses",
		Method:      http.MethodGet,
		Path:        "/catalogo/estados",
		Summary:     "List workflow statuses",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Status `json:"body"`
	}, error) {
		items, err := e.Repo.ListStatuses(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Status `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-relation-types",
		Method:      http.MethodGet,
		Path:        "/catalogo/relaciones",
		Summary:     "List relation types",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.RelationType `json:"body"`
	}, error) {
		items, err := e.Repo.ListRelationTypes(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.RelationType `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tags",
		Method:      http.MethodGet,
		Path:        "/catalogo/etiquetas",
		Summary:     "List tags",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Tag `json:"body"`
	}, error) {
		items, err := e.Repo.ListTags(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Tag `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-tag",
		Method:        http.MethodPost,
		Path:          "/catalogo/etiquetas",
		Summary:       "Create tag",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Name  string `json:"name"`
			Color string `json:"color,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Tag `json:"body"`
	}, error) {
		if err := requireElevated(ctx); err != nil {
			return nil, err
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		tag, err := e.Repo.CreateTag(ctx, input.Body.Name, input.Body.Color)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Tag `json:"body"`
		}{Body: tag}, nil
	})
}
