package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/workflow"
)

func registerTeam(api huma.API, e workflow.Engine, auth AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-team-member",
		Method:        http.MethodPost,
		Path:          "/team",
		Summary:       "Create team member",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateTeamMemberRequest `json:"body"`
	}) (*struct {
		Body domain.TeamMember `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		m, err := e.CreateTeamMember(ctx, input.Body.Name, input.Body.Email, input.Body.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TeamMember `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-team",
		Method:      http.MethodGet,
		Path:        "/team",
		Summary:     "List team members",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.TeamMember `json:"body"`
	}, error) {
		items, err := e.Repo.ListTeamMembers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TeamMember `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "mint-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Mint API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body MintAPIKeyRequest `json:"body"`
	}) (*struct {
		Body MintAPIKeyResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		k, raw, err := e.MintAPIKey(ctx, input.Body.MemberID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MintAPIKeyResponse `json:"body"`
		}{Body: MintAPIKeyResponse{
			ID:        k.ID,
			MemberID:  k.MemberID,
			Name:      k.Name,
			Key:       raw,
			CreatedAt: k.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "issue-token",
		Method:      http.MethodPost,
		Path:        "/auth/token",
		Summary:     "Issue bearer token",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body IssueTokenRequest `json:"body"`
	}) (*struct {
		Body IssueTokenResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := e.Repo.GetTeamMember(ctx, input.Body.MemberID); err != nil {
			return nil, handleError(err)
		}
		token, err := IssueToken(auth.JWTSecret, input.Body.MemberID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IssueTokenResponse `json:"body"`
		}{Body: IssueTokenResponse{Token: token}}, nil
	})
}

func registerActivity(api huma.API, e workflow.Engine) {
	type activityInput struct {
		EntityKind string `path:"entity_kind" enum:"project,room,stage,version"`
		EntityID   string `path:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "entity-activity",
		Method:      http.MethodGet,
		Path:        "/activity/{entity_kind}/{entity_id}",
		Summary:     "Entity activity feed",
	}, func(ctx context.Context, input *activityInput) (*struct {
		Body []domain.ActivityEntry `json:"body"`
	}, error) {
		items, err := e.Repo.ListActivity(ctx, input.EntityKind, input.EntityID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ActivityEntry `json:"body"`
		}{Body: items}, nil
	})
}
