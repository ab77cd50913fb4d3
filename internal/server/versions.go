package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/workflow"
)

type versionBody struct {
	Body domain.Version `json:"body"`
}

func registerVersions(api huma.API, e workflow.Engine) {
	// Rendering versions hang off a stage, floorplan versions off the
	// project. Both funnel into the same engine call.
	huma.Register(api, huma.Operation{
		OperationID:   "create-stage-version",
		Method:        http.MethodPost,
		Path:          "/stages/{stage_id}/versions",
		Summary:       "Create rendering version",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		StageID string               `path:"stage_id"`
		Body    CreateVersionRequest `json:"body"`
	}) (*versionBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.CreateVersion(ctx, workflow.VersionCreateOptions{
			OwnerKind: "stage", OwnerID: input.StageID,
			Name: input.Body.Name, SourceFile: input.Body.SourceFile, ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &versionBody{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stage-versions",
		Method:      http.MethodGet,
		Path:        "/stages/{stage_id}/versions",
		Summary:     "List rendering versions",
	}, func(ctx context.Context, input *struct {
		StageID string `path:"stage_id"`
	}) (*struct {
		Body []domain.Version `json:"body"`
	}, error) {
		items, err := e.Repo.ListVersions(ctx, "stage", input.StageID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Version `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-floorplan-version",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/floorplans",
		Summary:       "Create floorplan version",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      CreateVersionRequest `json:"body"`
	}) (*versionBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.CreateVersion(ctx, workflow.VersionCreateOptions{
			OwnerKind: "project", OwnerID: input.ProjectID,
			Name: input.Body.Name, SourceFile: input.Body.SourceFile, ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &versionBody{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-floorplan-versions",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/floorplans",
		Summary:     "List floorplan versions",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.Version `json:"body"`
	}, error) {
		items, err := e.Repo.ListVersions(ctx, "project", input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Version `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/versions/{id}",
		Summary:     "Get version",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*versionBody, error) {
		v, err := e.Repo.GetVersion(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &versionBody{Body: v}, nil
	})

	type revAction struct {
		name string
		path string
		fn   func(context.Context, string, string, int64) (domain.Version, error)
	}
	for _, action := range []revAction{
		{"complete-version", "/versions/{id}/complete", e.CompleteVersion},
		{"reopen-version", "/versions/{id}/reopen", e.ReopenVersion},
	} {
		fn := action.fn
		huma.Register(api, huma.Operation{
			OperationID: action.name,
			Method:      http.MethodPost,
			Path:        action.path,
			Summary:     "Version status action",
			Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
		}, func(ctx context.Context, input *struct {
			ID   string     `path:"id"`
			Body RevRequest `json:"body"`
		}) (*versionBody, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			v, err := fn(ctx, input.ID, actorID, input.Body.Rev)
			if err != nil {
				return nil, handleError(err)
			}
			return &versionBody{Body: v}, nil
		})
	}

	type pushResult struct {
		Version  domain.Version        `json:"version"`
		Approval domain.ClientApproval `json:"approval"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "push-version",
		Method:      http.MethodPost,
		Path:        "/versions/{id}/push",
		Summary:     "Push version to client",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body PushVersionRequest `json:"body"`
	}) (*struct {
		Body pushResult `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, ap, err := e.PushVersionToClient(ctx, input.ID, input.Body.AssetIDs, actorID, input.Body.Rev)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body pushResult `json:"body"`
		}{Body: pushResult{Version: v, Approval: ap}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-version",
		Method:      http.MethodDelete,
		Path:        "/versions/{id}",
		Summary:     "Delete version",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteVersion(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAssets(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-asset",
		Method:        http.MethodPost,
		Path:          "/versions/{version_id}/assets",
		Summary:       "Add asset",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		VersionID string          `path:"version_id"`
		Body      AddAssetRequest `json:"body"`
	}) (*struct {
		Body domain.Asset `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AddAsset(ctx, workflow.AssetAddOptions{
			VersionID:      input.VersionID,
			Title:          input.Body.Title,
			URL:            input.Body.URL,
			ContentType:    input.Body.ContentType,
			SizeBytes:      input.Body.SizeBytes,
			Description:    input.Body.Description,
			IncludeInEmail: input.Body.IncludeInEmail,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Asset `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assets",
		Method:      http.MethodGet,
		Path:        "/versions/{version_id}/assets",
		Summary:     "List assets",
	}, func(ctx context.Context, input *struct {
		VersionID string `path:"version_id"`
	}) (*struct {
		Body []domain.Asset `json:"body"`
	}, error) {
		items, err := e.Repo.ListAssets(ctx, input.VersionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Asset `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-asset",
		Method:      http.MethodPatch,
		Path:        "/assets/{id}",
		Summary:     "Update asset",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body PatchAssetRequest `json:"body"`
	}) (*struct {
		Body domain.Asset `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.UpdateAsset(ctx, input.ID, workflow.AssetPatch{
			Title:          input.Body.Title,
			Description:    input.Body.Description,
			IncludeInEmail: input.Body.IncludeInEmail,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Asset `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-asset",
		Method:      http.MethodDelete,
		Path:        "/assets/{id}",
		Summary:     "Delete asset",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteAsset(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerNotes(api huma.API, e workflow.Engine) {
	type noteScope struct {
		name  string
		path  string
		scope string
	}
	for _, s := range []noteScope{
		{"version-notes", "/versions/{scope_id}/notes", "version"},
		{"stage-chat", "/stages/{scope_id}/chat", "stage"},
		{"project-chat", "/projects/{scope_id}/chat", "chat"},
	} {
		scope := s.scope
		huma.Register(api, huma.Operation{
			OperationID:   "add-" + s.name,
			Method:        http.MethodPost,
			Path:          s.path,
			Summary:       "Add note",
			DefaultStatus: http.StatusCreated,
			Errors:        []int{http.StatusNotFound, http.StatusUnprocessableEntity},
		}, func(ctx context.Context, input *struct {
			ScopeID string      `path:"scope_id"`
			Body    NoteRequest `json:"body"`
		}) (*struct {
			Body domain.Note `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			n, err := e.AddNote(ctx, workflow.NoteAddOptions{
				ScopeKind: scope, ScopeID: input.ScopeID, AuthorID: actorID, Body: input.Body.Body,
			})
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body domain.Note `json:"body"`
			}{Body: n}, nil
		})

		huma.Register(api, huma.Operation{
			OperationID: "list-" + s.name,
			Method:      http.MethodGet,
			Path:        s.path,
			Summary:     "List notes",
		}, func(ctx context.Context, input *struct {
			ScopeID string `path:"scope_id"`
		}) (*struct {
			Body []domain.Note `json:"body"`
		}, error) {
			items, err := e.Repo.ListNotes(ctx, scope, input.ScopeID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body []domain.Note `json:"body"`
			}{Body: items}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "edit-note",
		Method:      http.MethodPatch,
		Path:        "/notes/{id}",
		Summary:     "Edit note",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string      `path:"id"`
		Body NoteRequest `json:"body"`
	}) (*struct {
		Body domain.Note `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.EditNote(ctx, input.ID, input.Body.Body, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Note `json:"body"`
		}{Body: n}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-note",
		Method:      http.MethodDelete,
		Path:        "/notes/{id}",
		Summary:     "Delete note",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteNote(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerApprovals(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-version-approval",
		Method:      http.MethodGet,
		Path:        "/versions/{version_id}/approval",
		Summary:     "Get approval round",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		VersionID string `path:"version_id"`
	}) (*struct {
		Body domain.ClientApproval `json:"body"`
	}, error) {
		ap, err := e.Repo.GetApprovalByVersion(ctx, input.VersionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ClientApproval `json:"body"`
		}{Body: ap}, nil
	})

	// Token-scoped surface shared with the client: no auth, the token is
	// the capability.
	type clientView struct {
		Approval domain.ClientApproval `json:"approval"`
		Version  domain.Version        `json:"version"`
		Assets   []domain.Asset        `json:"assets"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "client-get-approval",
		Method:      http.MethodGet,
		Path:        "/client/approvals/{token}",
		Summary:     "Client approval view",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Token string `path:"token"`
	}) (*struct {
		Body clientView `json:"body"`
	}, error) {
		ap, err := e.Repo.GetApprovalByToken(ctx, input.Token)
		if err != nil {
			return nil, handleError(err)
		}
		v, err := e.Repo.GetVersion(ctx, ap.VersionID)
		if err != nil {
			return nil, handleError(err)
		}
		all, err := e.Repo.ListAssets(ctx, ap.VersionID)
		if err != nil {
			return nil, handleError(err)
		}
		snapshot := map[string]bool{}
		for _, id := range ap.AssetIDs {
			snapshot[id] = true
		}
		var shown []domain.Asset
		for _, a := range all {
			if snapshot[a.ID] {
				shown = append(shown, a)
			}
		}
		return &struct {
			Body clientView `json:"body"`
		}{Body: clientView{Approval: ap, Version: v, Assets: shown}}, nil
	})

	type decisionResult struct {
		Approval domain.ClientApproval `json:"approval"`
		Version  domain.Version        `json:"version"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "client-decision",
		Method:      http.MethodPost,
		Path:        "/client/approvals/{token}/decision",
		Summary:     "Record client decision",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Token string                `path:"token"`
		Body  ClientDecisionRequest `json:"body"`
	}) (*struct {
		Body decisionResult `json:"body"`
	}, error) {
		v, ap, err := e.RecordClientDecision(ctx, input.Token, input.Body.Decision, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body decisionResult `json:"body"`
		}{Body: decisionResult{Approval: ap, Version: v}}, nil
	})
}
