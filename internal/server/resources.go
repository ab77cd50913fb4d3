package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/workflow"
)

func registerClients(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-client",
		Method:        http.MethodPost,
		Path:          "/clients",
		Summary:       "Create client",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateClientRequest `json:"body"`
	}) (*struct {
		Body domain.Client `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateClient(ctx, input.Body.Name, input.Body.Email, input.Body.Phone)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Client `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-clients",
		Method:      http.MethodGet,
		Path:        "/clients",
		Summary:     "List clients",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Client `json:"body"`
	}, error) {
		items, err := e.Repo.ListClients(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Client `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-client",
		Method:      http.MethodGet,
		Path:        "/clients/{id}",
		Summary:     "Get client",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Client `json:"body"`
	}, error) {
		c, err := e.Repo.GetClient(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Client `json:"body"`
		}{Body: c}, nil
	})
}

func registerProjects(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, workflow.ProjectCreateOptions{
			ClientID:    input.Body.ClientID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, input *struct {
		ClientID string `query:"client_id"`
	}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := e.Repo.ListProjects(ctx, input.ClientID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{id}",
		Summary:     "Update project",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.UpdateProject(ctx, input.ID, input.Body.Status, input.Body.Description, actorID); err != nil {
			return nil, handleError(err)
		}
		p, err := e.Repo.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	type statusBody struct {
		ProjectID   string         `json:"project_id"`
		Status      string         `json:"status"`
		StageCounts map[string]int `json:"stage_counts"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "project-status",
		Method:      http.MethodGet,
		Path:        "/projects/{id}/status",
		Summary:     "Project status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body statusBody `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountStagesByStatus(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body statusBody `json:"body"`
		}{Body: statusBody{ProjectID: p.ID, Status: p.Status, StageCounts: counts}}, nil
	})
}

func registerRooms(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-room",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/rooms",
		Summary:       "Create room",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      CreateRoomRequest `json:"body"`
	}) (*struct {
		Body domain.Room `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		room, err := e.CreateRoom(ctx, input.ProjectID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Room `json:"body"`
		}{Body: room}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-rooms",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/rooms",
		Summary:     "List rooms",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.Room `json:"body"`
	}, error) {
		items, err := e.Repo.ListRooms(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Room `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-room-stages",
		Method:      http.MethodGet,
		Path:        "/rooms/{room_id}/stages",
		Summary:     "List room stages",
	}, func(ctx context.Context, input *struct {
		RoomID string `path:"room_id"`
	}) (*struct {
		Body []domain.Stage `json:"body"`
	}, error) {
		items, err := e.Repo.ListStages(ctx, input.RoomID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Stage `json:"body"`
		}{Body: items}, nil
	})
}

func registerStages(api huma.API, e workflow.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-stage",
		Method:      http.MethodGet,
		Path:        "/stages/{id}",
		Summary:     "Get stage",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Stage `json:"body"`
	}, error) {
		s, err := e.Repo.GetStage(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Stage `json:"body"`
		}{Body: s}, nil
	})

	// Status actions share one shape.
	type stageAction struct {
		name string
		path string
		fn   func(context.Context, string, string) (domain.Stage, error)
	}
	for _, action := range []stageAction{
		{"start-stage", "/stages/{id}/start", e.StartStage},
		{"complete-stage", "/stages/{id}/complete", e.CompleteStage},
		{"reopen-stage", "/stages/{id}/reopen", e.ReopenStage},
		{"skip-stage", "/stages/{id}/not-applicable", e.SetStageNotApplicable},
	} {
		fn := action.fn
		huma.Register(api, huma.Operation{
			OperationID: action.name,
			Method:      http.MethodPost,
			Path:        action.path,
			Summary:     "Stage status action",
			Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
		}, func(ctx context.Context, input *struct {
			ID string `path:"id"`
		}) (*struct {
			Body domain.Stage `json:"body"`
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			s, err := fn(ctx, input.ID, actorID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body domain.Stage `json:"body"`
			}{Body: s}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "assign-stage",
		Method:      http.MethodPatch,
		Path:        "/stages/{id}/assignee",
		Summary:     "Assign stage",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body AssignStageRequest `json:"body"`
	}) (*struct {
		Body domain.Stage `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.AssignStage(ctx, input.ID, input.Body.AssigneeID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Stage `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-stage-due",
		Method:      http.MethodPatch,
		Path:        "/stages/{id}/due",
		Summary:     "Set stage due date",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body StageDueRequest `json:"body"`
	}) (*struct {
		Body domain.Stage `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.SetStageDue(ctx, input.ID, input.Body.DueDate, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Stage `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "log-stage-time",
		Method:        http.MethodPost,
		Path:          "/stages/{id}/time-entries",
		Summary:       "Log time on stage",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body LogTimeRequest `json:"body"`
	}) (*struct {
		Body domain.TimeEntry `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.LogTime(ctx, workflow.TimeLogOptions{
			StageID:   input.ID,
			MemberID:  input.Body.MemberID,
			Minutes:   input.Body.Minutes,
			EntryDate: input.Body.EntryDate,
			Note:      input.Body.Note,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TimeEntry `json:"body"`
		}{Body: entry}, nil
	})

	type timeSummary struct {
		Entries      []domain.TimeEntry `json:"entries"`
		TotalMinutes int                `json:"total_minutes"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-stage-time-entries",
		Method:      http.MethodGet,
		Path:        "/stages/{id}/time-entries",
		Summary:     "List time entries",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body timeSummary `json:"body"`
	}, error) {
		entries, err := e.Repo.ListTimeEntries(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		total, err := e.Repo.SumStageMinutes(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body timeSummary `json:"body"`
		}{Body: timeSummary{Entries: entries, TotalMinutes: total}}, nil
	})
}
