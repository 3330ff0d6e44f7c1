package repository

import (
	"context"
	"strings"

	"github.com/kidandcat/taskflow/internal/api"
	"github.com/kidandcat/taskflow/internal/model"
)

// ProjectGateway is the subset of the remote API used for projects,
// membership and user search.
type ProjectGateway interface {
	Projects(ctx context.Context) ([]api.Project, error)
	Project(ctx context.Context, id int64) (*api.ProjectDetail, error)
	CreateProject(ctx context.Context, req api.ProjectRequest) (*api.ProjectDetail, error)
	UpdateProject(ctx context.Context, id int64, req api.ProjectRequest) (*api.ProjectDetail, error)
	DeleteProject(ctx context.Context, id int64) error
	AddMember(ctx context.Context, projectID, userID int64) (*api.Member, error)
	RemoveMember(ctx context.Context, projectID, userID int64) error
	SearchUsers(ctx context.Context, query string) ([]api.UserBrief, error)
}

type ProjectRepository struct {
	gw ProjectGateway
	options
}

func NewProjectRepository(gw ProjectGateway, opts ...Option) *ProjectRepository {
	return &ProjectRepository{gw: gw, options: buildOptions(opts)}
}

func (r *ProjectRepository) List(ctx context.Context) Result[[]model.Project] {
	projects, err := r.gw.Projects(ctx)
	if err != nil {
		return failed[[]model.Project](r.logger, "load projects", err)
	}
	out := make([]model.Project, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProject(p))
	}
	return ok(out)
}

func (r *ProjectRepository) Get(ctx context.Context, id int64) Result[model.ProjectDetail] {
	p, err := r.gw.Project(ctx, id)
	if err != nil {
		return failed[model.ProjectDetail](r.logger, "load project", err)
	}
	return ok(toProjectDetail(*p))
}

func projectRequest(name, description string) (api.ProjectRequest, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return api.ProjectRequest{}, false
	}
	return api.ProjectRequest{Name: name, Description: optional(strings.TrimSpace(description))}, true
}

func (r *ProjectRepository) Create(ctx context.Context, name, description string) Result[model.ProjectDetail] {
	req, valid := projectRequest(name, description)
	if !valid {
		return invalid[model.ProjectDetail]("Project name is required")
	}
	p, err := r.gw.CreateProject(ctx, req)
	if err != nil {
		return failed[model.ProjectDetail](r.logger, "create project", err)
	}
	return ok(toProjectDetail(*p))
}

func (r *ProjectRepository) Update(ctx context.Context, id int64, name, description string) Result[model.ProjectDetail] {
	req, valid := projectRequest(name, description)
	if !valid {
		return invalid[model.ProjectDetail]("Project name is required")
	}
	p, err := r.gw.UpdateProject(ctx, id, req)
	if err != nil {
		return failed[model.ProjectDetail](r.logger, "update project", err)
	}
	return ok(toProjectDetail(*p))
}

func (r *ProjectRepository) Delete(ctx context.Context, id int64) Result[struct{}] {
	if err := r.gw.DeleteProject(ctx, id); err != nil {
		return failed[struct{}](r.logger, "delete project", err)
	}
	return ok(struct{}{})
}

func (r *ProjectRepository) AddMember(ctx context.Context, projectID, userID int64) Result[model.Member] {
	m, err := r.gw.AddMember(ctx, projectID, userID)
	if err != nil {
		return failed[model.Member](r.logger, "add member", err)
	}
	return ok(model.Member{ID: m.ID, User: toUserBrief(m.User), JoinedAt: model.ParseTime(m.JoinedAt)})
}

func (r *ProjectRepository) RemoveMember(ctx context.Context, projectID, userID int64) Result[struct{}] {
	if err := r.gw.RemoveMember(ctx, projectID, userID); err != nil {
		return failed[struct{}](r.logger, "remove member", err)
	}
	return ok(struct{}{})
}

func (r *ProjectRepository) SearchUsers(ctx context.Context, query string) Result[[]model.UserBrief] {
	users, err := r.gw.SearchUsers(ctx, query)
	if err != nil {
		return failed[[]model.UserBrief](r.logger, "search users", err)
	}
	out := make([]model.UserBrief, 0, len(users))
	for _, u := range users {
		out = append(out, toUserBrief(u))
	}
	return ok(out)
}
