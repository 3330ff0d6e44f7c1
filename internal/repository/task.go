package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/kidandcat/taskflow/internal/api"
	"github.com/kidandcat/taskflow/internal/model"
)

type TaskGateway interface {
	Tasks(ctx context.Context, projectID int64) ([]api.Task, error)
	CreateTask(ctx context.Context, projectID int64, req api.TaskRequest) (*api.Task, error)
	UpdateTask(ctx context.Context, projectID, taskID int64, req api.TaskRequest) (*api.Task, error)
	DeleteTask(ctx context.Context, projectID, taskID int64) error
}

// TaskInput is the full editable state of a task. It is sent whole; a nil
// AssigneeID unassigns.
type TaskInput struct {
	Title       string
	Description string
	Status      model.TaskStatus
	Complexity  model.Complexity
	AssigneeID  *int64
}

// InputFrom returns the editable state of t, for callers changing one field.
func InputFrom(t model.Task) TaskInput {
	return TaskInput{
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Complexity:  t.Complexity,
		AssigneeID:  t.AssigneeID(),
	}
}

func (in TaskInput) request() (api.TaskRequest, string) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return api.TaskRequest{}, "Task title is required"
	}
	if !in.Status.Valid() {
		return api.TaskRequest{}, fmt.Sprintf("Unknown task status %q", in.Status)
	}
	if !in.Complexity.Valid() {
		return api.TaskRequest{}, fmt.Sprintf("Unknown task complexity %q", in.Complexity)
	}
	return api.TaskRequest{
		Title:       title,
		Description: optional(strings.TrimSpace(in.Description)),
		Status:      string(in.Status),
		Complexity:  string(in.Complexity),
		AssigneeID:  in.AssigneeID,
	}, ""
}

type TaskRepository struct {
	gw TaskGateway
	options
}

func NewTaskRepository(gw TaskGateway, opts ...Option) *TaskRepository {
	return &TaskRepository{gw: gw, options: buildOptions(opts)}
}

func (r *TaskRepository) List(ctx context.Context, projectID int64) Result[[]model.Task] {
	tasks, err := r.gw.Tasks(ctx, projectID)
	if err != nil {
		return failed[[]model.Task](r.logger, "load tasks", err)
	}
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTask(t))
	}
	return ok(out)
}

func (r *TaskRepository) Create(ctx context.Context, projectID int64, in TaskInput) Result[model.Task] {
	req, problem := in.request()
	if problem != "" {
		return invalid[model.Task](problem)
	}
	t, err := r.gw.CreateTask(ctx, projectID, req)
	if err != nil {
		return failed[model.Task](r.logger, "create task", err)
	}
	return ok(toTask(*t))
}

func (r *TaskRepository) Update(ctx context.Context, projectID, taskID int64, in TaskInput) Result[model.Task] {
	req, problem := in.request()
	if problem != "" {
		return invalid[model.Task](problem)
	}
	t, err := r.gw.UpdateTask(ctx, projectID, taskID, req)
	if err != nil {
		return failed[model.Task](r.logger, "update task", err)
	}
	return ok(toTask(*t))
}

func (r *TaskRepository) Delete(ctx context.Context, projectID, taskID int64) Result[struct{}] {
	if err := r.gw.DeleteTask(ctx, projectID, taskID); err != nil {
		return failed[struct{}](r.logger, "delete task", err)
	}
	return ok(struct{}{})
}
