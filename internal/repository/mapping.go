package repository

import (
	"github.com/kidandcat/taskflow/internal/api"
	"github.com/kidandcat/taskflow/internal/model"
)

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// optional sends an empty description as null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toUserBrief(u api.UserBrief) model.UserBrief {
	return model.UserBrief{ID: u.ID, Username: u.Username}
}

func toProject(p api.Project) model.Project {
	return model.Project{
		ID:          p.ID,
		Name:        p.Name,
		Description: deref(p.Description),
		OwnerID:     p.OwnerID,
		Owner:       toUserBrief(p.Owner),
		CreatedAt:   model.ParseTime(p.CreatedAt),
		UpdatedAt:   model.ParseTime(p.UpdatedAt),
	}
}

// toProjectDetail drops any member row for the owner; the owner is only
// ever represented by Project.Owner.
func toProjectDetail(p api.ProjectDetail) model.ProjectDetail {
	d := model.ProjectDetail{Project: toProject(p.Project), Members: []model.Member{}}
	for _, m := range p.Members {
		if m.User.ID == p.OwnerID {
			continue
		}
		d.Members = append(d.Members, model.Member{
			ID:       m.ID,
			User:     toUserBrief(m.User),
			JoinedAt: model.ParseTime(m.JoinedAt),
		})
	}
	return d
}

func toTask(t api.Task) model.Task {
	task := model.Task{
		ID:          t.ID,
		Title:       t.Title,
		Description: deref(t.Description),
		Status:      model.TaskStatus(t.Status),
		Complexity:  model.Complexity(t.Complexity),
		ProjectID:   t.ProjectID,
		Creator:     toUserBrief(t.Creator),
		CreatedAt:   model.ParseTime(t.CreatedAt),
		UpdatedAt:   model.ParseTime(t.UpdatedAt),
	}
	switch {
	case t.Assignee != nil:
		a := toUserBrief(*t.Assignee)
		task.Assignee = &a
	case t.AssigneeID != nil:
		task.Assignee = &model.UserBrief{ID: *t.AssigneeID}
	}
	return task
}
