package controller

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/kidandcat/taskflow/internal/model"
)

type Screen string

const (
	ScreenLogin         Screen = "login"
	ScreenRegister      Screen = "register"
	ScreenProjects      Screen = "projects"
	ScreenProjectDetail Screen = "project_detail"
)

// ViewState is one immutable snapshot of everything the presentation layer
// renders. The controller replaces it wholesale; slices in a published
// snapshot are never modified afterwards.
type ViewState struct {
	Screen        Screen
	User          *model.UserBrief
	ProjectID     int64 // 0 when no project is selected
	Projects      []model.Project
	Project       *model.ProjectDetail
	Tasks         []model.Task
	SearchResults []model.UserBrief
	Loading       bool
	Error         string
}

// Task looks up a loaded task by id.
func (s ViewState) Task(id int64) (model.Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// IsOwner reports whether the current user owns the open project.
func (s ViewState) IsOwner() bool {
	return s.Project != nil && s.IsProjectOwner(s.Project.Project)
}

func (s ViewState) IsProjectOwner(p model.Project) bool {
	return s.User != nil && p.OwnerID == s.User.ID
}

// AssigneeOptions lists who tasks in the open project can be assigned to:
// the owner, then the members.
func (s ViewState) AssigneeOptions() []model.UserBrief {
	if s.Project == nil {
		return nil
	}
	out := []model.UserBrief{s.Project.Owner}
	for _, m := range s.Project.Members {
		out = append(out, m.User)
	}
	return out
}

// MemberCandidates is the search result set minus users already in the
// open project.
func (s ViewState) MemberCandidates() []model.UserBrief {
	var out []model.UserBrief
	for _, u := range s.SearchResults {
		if s.Project != nil && (u.ID == s.Project.OwnerID || s.Project.HasMember(u.ID)) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (s ViewState) TasksWithStatus(status model.TaskStatus) []model.Task {
	var out []model.Task
	for _, t := range s.Tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// Column is one status lane of the task board.
type Column struct {
	Status model.TaskStatus
	Tasks  []model.Task
}

// Board groups the loaded tasks by status in board order, keeping list
// order within a column. Statuses the client does not know get trailing
// columns in order of first appearance.
func (s ViewState) Board() []Column {
	cols := make([]Column, 0, len(model.Statuses()))
	for _, st := range model.Statuses() {
		cols = append(cols, Column{Status: st, Tasks: s.TasksWithStatus(st)})
	}
	for _, t := range s.Tasks {
		if t.Status.Valid() || slices.ContainsFunc(cols, func(c Column) bool { return c.Status == t.Status }) {
			continue
		}
		cols = append(cols, Column{Status: t.Status, Tasks: s.TasksWithStatus(t.Status)})
	}
	return cols
}

type ProjectOrder int

const (
	OrderServer ProjectOrder = iota
	OrderNameAsc
	OrderNameDesc
	OrderCreatedAsc
	OrderCreatedDesc
	OrderUpdatedAsc
	OrderUpdatedDesc
)

// ParseProjectOrder maps a sort field ("name", "created", "updated", or
// empty for server order) to a ProjectOrder.
func ParseProjectOrder(field string, desc bool) (ProjectOrder, error) {
	var asc, dsc ProjectOrder
	switch strings.ToLower(field) {
	case "", "server":
		return OrderServer, nil
	case "name":
		asc, dsc = OrderNameAsc, OrderNameDesc
	case "created":
		asc, dsc = OrderCreatedAsc, OrderCreatedDesc
	case "updated":
		asc, dsc = OrderUpdatedAsc, OrderUpdatedDesc
	default:
		return OrderServer, fmt.Errorf("unknown sort field %q", field)
	}
	if desc {
		return dsc, nil
	}
	return asc, nil
}

// SortedProjects returns a sorted copy of the project list. Ties keep server
// order.
func (s ViewState) SortedProjects(order ProjectOrder) []model.Project {
	out := slices.Clone(s.Projects)
	var less func(a, b model.Project) int
	switch order {
	case OrderNameAsc, OrderNameDesc:
		less = func(a, b model.Project) int {
			return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
	case OrderCreatedAsc, OrderCreatedDesc:
		less = func(a, b model.Project) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case OrderUpdatedAsc, OrderUpdatedDesc:
		less = func(a, b model.Project) int { return a.UpdatedAt.Compare(b.UpdatedAt) }
	default:
		return out
	}
	switch order {
	case OrderNameDesc, OrderCreatedDesc, OrderUpdatedDesc:
		slices.SortStableFunc(out, func(a, b model.Project) int { return less(b, a) })
	default:
		slices.SortStableFunc(out, less)
	}
	return out
}
