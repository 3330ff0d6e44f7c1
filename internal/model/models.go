// Package model holds the client-side domain entities.
package model

import "time"

type UserBrief struct {
	ID       int64
	Username string
}

// Session is the authenticated identity held by the client. Token and
// UserID are either both set or both empty.
type Session struct {
	Token     string
	UserID    int64
	Username  string
	CreatedAt time.Time
}

func (s Session) Valid() bool {
	return s.Token != "" && s.UserID != 0
}

func (s Session) User() UserBrief {
	return UserBrief{ID: s.UserID, Username: s.Username}
}

type Project struct {
	ID          int64
	Name        string
	Description string
	OwnerID     int64
	Owner       UserBrief
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProjectDetail is a project with its members. The owner is never part of
// Members.
type ProjectDetail struct {
	Project
	Members []Member
}

func (p *ProjectDetail) HasMember(userID int64) bool {
	for _, m := range p.Members {
		if m.User.ID == userID {
			return true
		}
	}
	return false
}

type Member struct {
	ID       int64
	User     UserBrief
	JoinedAt time.Time
}

type Task struct {
	ID          int64
	Title       string
	Description string
	Status      TaskStatus
	Complexity  Complexity
	ProjectID   int64
	Creator     UserBrief
	Assignee    *UserBrief // nil when unassigned
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (t Task) AssigneeID() *int64 {
	if t.Assignee == nil {
		return nil
	}
	id := t.Assignee.ID
	return &id
}
