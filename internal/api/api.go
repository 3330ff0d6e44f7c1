package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Projects

func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.get(ctx, "/api/projects/", &projects); err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []Project{}
	}
	return projects, nil
}

func (c *Client) Project(ctx context.Context, id int64) (*ProjectDetail, error) {
	var p ProjectDetail
	if err := c.get(ctx, fmt.Sprintf("/api/projects/%d", id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) CreateProject(ctx context.Context, req ProjectRequest) (*ProjectDetail, error) {
	var p ProjectDetail
	if err := c.sendJSON(ctx, http.MethodPost, "/api/projects/", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdateProject(ctx context.Context, id int64, req ProjectRequest) (*ProjectDetail, error) {
	var p ProjectDetail
	if err := c.sendJSON(ctx, http.MethodPut, fmt.Sprintf("/api/projects/%d", id), req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) DeleteProject(ctx context.Context, id int64) error {
	return c.delete(ctx, fmt.Sprintf("/api/projects/%d", id))
}

// Members

func (c *Client) AddMember(ctx context.Context, projectID, userID int64) (*Member, error) {
	var m Member
	path := fmt.Sprintf("/api/projects/%d/members", projectID)
	if err := c.sendJSON(ctx, http.MethodPost, path, AddMemberRequest{UserID: userID}, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) RemoveMember(ctx context.Context, projectID, userID int64) error {
	return c.delete(ctx, fmt.Sprintf("/api/projects/%d/members/%d", projectID, userID))
}

// Tasks

func (c *Client) Tasks(ctx context.Context, projectID int64) ([]Task, error) {
	var tasks []Task
	if err := c.get(ctx, fmt.Sprintf("/api/projects/%d/tasks/", projectID), &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []Task{}
	}
	return tasks, nil
}

func (c *Client) CreateTask(ctx context.Context, projectID int64, req TaskRequest) (*Task, error) {
	var t Task
	path := fmt.Sprintf("/api/projects/%d/tasks/", projectID)
	if err := c.sendJSON(ctx, http.MethodPost, path, req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) UpdateTask(ctx context.Context, projectID, taskID int64, req TaskRequest) (*Task, error) {
	var t Task
	path := fmt.Sprintf("/api/projects/%d/tasks/%d", projectID, taskID)
	if err := c.sendJSON(ctx, http.MethodPut, path, req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) DeleteTask(ctx context.Context, projectID, taskID int64) error {
	return c.delete(ctx, fmt.Sprintf("/api/projects/%d/tasks/%d", projectID, taskID))
}

// Users

func (c *Client) SearchUsers(ctx context.Context, query string) ([]UserBrief, error) {
	var users []UserBrief
	if err := c.get(ctx, "/api/users/search?q="+url.QueryEscape(query), &users); err != nil {
		return nil, err
	}
	if users == nil {
		users = []UserBrief{}
	}
	return users, nil
}
