package testserver

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	validStatuses     = map[string]bool{"todo": true, "in_progress": true, "review": true, "done": true}
	validComplexities = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}
)

// currentUser resolves the bearer token. Callers hold s.mu.
func (s *Server) currentUser(r *http.Request) *user {
	h := r.Header.Get("Authorization")
	tok, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || tok == "" {
		return nil
	}
	id, ok := s.tokens[tok]
	if !ok {
		return nil
	}
	return s.users[id]
}

// Auth

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid form")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.userByName(r.PostFormValue("username"))
	if u == nil || u.Password != r.PostFormValue("password") {
		writeError(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	tok := uuid.NewString()
	s.tokens[tok] = u.ID
	writeJSON(w, http.StatusOK, map[string]string{"access_token": tok, "token_type": "bearer"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "username and password required")
		return
	}
	if s.userByName(req.Username) != nil {
		writeError(w, http.StatusBadRequest, "Username already registered")
		return
	}
	u := &user{ID: s.nextID(), Username: req.Username, Password: req.Password, CreatedAt: s.tick()}
	s.users[u.ID] = u
	writeJSON(w, http.StatusCreated, map[string]any{
		"id": u.ID, "username": u.Username, "created_at": u.CreatedAt.Format(timeLayout),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.currentUser(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id": u.ID, "username": u.Username, "created_at": u.CreatedAt.Format(timeLayout),
	})
}

// Projects

// accessProject resolves {id} for the current user. ownerOnly restricts it
// to the project owner. Callers hold s.mu.
func (s *Server) accessProject(w http.ResponseWriter, r *http.Request, ownerOnly bool) (*user, *project, bool) {
	u := s.currentUser(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return nil, nil, false
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid id")
		return nil, nil, false
	}
	p := s.projects[id]
	if p == nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return nil, nil, false
	}
	if !s.canAccess(p, u.ID) || (ownerOnly && p.OwnerID != u.ID) {
		writeError(w, http.StatusForbidden, "Not enough permissions")
		return nil, nil, false
	}
	return u, p, true
}

func (s *Server) handleGetProjects(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.currentUser(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	var visible []*project
	for _, p := range s.projects {
		if s.canAccess(p, u.ID) {
			visible = append(visible, p)
		}
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i].ID < visible[j].ID })

	out := []map[string]any{}
	for _, p := range visible {
		out = append(out, s.projectJSON(p))
	}
	writeJSON(w, http.StatusOK, out)
}

type projectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.currentUser(r)
	if u == nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusUnprocessableEntity, "name required")
		return
	}
	now := s.tick()
	p := &project{ID: s.nextID(), Name: req.Name, Description: req.Description, OwnerID: u.ID, CreatedAt: now, UpdatedAt: now}
	s.projects[p.ID] = p
	writeJSON(w, http.StatusCreated, s.projectDetailJSON(p))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, p, ok := s.accessProject(w, r, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.projectDetailJSON(p))
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, p, ok := s.accessProject(w, r, true)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusUnprocessableEntity, "name required")
		return
	}
	p.Name = req.Name
	p.Description = req.Description
	p.UpdatedAt = s.tick()
	writeJSON(w, http.StatusOK, s.projectDetailJSON(p))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, p, ok := s.accessProject(w, r, true)
	if !ok {
		return
	}
	delete(s.projects, p.ID)
	delete(s.members, p.ID)
	for id, t := range s.tasks {
		if t.ProjectID == p.ID {
			delete(s.tasks, id)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Members

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, p, ok := s.accessProject(w, r, true)
	if !ok {
		return
	}
	if s.users[req.UserID] == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if req.UserID == p.OwnerID || s.isMember(p.ID, req.UserID) {
		writeError(w, http.StatusBadRequest, "User is already a member")
		return
	}
	m := &member{ID: s.nextID(), UserID: req.UserID, JoinedAt: s.tick()}
	s.members[p.ID] = append(s.members[p.ID], m)
	writeJSON(w, http.StatusCreated, s.memberJSON(m))
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, p, ok := s.accessProject(w, r, true)
	if !ok {
		return
	}
	userID, ok := pathID(r, "userID")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid user id")
		return
	}
	members := s.members[p.ID]
	idx := -1
	for i, m := range members {
		if m.UserID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		writeError(w, http.StatusNotFound, "Member not found")
		return
	}
	s.members[p.ID] = append(members[:idx:idx], members[idx+1:]...)

	// Tasks assigned to the removed member lose their assignee.
	for _, t := range s.tasks {
		if t.ProjectID == p.ID && t.AssigneeID != nil && *t.AssigneeID == userID {
			t.AssigneeID = nil
			t.UpdatedAt = s.tick()
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Tasks

func (s *Server) handleGetTasks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, p, ok := s.accessProject(w, r, false)
	if !ok {
		return
	}
	var list []*task
	for _, t := range s.tasks {
		if t.ProjectID == p.ID {
			list = append(list, t)
		}
	}
	// Newest first.
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })

	out := []map[string]any{}
	for _, t := range list {
		out = append(out, s.taskJSON(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// validAssignee reports whether id may be assigned tasks in p. Callers hold s.mu.
func (s *Server) validAssignee(p *project, id *int64) bool {
	return id == nil || *id == p.OwnerID || s.isMember(p.ID, *id)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string  `json:"title"`
		Description *string `json:"description"`
		Status      string  `json:"status"`
		Complexity  string  `json:"complexity"`
		AssigneeID  *int64  `json:"assignee_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, p, ok := s.accessProject(w, r, false)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusUnprocessableEntity, "title required")
		return
	}
	if req.Status == "" {
		req.Status = "todo"
	}
	if req.Complexity == "" {
		req.Complexity = "medium"
	}
	if !validStatuses[req.Status] || !validComplexities[req.Complexity] {
		writeError(w, http.StatusUnprocessableEntity, "invalid status or complexity")
		return
	}
	if !s.validAssignee(p, req.AssigneeID) {
		writeError(w, http.StatusBadRequest, "Assignee must be a project member")
		return
	}
	now := s.tick()
	t := &task{
		ID: s.nextID(), ProjectID: p.ID, Title: req.Title, Description: req.Description,
		Status: req.Status, Complexity: req.Complexity, CreatorID: u.ID, AssigneeID: req.AssigneeID,
		CreatedAt: now, UpdatedAt: now,
	}
	s.tasks[t.ID] = t
	writeJSON(w, http.StatusCreated, s.taskJSON(t))
}

// handleUpdateTask applies only the fields present in the body; an explicit
// "assignee_id": null unassigns, an omitted one leaves the assignee as is.
func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, p, ok := s.accessProject(w, r, false)
	if !ok {
		return
	}
	taskID, ok := pathID(r, "taskID")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid task id")
		return
	}
	t := s.tasks[taskID]
	if t == nil || t.ProjectID != p.ID {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}

	updated := *t
	if raw, ok := fields["title"]; ok {
		if err := json.Unmarshal(raw, &updated.Title); err != nil || strings.TrimSpace(updated.Title) == "" {
			writeError(w, http.StatusUnprocessableEntity, "title required")
			return
		}
	}
	if raw, ok := fields["description"]; ok {
		updated.Description = nil
		json.Unmarshal(raw, &updated.Description)
	}
	if raw, ok := fields["status"]; ok {
		json.Unmarshal(raw, &updated.Status)
	}
	if raw, ok := fields["complexity"]; ok {
		json.Unmarshal(raw, &updated.Complexity)
	}
	if raw, ok := fields["assignee_id"]; ok {
		updated.AssigneeID = nil
		if err := json.Unmarshal(raw, &updated.AssigneeID); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid assignee_id")
			return
		}
	}
	if !validStatuses[updated.Status] || !validComplexities[updated.Complexity] {
		writeError(w, http.StatusUnprocessableEntity, "invalid status or complexity")
		return
	}
	if !s.validAssignee(p, updated.AssigneeID) {
		writeError(w, http.StatusBadRequest, "Assignee must be a project member")
		return
	}
	updated.UpdatedAt = s.tick()
	*t = updated
	writeJSON(w, http.StatusOK, s.taskJSON(t))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, p, ok := s.accessProject(w, r, false)
	if !ok {
		return
	}
	taskID, ok := pathID(r, "taskID")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid task id")
		return
	}
	t := s.tasks[taskID]
	if t == nil || t.ProjectID != p.ID {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	delete(s.tasks, taskID)
	w.WriteHeader(http.StatusNoContent)
}

// Users

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentUser(r) == nil {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	if utf8.RuneCountInString(q) < 2 {
		writeError(w, http.StatusUnprocessableEntity, "query too short")
		return
	}
	var found []*user
	for _, u := range s.users {
		if strings.Contains(strings.ToLower(u.Username), q) {
			found = append(found, u)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Username < found[j].Username })

	out := []map[string]any{}
	for _, u := range found {
		out = append(out, map[string]any{"id": u.ID, "username": u.Username})
	}
	writeJSON(w, http.StatusOK, out)
}
