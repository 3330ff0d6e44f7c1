// Package testserver is an in-memory implementation of the task service
// HTTP API for tests. It records calls per route, can hold a route until
// released, and can fail the next call to a route with a given status.
package testserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const timeLayout = "2006-01-02T15:04:05.000000"

type user struct {
	ID        int64
	Username  string
	Password  string
	CreatedAt time.Time
}

type project struct {
	ID          int64
	Name        string
	Description *string
	OwnerID     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type member struct {
	ID       int64
	UserID   int64
	JoinedAt time.Time
}

type task struct {
	ID          int64
	ProjectID   int64
	Title       string
	Description *string
	Status      string
	Complexity  string
	CreatorID   int64
	AssigneeID  *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	users    map[int64]*user
	tokens   map[string]int64
	projects map[int64]*project
	members  map[int64][]*member
	tasks    map[int64]*task
	lastID   int64
	clock    time.Time
	calls    map[string]int
	gates    map[string]*Gate
	failures map[string]int
}

// New starts a server that is closed when the test finishes.
func New(t testing.TB) *Server {
	s := &Server{
		users:    make(map[int64]*user),
		tokens:   make(map[string]int64),
		projects: make(map[int64]*project),
		members:  make(map[int64][]*member),
		tasks:    make(map[int64]*task),
		clock:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		calls:    make(map[string]int),
		gates:    make(map[string]*Gate),
		failures: make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	s.route(r, http.MethodPost, "/api/auth/login", s.handleLogin)
	s.route(r, http.MethodPost, "/api/auth/register", s.handleRegister)
	s.route(r, http.MethodGet, "/api/auth/me", s.handleMe)

	s.route(r, http.MethodGet, "/api/projects/", s.handleGetProjects)
	s.route(r, http.MethodPost, "/api/projects/", s.handleCreateProject)
	s.route(r, http.MethodGet, "/api/projects/{id}", s.handleGetProject)
	s.route(r, http.MethodPut, "/api/projects/{id}", s.handleUpdateProject)
	s.route(r, http.MethodDelete, "/api/projects/{id}", s.handleDeleteProject)

	s.route(r, http.MethodPost, "/api/projects/{id}/members", s.handleAddMember)
	s.route(r, http.MethodDelete, "/api/projects/{id}/members/{userID}", s.handleRemoveMember)

	s.route(r, http.MethodGet, "/api/projects/{id}/tasks/", s.handleGetTasks)
	s.route(r, http.MethodPost, "/api/projects/{id}/tasks/", s.handleCreateTask)
	s.route(r, http.MethodPut, "/api/projects/{id}/tasks/{taskID}", s.handleUpdateTask)
	s.route(r, http.MethodDelete, "/api/projects/{id}/tasks/{taskID}", s.handleDeleteTask)

	s.route(r, http.MethodGet, "/api/users/search", s.handleSearchUsers)
	return r
}

// route registers h under "METHOD pattern", the key used by Calls, Hold
// and FailNext.
func (s *Server) route(r chi.Router, method, pattern string, h http.HandlerFunc) {
	key := method + " " + pattern
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.mu.Lock()
		s.calls[key]++
		gate := s.gates[key]
		status, fail := s.failures[key]
		delete(s.failures, key)
		s.mu.Unlock()

		if gate != nil {
			select {
			case gate.entered <- struct{}{}:
			default:
			}
			select {
			case <-gate.release:
			case <-req.Context().Done():
				return
			}
		}
		if fail {
			writeError(w, status, "injected failure")
			return
		}
		h(w, req)
	}))
}

// Calls returns how many requests reached route, e.g. "GET /api/projects/{id}".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// FailNext makes the next request to route fail with status.
func (s *Server) FailNext(route string, status int) {
	s.mu.Lock()
	s.failures[route] = status
	s.mu.Unlock()
}

// Gate holds requests to a route until released.
type Gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// Entered receives once per request that reached the gate.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

// Release lets held and future requests through.
func (g *Gate) Release() { g.once.Do(func() { close(g.release) }) }

// Hold installs a gate on route. It is released when the test finishes.
func (s *Server) Hold(t testing.TB, route string) *Gate {
	g := &Gate{entered: make(chan struct{}, 16), release: make(chan struct{})}
	s.mu.Lock()
	s.gates[route] = g
	s.mu.Unlock()
	t.Cleanup(g.Release)
	return g
}

// Seeding helpers

// AddUser registers a user directly and returns its id.
func (s *Server) AddUser(username, password string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &user{ID: s.nextID(), Username: username, Password: password, CreatedAt: s.tick()}
	s.users[u.ID] = u
	return u.ID
}

// Login issues a token for an existing user without going through HTTP.
func (s *Server) Login(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userByName(username)
	if u == nil {
		return ""
	}
	tok := uuid.NewString()
	s.tokens[tok] = u.ID
	return tok
}

// AddProject creates a project owned by ownerID and returns its id.
func (s *Server) AddProject(ownerID int64, name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	p := &project{ID: s.nextID(), Name: name, OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
	s.projects[p.ID] = p
	return p.ID
}

// AddMember adds userID to the project directly.
func (s *Server) AddMember(projectID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[projectID] = append(s.members[projectID], &member{ID: s.nextID(), UserID: userID, JoinedAt: s.tick()})
}

// AddTask creates a todo/medium task and returns its id.
func (s *Server) AddTask(projectID, creatorID int64, title string, assigneeID *int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.tick()
	t := &task{
		ID: s.nextID(), ProjectID: projectID, Title: title, Status: "todo", Complexity: "medium",
		CreatorID: creatorID, AssigneeID: assigneeID, CreatedAt: now, UpdatedAt: now,
	}
	s.tasks[t.ID] = t
	return t.ID
}

// TaskAssignee reports the stored assignee of a task.
func (s *Server) TaskAssignee(taskID int64) (*int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}
	return t.AssigneeID, true
}

// internals, called with s.mu held

func (s *Server) nextID() int64 {
	s.lastID++
	return s.lastID
}

func (s *Server) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *Server) userByName(name string) *user {
	for _, u := range s.users {
		if strings.EqualFold(u.Username, name) {
			return u
		}
	}
	return nil
}

func (s *Server) isMember(projectID, userID int64) bool {
	for _, m := range s.members[projectID] {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

func (s *Server) canAccess(p *project, userID int64) bool {
	return p.OwnerID == userID || s.isMember(p.ID, userID)
}

func (s *Server) brief(id int64) map[string]any {
	u := s.users[id]
	if u == nil {
		return map[string]any{"id": id, "username": ""}
	}
	return map[string]any{"id": u.ID, "username": u.Username}
}

func (s *Server) projectJSON(p *project) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"owner_id":    p.OwnerID,
		"owner":       s.brief(p.OwnerID),
		"created_at":  p.CreatedAt.Format(timeLayout),
		"updated_at":  p.UpdatedAt.Format(timeLayout),
	}
}

func (s *Server) memberJSON(m *member) map[string]any {
	return map[string]any{
		"id":        m.ID,
		"user":      s.brief(m.UserID),
		"joined_at": m.JoinedAt.Format(timeLayout),
	}
}

func (s *Server) projectDetailJSON(p *project) map[string]any {
	out := s.projectJSON(p)
	members := []map[string]any{}
	for _, m := range s.members[p.ID] {
		members = append(members, s.memberJSON(m))
	}
	out["members"] = members
	return out
}

func (s *Server) taskJSON(t *task) map[string]any {
	var assignee any
	if t.AssigneeID != nil {
		assignee = s.brief(*t.AssigneeID)
	}
	return map[string]any{
		"id":          t.ID,
		"title":       t.Title,
		"description": t.Description,
		"status":      t.Status,
		"complexity":  t.Complexity,
		"project_id":  t.ProjectID,
		"creator_id":  t.CreatorID,
		"creator":     s.brief(t.CreatorID),
		"assignee_id": t.AssigneeID,
		"assignee":    assignee,
		"created_at":  t.CreatedAt.Format(timeLayout),
		"updated_at":  t.UpdatedAt.Format(timeLayout),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil
}
