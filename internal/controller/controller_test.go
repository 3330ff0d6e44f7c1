package controller

import (
	"context"
	"io"
	"log"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidandcat/taskflow/internal/api"
	"github.com/kidandcat/taskflow/internal/auth"
	"github.com/kidandcat/taskflow/internal/db"
	"github.com/kidandcat/taskflow/internal/model"
	"github.com/kidandcat/taskflow/internal/repository"
	"github.com/kidandcat/taskflow/internal/testserver"
)

const (
	routeProjects = "GET /api/projects/"
	routeProject  = "GET /api/projects/{id}"
	routeTasks    = "GET /api/projects/{id}/tasks/"
	routeSearch   = "GET /api/users/search"
)

type harness struct {
	srv      *testserver.Server
	sessions *auth.Store
	ctl      *Controller
}

// newHarness wires the full stack against an in-memory server. When login
// is set that user is signed in before the controller is built.
func newHarness(t *testing.T, srv *testserver.Server, login string) *harness {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)

	storage, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	creds := api.NewCredentials()
	client := api.NewClient(srv.URL, creds, api.WithLogger(quiet))
	sessions := auth.NewStore(storage, client, creds, auth.WithLogger(quiet))
	if login != "" {
		_, err := sessions.Login(context.Background(), login, "secret1")
		require.NoError(t, err)
	}

	ctl := New(sessions,
		repository.NewProjectRepository(client, repository.WithLogger(quiet)),
		repository.NewTaskRepository(client, repository.WithLogger(quiet)),
		WithLogger(quiet))
	t.Cleanup(ctl.Close)
	ctl.Start()
	ctl.Wait()
	return &harness{srv: srv, sessions: sessions, ctl: ctl}
}

// do runs an intent and waits for everything it triggered.
func (h *harness) do(intent func()) ViewState {
	intent()
	h.ctl.Wait()
	return h.ctl.State()
}

func waitEntered(t *testing.T, g *testserver.Gate) {
	t.Helper()
	select {
	case <-g.Entered():
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the server")
	}
}

func TestInitialScreen(t *testing.T) {
	srv := testserver.New(t)
	alice := srv.AddUser("alice", "secret1")
	srv.AddProject(alice, "Existing")

	h := newHarness(t, srv, "")
	assert.Equal(t, ScreenLogin, h.ctl.State().Screen)
	assert.Zero(t, srv.Calls(routeProjects))

	h = newHarness(t, srv, "alice")
	s := h.ctl.State()
	assert.Equal(t, ScreenProjects, s.Screen)
	require.NotNil(t, s.User)
	assert.Equal(t, "alice", s.User.Username)
	assert.Equal(t, []string{"Existing"}, projectNames(s.Projects))
	assert.False(t, s.Loading)
}

func TestLoginCreateProjectCreateTask(t *testing.T) {
	srv := testserver.New(t)
	alice := srv.AddUser("alice", "secret1")
	srv.AddProject(alice, "Older")
	srv.AddProject(alice, "Newer")
	h := newHarness(t, srv, "")

	s := h.do(func() { h.ctl.Login("alice", "secret1") })
	assert.Equal(t, ScreenProjects, s.Screen)
	assert.Empty(t, s.Error)
	assert.Equal(t, []string{"Older", "Newer"}, projectNames(s.Projects), "server order")
	assert.True(t, h.sessions.IsAuthenticated())

	s = h.do(func() { h.ctl.CreateProject("Sprint 1", "") })
	require.Equal(t, ScreenProjectDetail, s.Screen)
	require.NotNil(t, s.Project)
	assert.Equal(t, "Sprint 1", s.Project.Name)
	assert.Equal(t, s.Project.ID, s.ProjectID)
	assert.Empty(t, s.Tasks)
	assert.Empty(t, s.Project.Description)

	s = h.do(func() {
		h.ctl.CreateTask(repository.TaskInput{Title: "Fix bug", Status: model.StatusTodo, Complexity: model.ComplexityHigh})
	})
	require.Len(t, s.Tasks, 1)
	assert.Equal(t, "Fix bug", s.Tasks[0].Title)
	assert.Equal(t, model.StatusTodo, s.Tasks[0].Status)
	assert.Equal(t, model.ComplexityHigh, s.Tasks[0].Complexity)
	assert.Nil(t, s.Tasks[0].Assignee)
	assert.Equal(t, 1, srv.Calls(routeTasks), "create does not re-fetch")
	assert.False(t, s.Loading)
}

func TestLoginFailures(t *testing.T) {
	srv := testserver.New(t)
	srv.AddUser("alice", "secret1")
	h := newHarness(t, srv, "")

	s := h.do(func() { h.ctl.Login("alice", "wrong") })
	assert.Equal(t, ScreenLogin, s.Screen)
	assert.Equal(t, msgBadLogin, s.Error)
	assert.False(t, s.Loading)

	s = h.do(func() { h.ctl.GoToRegister() })
	assert.Equal(t, ScreenRegister, s.Screen)
	assert.Empty(t, s.Error)

	s = h.do(func() { h.ctl.Register("alice", "secret1") })
	assert.Equal(t, ScreenRegister, s.Screen)
	assert.Equal(t, msgRegistration, s.Error)

	s = h.do(func() { h.ctl.Register("al", "secret1") })
	assert.Equal(t, "Username must be at least 3 characters", s.Error)

	s = h.do(func() { h.ctl.Register("carol", "secret1") })
	assert.Equal(t, ScreenProjects, s.Screen)
	require.NotNil(t, s.User)
	assert.Equal(t, "carol", s.User.Username)
}

func TestLoginUnreachable(t *testing.T) {
	srv := testserver.New(t)
	h := newHarness(t, srv, "")
	srv.Close()

	s := h.do(func() { h.ctl.Login("alice", "secret1") })
	assert.Equal(t, msgUnreachable, s.Error)
}

func TestSearchMinimumLength(t *testing.T) {
	srv := testserver.New(t)
	alice := srv.AddUser("alice", "secret1")
	srv.AddUser("anna", "pw")
	srv.AddUser("andy", "pw")
	pid := srv.AddProject(alice, "Team")
	h := newHarness(t, srv, "alice")
	h.do(func() { h.ctl.SelectProject(pid) })

	s := h.do(func() { h.ctl.SearchUsers("a") })
	assert.Zero(t, srv.Calls(routeSearch))
	assert.Empty(t, s.SearchResults)

	s = h.do(func() { h.ctl.SearchUsers("an") })
	assert.Equal(t, 1, srv.Calls(routeSearch))
	require.Len(t, s.SearchResults, 2)

	s = h.do(func() { h.ctl.SearchUsers("ann") })
	require.Len(t, s.SearchResults, 1)
	assert.Equal(t, "anna", s.SearchResults[0].Username)

	s = h.do(func() { h.ctl.SearchUsers(" x ") })
	assert.Empty(t, s.SearchResults)
	assert.Equal(t, 2, srv.Calls(routeSearch))
	assert.Equal(t, pid, s.ProjectID, "search leaves detail alone")
}

func TestSelectBackSelectFetchesTwice(t *testing.T) {
	srv := testserver.New(t)
	alice := srv.AddUser("alice", "secret1")
	pid := srv.AddProject(alice, "Team")
	srv.AddTask(pid, alice, "one", nil)
	h := newHarness(t, srv, "alice")

	s := h.do(func() { h.ctl.SelectProject(pid) })
	assert.Equal(t, ScreenProjectDetail, s.Screen)
	require.NotNil(t, s.Project)
	assert.Len(t, s.Tasks, 1)

	s = h.do(func() { h.ctl.Back() })
	assert.Equal(t, ScreenProjects, s.Screen)
	assert.Nil(t, s.Project)
	assert.Nil(t, s.Tasks)
	assert.Zero(t, s.ProjectID)

	h.do(func() { h.ctl.SelectProject(pid) })
	assert.Equal(t, 2, srv.Calls(routeProject))
	assert.Equal(t, 2, srv.Calls(routeTasks))
	assert.Equal(t, 2, srv.Calls(routeProjects), "initial load and back")
}

func TestUnassignRoundTrip(t *testing.T) {
	srv := testserver.New(t)
	alice := srv.AddUser("alice", "secret1")
	bob := srv.AddUser("bob", "pw")
	pid := srv.AddProject(alice, "Team")
	srv.AddMember(pid, bob)
	tid := srv.AddTask(pid, alice, "Review PR", &bob)
	h := newHarness(t, srv, "alice")

	s := h.do(func() { h.ctl.SelectProject(pid) })
	task, ok := s.Task(tid)
	require.True(t, ok)
	require.NotNil(t, task.Assignee)

	in := repository.InputFrom(task)
	in.AssigneeID = nil
	s = h.do(func() { h.ctl.UpdateTask(tid, in) })

	task, ok = s.Task(tid)
	require.True(t, ok)
	assert.Nil(t, task.Assignee)
	stored, _ := srv.TaskAssignee(tid)
	assert.Nil(t, stored)
	assert.Equal(t, 2, srv.Calls(routeProject), "update re-fetches detail")
	assert.Equal(t, 2, srv.Calls(routeTasks))
}

func TestRemoveAssignedMember(t *testing.T) {
	srv := testserver.New(t)
	alice := srv.AddUser("alice", "secret1")
	bob := srv.AddUser("bob", "pw")
	pid := srv.AddProject(alice, "Team")
	srv.AddMember(pid, bob)
	tid := srv.AddTask(pid, alice, "Deploy", &bob)
	h := newHarness(t, srv, "alice")
	h.do(func() { h.ctl.SelectProject(pid) })

	s := h.do(func() { h.ctl.RemoveMember(bob) })
	assert.Empty(t, s.Error)
	require.NotNil(t, s.Project)
	assert.False(t, s.Project.HasMember(bob))
	task, ok := s.Task(tid)
	require.True(t, ok)
	assert.Nil(t, task.Assignee)
	assert.Equal(t, 2, srv.Calls(routeTasks))
}

func TestAddMemberClearsSearch(t *testing.T) {
	srv := testserver.New(t)
	alice := srv.AddUser("alice", "secret1")
	bob := srv.AddUser("bob", "pw")
	pid := srv.AddProject(alice, "Team")
	h := newHarness(t, srv, "alice")
	h.do(func() { h.ctl.SelectProject(pid) })

	s := h.do(func() { h.ctl.SearchUsers("bo") })
	require.Equal(t, []model.UserBrief{{ID: bob, Username: "bob"}}, s.MemberCandidates())

	s = h.do(func() { h.ctl.AddMember(bob) })
	assert.Empty(t, s.SearchResults)
	require.NotNil(t, s.Project)
	assert.True(t, s.Project.HasMember(bob))
	assert.Equal(t, 1, srv.Calls(routeTasks), "membership change alone does not reload tasks")

	s = h.do(func() { h.ctl.AddMember(bob) })
	assert.Contains(t, s.Error, "Failed to add member")
}

func TestDeleteTaskRefetchesTasks(t *testing.T) {
	srv := testserver.New(t)
	alice := srv.AddUser("alice", "secret1")
	pid := srv.AddProject(alice, "Team")
	tid := srv.AddTask(pid, alice, "Obsolete", nil)
	h := newHarness(t, srv, "alice")
	h.do(func() { h.ctl.SelectProject(pid) })

	s := h.do(func() { h.ctl.DeleteTask(tid) })
	assert.Empty(t, s.Tasks)
	assert.Equal(t, 2, srv.Calls(routeTasks))
	assert.Equal(t, 1, srv.Calls(routeProject))
}

func TestProjectEditAndDelete(t *testing.T) {
	srv := testserver.New(t)
	alice := srv.AddUser("alice", "secret1")
	pid := srv.AddProject(alice, "Draft")
	h := newHarness(t, srv, "alice")
	h.do(func() { h.ctl.SelectProject(pid) })

	s := h.do(func() { h.ctl.UpdateProject("Final", "ready") })
	require.NotNil(t, s.Project)
	assert.Equal(t, "Final", s.Project.Name)
	assert.Equal(t, "ready", s.Project.Description)
	assert.Equal(t, []string{"Final"}, projectNames(s.Projects))

	s = h.do(func() { h.ctl.UpdateProject("  ", "") })
	assert.Equal(t, "Project name is required", s.Error)

	s = h.do(func() { h.ctl.DeleteProject(pid) })
	assert.Equal(t, ScreenProjects, s.Screen)
	assert.Empty(t, s.Projects)
	assert.Empty(t, s.Error)
}

func TestFetchFailureKeepsStaleData(t *testing.T) {
	srv := testserver.New(t)
	alice := srv.AddUser("alice", "secret1")
	pid := srv.AddProject(alice, "Team")
	h := newHarness(t, srv, "alice")
	h.do(func() { h.ctl.SelectProject(pid) })

	srv.FailNext(routeProjects, http.StatusInternalServerError)
	s := h.do(func() { h.ctl.Back() })
	assert.Equal(t, []string{"Team"}, projectNames(s.Projects))
	assert.Equal(t, "Failed to load projects: injected failure", s.Error)
	assert.False(t, s.Loading)

	s = h.do(func() { h.ctl.SelectProject(pid) })
	assert.Empty(t, s.Error, "navigation clears the error")

	s = h.do(func() { h.ctl.DeleteTask(12345) })
	assert.Equal(t, "Failed to delete task: Task not found", s.Error)
	assert.Equal(t, []string{"Team"}, projectNames(s.Projects))
	h.ctl.DismissError()
	assert.Empty(t, h.ctl.State().Error)
}

func TestLogoutDuringFetch(t *testing.T) {
	srv := testserver.New(t)
	alice := srv.AddUser("alice", "secret1")
	pid := srv.AddProject(alice, "Team")
	h := newHarness(t, srv, "alice")

	gate := srv.Hold(t, routeProject)
	h.ctl.SelectProject(pid)
	waitEntered(t, gate)
	assert.True(t, h.ctl.State().Loading)

	h.ctl.Logout()
	gate.Release()
	h.ctl.Wait()

	s := h.ctl.State()
	assert.Equal(t, ScreenLogin, s.Screen)
	assert.Nil(t, s.User)
	assert.Nil(t, s.Project)
	assert.Nil(t, s.Tasks)
	assert.Nil(t, s.Projects)
	assert.Zero(t, s.ProjectID)
	assert.False(t, s.Loading)
	assert.False(t, h.sessions.IsAuthenticated())

	h.ctl.Logout()
	assert.False(t, h.sessions.IsAuthenticated())
}

func TestStaleDetailDiscarded(t *testing.T) {
	srv := testserver.New(t)
	alice := srv.AddUser("alice", "secret1")
	pid := srv.AddProject(alice, "Team")
	h := newHarness(t, srv, "alice")

	gate := srv.Hold(t, routeProject)
	h.ctl.SelectProject(pid)
	waitEntered(t, gate)

	var (
		mu   sync.Mutex
		seen []ViewState
	)
	unsubscribe := h.ctl.Subscribe(func(s ViewState) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	defer unsubscribe()

	h.ctl.Back()
	require.Eventually(t, func() bool { return srv.Calls(routeProjects) == 2 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !h.ctl.State().Loading }, 5*time.Second, 10*time.Millisecond,
		"list load settles while the old detail fetch is still held")

	gate.Release()
	h.ctl.Wait()

	s := h.ctl.State()
	assert.Equal(t, ScreenProjects, s.Screen)
	assert.Nil(t, s.Project)
	assert.Nil(t, s.Tasks)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for _, snap := range seen {
		assert.Equal(t, ScreenProjects, snap.Screen)
		assert.Nil(t, snap.Project)
	}
}

func TestIntentsIgnoredOffScreen(t *testing.T) {
	srv := testserver.New(t)
	srv.AddUser("alice", "secret1")
	h := newHarness(t, srv, "alice")

	s := h.do(func() {
		h.ctl.CreateTask(repository.TaskInput{Title: "x", Status: model.StatusTodo, Complexity: model.ComplexityLow})
		h.ctl.RemoveMember(1)
		h.ctl.Back()
		h.ctl.GoToLogin()
	})
	assert.Equal(t, ScreenProjects, s.Screen)
	assert.Empty(t, s.Error)
	assert.Equal(t, 1, srv.Calls(routeProjects))
}

func searchHarness(t *testing.T) (*testserver.Server, *harness) {
	t.Helper()
	srv := testserver.New(t)
	alice := srv.AddUser("alice", "secret1")
	srv.AddUser("anna", "pw")
	srv.AddUser("bob", "pw")
	pid := srv.AddProject(alice, "Team")
	h := newHarness(t, srv, "alice")
	h.do(func() { h.ctl.SelectProject(pid) })
	return srv, h
}

func usernames(us []model.UserBrief) []string {
	names := make([]string, 0, len(us))
	for _, u := range us {
		names = append(names, u.Username)
	}
	return names
}

func TestNewerSearchWins(t *testing.T) {
	srv, h := searchHarness(t)
	g := srv.Hold(t, routeSearch)

	h.ctl.SearchUsers("an")
	waitEntered(t, g)
	h.ctl.SearchUsers("bo")
	waitEntered(t, g)
	g.Release()
	h.ctl.Wait()

	s := h.ctl.State()
	assert.Equal(t, []string{"bob"}, usernames(s.SearchResults))
	assert.Equal(t, 2, srv.Calls(routeSearch))
	assert.False(t, s.Loading)
}

func TestSearchFailureClearsResults(t *testing.T) {
	srv, h := searchHarness(t)

	s := h.do(func() { h.ctl.SearchUsers("an") })
	require.Equal(t, []string{"anna"}, usernames(s.SearchResults))

	srv.FailNext(routeSearch, http.StatusInternalServerError)
	s = h.do(func() { h.ctl.SearchUsers("ann") })
	assert.Empty(t, s.SearchResults)
	assert.Empty(t, s.Error)
	assert.Equal(t, ScreenProjectDetail, s.Screen)
}

func TestClearSearch(t *testing.T) {
	srv, h := searchHarness(t)

	s := h.do(func() { h.ctl.SearchUsers("bo") })
	require.Len(t, s.SearchResults, 1)
	s = h.do(h.ctl.ClearSearch)
	assert.Empty(t, s.SearchResults)

	g := srv.Hold(t, routeSearch)
	h.ctl.SearchUsers("an")
	waitEntered(t, g)
	h.ctl.ClearSearch()
	g.Release()
	h.ctl.Wait()
	assert.Empty(t, h.ctl.State().SearchResults, "in-flight search dropped after clear")
}

func TestLogoutDuringRegister(t *testing.T) {
	srv := testserver.New(t)
	h := newHarness(t, srv, "")

	gate := srv.Hold(t, "POST /api/auth/register")
	h.ctl.GoToRegister()
	h.ctl.Register("carol", "secret1")
	waitEntered(t, gate)
	h.ctl.Logout()
	gate.Release()
	h.ctl.Wait()

	s := h.ctl.State()
	assert.Equal(t, ScreenLogin, s.Screen)
	assert.Nil(t, s.User)
	assert.False(t, h.sessions.IsAuthenticated(), "registration finishing after logout stores nothing")
}
