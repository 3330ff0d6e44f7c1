// Package controller holds the client's single source of truth. It turns
// user intents into repository calls and publishes the resulting
// ViewState snapshots to subscribers.
//
// Intents return immediately; the network work runs on goroutines. Every
// screen change and logout starts a new generation, and completions from an
// older generation are dropped, as are completions that arrive after the
// session is gone.
package controller

import (
	"context"
	"errors"
	"log"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/kidandcat/taskflow/internal/api"
	"github.com/kidandcat/taskflow/internal/model"
	"github.com/kidandcat/taskflow/internal/repository"
)

const minSearchLen = 2

const (
	msgBadLogin     = "Invalid username or password"
	msgUnreachable  = "Cannot reach the server"
	msgRegistration = "Registration failed. The username may already exist."
)

type Sessions interface {
	Login(ctx context.Context, username, password string) (model.Session, error)
	Register(ctx context.Context, username, password string) (model.Session, error)
	Logout() error
	IsAuthenticated() bool
	CurrentUser() *model.UserBrief
}

type Projects interface {
	List(ctx context.Context) repository.Result[[]model.Project]
	Get(ctx context.Context, id int64) repository.Result[model.ProjectDetail]
	Create(ctx context.Context, name, description string) repository.Result[model.ProjectDetail]
	Update(ctx context.Context, id int64, name, description string) repository.Result[model.ProjectDetail]
	Delete(ctx context.Context, id int64) repository.Result[struct{}]
	AddMember(ctx context.Context, projectID, userID int64) repository.Result[model.Member]
	RemoveMember(ctx context.Context, projectID, userID int64) repository.Result[struct{}]
	SearchUsers(ctx context.Context, query string) repository.Result[[]model.UserBrief]
}

type Tasks interface {
	List(ctx context.Context, projectID int64) repository.Result[[]model.Task]
	Create(ctx context.Context, projectID int64, in repository.TaskInput) repository.Result[model.Task]
	Update(ctx context.Context, projectID, taskID int64, in repository.TaskInput) repository.Result[model.Task]
	Delete(ctx context.Context, projectID, taskID int64) repository.Result[struct{}]
}

// change is applied to a copy of the current state with c.mu held.
type change func(s *ViewState)

type Controller struct {
	sessions Sessions
	projects Projects
	tasks    Tasks
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     ViewState
	version   uint64
	gen       uint64
	pending   int // outstanding operations of gen
	searchSeq uint64
	subs      map[int]func(ViewState)
	nextSub   int

	notifyMu  sync.Mutex
	delivered uint64
}

type Option func(*Controller)

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a controller on the login screen, or on the project list when
// a session is already stored. Call Start to load the initial screen.
func New(sessions Sessions, projects Projects, tasks Tasks, opts ...Option) *Controller {
	c := &Controller{
		sessions: sessions,
		projects: projects,
		tasks:    tasks,
		logger:   log.Default(),
		subs:     make(map[int]func(ViewState)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.state = ViewState{Screen: ScreenLogin}
	if sessions.IsAuthenticated() {
		c.state = ViewState{Screen: ScreenProjects, User: sessions.CurrentUser()}
	}
	return c
}

// Start issues the fetches of the initial screen.
func (c *Controller) Start() {
	c.update(func(s *ViewState) {
		if s.Screen == ScreenProjects {
			c.loadProjectsLocked()
		}
	})
}

// Close cancels in-flight requests and waits for them to settle.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

// Wait blocks until no operation is in flight.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) State() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every new snapshot, in order. fn must not
// call back into the controller synchronously. The returned func
// unsubscribes.
func (c *Controller) Subscribe(fn func(ViewState)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

type snapshot struct {
	state   ViewState
	version uint64
	subs    []func(ViewState)
}

// commitLocked publishes next as the current state.
func (c *Controller) commitLocked(next ViewState) snapshot {
	next.Loading = c.pending > 0
	c.state = next
	c.version++
	subs := make([]func(ViewState), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return snapshot{state: next, version: c.version, subs: subs}
}

// notify delivers snap unless a newer snapshot already went out.
func (c *Controller) notify(snap snapshot) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if snap.version <= c.delivered {
		return
	}
	c.delivered = snap.version
	for _, fn := range snap.subs {
		fn(snap.state)
	}
}

// update applies fn to the current state and publishes the result.
func (c *Controller) update(fn change) {
	c.mu.Lock()
	next := c.state
	fn(&next)
	snap := c.commitLocked(next)
	c.mu.Unlock()
	c.notify(snap)
}

// navigateLocked starts a new generation. Outstanding operations of the
// old one no longer count towards Loading and their results are dropped.
func (c *Controller) navigateLocked() {
	c.gen++
	c.pending = 0
	c.searchSeq++
}

// spawnLocked runs work in the current generation. The change it returns is
// applied only if the generation is still current and, when authed is set,
// a session is still stored.
func (c *Controller) spawnLocked(authed bool, work func(ctx context.Context) change) {
	gen := c.gen
	c.pending++
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.finish(gen, authed, work(c.ctx))
	}()
}

func (c *Controller) finish(gen uint64, authed bool, apply change) {
	signedIn := !authed || c.sessions.IsAuthenticated()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.pending--
	next := c.state
	switch {
	case !signedIn:
		c.logger.Printf("dropping result: no session")
	case apply != nil:
		apply(&next)
	}
	snap := c.commitLocked(next)
	c.mu.Unlock()
	c.notify(snap)
}

// Authentication

func authMessage(err error, fallback string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Kind == api.KindNetwork:
			return msgUnreachable
		case apiErr.Kind == api.KindValidation && apiErr.Status == 0:
			return apiErr.Detail
		}
	}
	return fallback
}

func (c *Controller) Login(username, password string) {
	c.authenticate(func(ctx context.Context) error {
		_, err := c.sessions.Login(ctx, username, password)
		return err
	}, msgBadLogin)
}

// Register creates the account and logs in with it.
func (c *Controller) Register(username, password string) {
	c.authenticate(func(ctx context.Context) error {
		_, err := c.sessions.Register(ctx, username, password)
		return err
	}, msgRegistration)
}

func (c *Controller) authenticate(do func(ctx context.Context) error, fallback string) {
	c.update(func(s *ViewState) {
		s.Error = ""
		c.spawnLocked(false, func(ctx context.Context) change {
			if err := do(ctx); err != nil {
				c.logger.Printf("error authenticating: %v", err)
				msg := authMessage(err, fallback)
				return func(s *ViewState) { s.Error = msg }
			}
			return func(s *ViewState) { c.enterProjectsLocked(s) }
		})
	})
}

// GoToRegister and GoToLogin switch between the two signed-out screens. An
// in-flight login stays current across the switch.
func (c *Controller) GoToRegister() {
	c.update(func(s *ViewState) {
		if s.Screen == ScreenLogin {
			s.Screen = ScreenRegister
			s.Error = ""
		}
	})
}

func (c *Controller) GoToLogin() {
	c.update(func(s *ViewState) {
		if s.Screen == ScreenRegister {
			s.Screen = ScreenLogin
			s.Error = ""
		}
	})
}

// Logout clears the session and every loaded list.
func (c *Controller) Logout() {
	if err := c.sessions.Logout(); err != nil {
		c.logger.Printf("error logging out: %v", err)
	}
	c.update(func(s *ViewState) {
		c.navigateLocked()
		*s = ViewState{Screen: ScreenLogin}
	})
}

// Navigation

// enterProjectsLocked switches to the project list, keeping the previous
// list on screen while it is re-fetched.
func (c *Controller) enterProjectsLocked(s *ViewState) {
	c.navigateLocked()
	*s = ViewState{Screen: ScreenProjects, User: c.sessions.CurrentUser(), Projects: s.Projects}
	c.loadProjectsLocked()
}

func (c *Controller) loadProjectsLocked() {
	c.spawnLocked(true, func(ctx context.Context) change {
		res := c.projects.List(ctx)
		return func(s *ViewState) {
			if !res.OK() {
				s.Error = res.Err.Message
				return
			}
			s.Projects = res.Value
			s.Error = ""
		}
	})
}

// openProjectLocked switches to the detail screen of id. prefill, when
// known, is shown until the fetch lands.
func (c *Controller) openProjectLocked(s *ViewState, id int64, prefill *model.ProjectDetail) {
	c.navigateLocked()
	*s = ViewState{
		Screen:    ScreenProjectDetail,
		User:      s.User,
		ProjectID: id,
		Projects:  s.Projects,
		Project:   prefill,
		Tasks:     []model.Task{},
	}
	c.loadDetailLocked(id)
}

// loadDetailLocked fetches the project and its tasks concurrently and
// applies both once they settle.
func (c *Controller) loadDetailLocked(id int64) {
	c.spawnLocked(true, func(ctx context.Context) change {
		return c.fetchDetail(ctx, id, true)
	})
}

func (c *Controller) fetchDetail(ctx context.Context, id int64, withProject bool) change {
	var (
		g       errgroup.Group
		project repository.Result[model.ProjectDetail]
		tasks   repository.Result[[]model.Task]
	)
	if withProject {
		g.Go(func() error {
			project = c.projects.Get(ctx, id)
			return nil
		})
	}
	g.Go(func() error {
		tasks = c.tasks.List(ctx, id)
		return nil
	})
	g.Wait()

	return func(s *ViewState) {
		if s.ProjectID != id {
			return
		}
		s.Error = ""
		if withProject {
			if project.OK() {
				p := project.Value
				s.Project = &p
			} else {
				s.Error = project.Err.Message
			}
		}
		if tasks.OK() {
			s.Tasks = tasks.Value
		} else if s.Error == "" {
			s.Error = tasks.Err.Message
		}
	}
}

func (c *Controller) SelectProject(id int64) {
	c.update(func(s *ViewState) {
		if s.User == nil {
			return
		}
		c.openProjectLocked(s, id, nil)
	})
}

// Back leaves the detail screen, dropping its state, and re-fetches the list.
func (c *Controller) Back() {
	c.update(func(s *ViewState) {
		if s.Screen != ScreenProjectDetail {
			return
		}
		c.enterProjectsLocked(s)
	})
}

func (c *Controller) DismissError() {
	c.update(func(s *ViewState) { s.Error = "" })
}

// Projects

// CreateProject creates a project and opens it.
func (c *Controller) CreateProject(name, description string) {
	c.mutate(func(ctx context.Context, s ViewState) change {
		res := c.projects.Create(ctx, name, description)
		if !res.OK() {
			return failure(res.Err)
		}
		created := res.Value
		return func(s *ViewState) {
			s.Projects = append([]model.Project{created.Project}, s.Projects...)
			c.openProjectLocked(s, created.ID, &created)
		}
	})
}

func (c *Controller) UpdateProject(name, description string) {
	c.mutateProject(func(ctx context.Context, s ViewState) change {
		res := c.projects.Update(ctx, s.ProjectID, name, description)
		if !res.OK() {
			return failure(res.Err)
		}
		updated := res.Value
		return func(s *ViewState) {
			s.Error = ""
			s.Project = &updated
			projects := slices.Clone(s.Projects)
			for i := range projects {
				if projects[i].ID == updated.ID {
					projects[i] = updated.Project
				}
			}
			s.Projects = projects
		}
	})
}

// DeleteProject deletes id and returns to the project list.
func (c *Controller) DeleteProject(id int64) {
	c.mutate(func(ctx context.Context, s ViewState) change {
		res := c.projects.Delete(ctx, id)
		if !res.OK() {
			return failure(res.Err)
		}
		return func(s *ViewState) {
			var kept []model.Project
			for _, p := range s.Projects {
				if p.ID != id {
					kept = append(kept, p)
				}
			}
			s.Projects = kept
			c.enterProjectsLocked(s)
		}
	})
}

// Members

// AddMember adds a user to the open project and re-fetches its membership.
func (c *Controller) AddMember(userID int64) {
	c.mutateProject(func(ctx context.Context, s ViewState) change {
		res := c.projects.AddMember(ctx, s.ProjectID, userID)
		if !res.OK() {
			return failure(res.Err)
		}
		detail := c.projects.Get(ctx, s.ProjectID)
		return func(s *ViewState) {
			s.Error = ""
			s.SearchResults = nil
			if detail.OK() {
				p := detail.Value
				s.Project = &p
			} else {
				s.Error = detail.Err.Message
			}
		}
	})
}

// RemoveMember also re-fetches tasks: the server unassigns the removed
// member's tasks.
func (c *Controller) RemoveMember(userID int64) {
	c.mutateProject(func(ctx context.Context, s ViewState) change {
		res := c.projects.RemoveMember(ctx, s.ProjectID, userID)
		if !res.OK() {
			return failure(res.Err)
		}
		return c.fetchDetail(ctx, s.ProjectID, true)
	})
}

// SearchUsers replaces the search results. Queries shorter than two
// characters clear them without a call; a newer query supersedes older ones.
func (c *Controller) SearchUsers(query string) {
	query = strings.TrimSpace(query)
	c.update(func(s *ViewState) {
		c.searchSeq++
		if utf8.RuneCountInString(query) < minSearchLen {
			s.SearchResults = nil
			return
		}
		seq, gen := c.searchSeq, c.gen
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			res := c.projects.SearchUsers(c.ctx, query)
			if !c.sessions.IsAuthenticated() {
				return
			}
			c.mu.Lock()
			if seq != c.searchSeq || gen != c.gen {
				c.mu.Unlock()
				return
			}
			next := c.state
			next.SearchResults = nil
			if res.OK() {
				next.SearchResults = res.Value
			}
			snap := c.commitLocked(next)
			c.mu.Unlock()
			c.notify(snap)
		}()
	})
}

func (c *Controller) ClearSearch() {
	c.update(func(s *ViewState) {
		c.searchSeq++
		s.SearchResults = nil
	})
}

// Tasks

// CreateTask adds the confirmed task to the top of the list without a
// re-fetch.
func (c *Controller) CreateTask(in repository.TaskInput) {
	c.mutateProject(func(ctx context.Context, s ViewState) change {
		res := c.tasks.Create(ctx, s.ProjectID, in)
		if !res.OK() {
			return failure(res.Err)
		}
		created := res.Value
		return func(s *ViewState) {
			s.Error = ""
			s.Tasks = append([]model.Task{created}, s.Tasks...)
		}
	})
}

// UpdateTask re-fetches the project and its tasks after the update lands.
func (c *Controller) UpdateTask(taskID int64, in repository.TaskInput) {
	c.mutateProject(func(ctx context.Context, s ViewState) change {
		res := c.tasks.Update(ctx, s.ProjectID, taskID, in)
		if !res.OK() {
			return failure(res.Err)
		}
		return c.fetchDetail(ctx, s.ProjectID, true)
	})
}

func (c *Controller) DeleteTask(taskID int64) {
	c.mutateProject(func(ctx context.Context, s ViewState) change {
		res := c.tasks.Delete(ctx, s.ProjectID, taskID)
		if !res.OK() {
			return failure(res.Err)
		}
		return c.fetchDetail(ctx, s.ProjectID, false)
	})
}

// mutate runs work against the state at the time of the intent. Signed-out
// screens ignore it.
func (c *Controller) mutate(work func(ctx context.Context, s ViewState) change) {
	c.update(func(s *ViewState) {
		if s.User == nil {
			return
		}
		at := *s
		c.spawnLocked(true, func(ctx context.Context) change { return work(ctx, at) })
	})
}

// mutateProject is mutate restricted to the project detail screen.
func (c *Controller) mutateProject(work func(ctx context.Context, s ViewState) change) {
	c.update(func(s *ViewState) {
		if s.User == nil || s.Screen != ScreenProjectDetail || s.ProjectID == 0 {
			return
		}
		at := *s
		c.spawnLocked(true, func(ctx context.Context) change { return work(ctx, at) })
	})
}

func failure(f *repository.Failure) change {
	msg := f.Message
	return func(s *ViewState) { s.Error = msg }
}
