package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/kidandcat/taskflow/internal/api"
	"github.com/kidandcat/taskflow/internal/auth"
	"github.com/kidandcat/taskflow/internal/config"
	"github.com/kidandcat/taskflow/internal/controller"
	"github.com/kidandcat/taskflow/internal/db"
	"github.com/kidandcat/taskflow/internal/model"
	"github.com/kidandcat/taskflow/internal/repository"
)

const usage = `usage: taskflow [-config file] [-server url] [-data dir] <command>

commands:
  login <user> <pass>
  register <user> <pass>
  logout
  whoami
  projects [-sort name|created|updated] [-desc]
  show <project-id>
  add-task <project-id> <title> [complexity]
`

// Command output goes through these so run can be exercised in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	serverURL := flag.String("server", "", "server base URL")
	dataDir := flag.String("data", "", "local data directory")
	verbose := flag.Bool("v", false, "log gateway traffic to stderr")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	base := config.Default()
	if *configPath != "" {
		var err error
		if base, err = config.LoadFile(*configPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	cfg := config.Load(base, *serverURL, *dataDir)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New(io.Discard, "", 0)
	if *verbose || cfg.LogRequests {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	storage, err := db.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("open data dir: %v", err)
	}

	ctl := wire(cfg, storage, logger)
	code := run(ctl, flag.Arg(0), flag.Args()[1:])
	ctl.Close()
	storage.Close()
	os.Exit(code)
}

func wire(cfg config.Config, storage *db.Store, logger *log.Logger) *controller.Controller {
	creds := api.NewCredentials()
	client := api.NewClient(cfg.ServerURL, creds,
		api.WithTimeout(cfg.Timeout),
		api.WithLogger(logger),
		api.WithRequestLogging(cfg.LogRequests))
	sessions := auth.NewStore(storage, client, creds, auth.WithLogger(logger))
	return controller.New(sessions,
		repository.NewProjectRepository(client, repository.WithLogger(logger)),
		repository.NewTaskRepository(client, repository.WithLogger(logger)),
		controller.WithLogger(logger))
}

func run(ctl *controller.Controller, cmd string, args []string) int {
	step := func(intent func()) controller.ViewState {
		intent()
		ctl.Wait()
		return ctl.State()
	}

	ctl.Start()
	ctl.Wait()

	var s controller.ViewState
	switch cmd {
	case "login", "register":
		if len(args) != 2 {
			return fail("%s needs <user> <pass>", cmd)
		}
		if cmd == "login" {
			s = step(func() { ctl.Login(args[0], args[1]) })
		} else {
			s = step(func() {
				ctl.GoToRegister()
				ctl.Register(args[0], args[1])
			})
		}
		if s.User == nil {
			return fail("%s", s.Error)
		}
		fmt.Fprintf(stdout, "Logged in as %s\n", s.User.Username)
		if s.Error != "" {
			return fail("%s", s.Error)
		}
		printProjects(s, controller.OrderServer)

	case "logout":
		step(ctl.Logout)
		fmt.Fprintln(stdout, "Logged out")

	case "whoami":
		s = ctl.State()
		if s.User == nil {
			return fail("not logged in")
		}
		fmt.Fprintln(stdout, s.User.Username)

	case "projects":
		fs := flag.NewFlagSet("projects", flag.ContinueOnError)
		sortBy := fs.String("sort", "", "name, created or updated")
		desc := fs.Bool("desc", false, "reverse the order")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		order, err := controller.ParseProjectOrder(*sortBy, *desc)
		if err != nil {
			return fail("%v", err)
		}
		s = ctl.State()
		if s.User == nil {
			return fail("not logged in")
		}
		if s.Error != "" {
			return fail("%s", s.Error)
		}
		printProjects(s, order)

	case "show":
		if len(args) != 1 {
			return fail("show needs <project-id>")
		}
		s, code := open(ctl, args[0])
		if code != 0 {
			return code
		}
		printDetail(s)

	case "add-task":
		if len(args) < 2 || len(args) > 3 {
			return fail("add-task needs <project-id> <title> [complexity]")
		}
		if _, code := open(ctl, args[0]); code != 0 {
			return code
		}
		in := repository.TaskInput{Title: args[1], Status: model.StatusTodo, Complexity: model.ComplexityMedium}
		if len(args) == 3 {
			in.Complexity = model.Complexity(strings.ToLower(args[2]))
		}
		s = step(func() { ctl.CreateTask(in) })
		if s.Error != "" {
			return fail("%s", s.Error)
		}
		printDetail(s)

	default:
		fmt.Fprint(stderr, usage)
		return 2
	}
	return 0
}

// open selects the project named by arg and waits for it to load.
func open(ctl *controller.Controller, arg string) (controller.ViewState, int) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return controller.ViewState{}, fail("invalid project id %q", arg)
	}
	if ctl.State().User == nil {
		return controller.ViewState{}, fail("not logged in")
	}
	ctl.SelectProject(id)
	ctl.Wait()
	s := ctl.State()
	if s.Error != "" || s.Project == nil {
		return s, fail("%s", s.Error)
	}
	return s, 0
}

func fail(format string, args ...any) int {
	fmt.Fprintf(stderr, "taskflow: "+format+"\n", args...)
	return 1
}

func printProjects(s controller.ViewState, order controller.ProjectOrder) {
	projects := s.SortedProjects(order)
	if len(projects) == 0 {
		fmt.Fprintln(stdout, "No projects yet")
		return
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tOWNER\tUPDATED")
	for _, p := range projects {
		owner := p.Owner.Username
		if s.IsProjectOwner(p) {
			owner = "you"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ID, p.Name, owner, humanize.Time(p.UpdatedAt))
	}
	w.Flush()
}

func printDetail(s controller.ViewState) {
	p := s.Project
	fmt.Fprintf(stdout, "%s (#%d), owned by %s\n", p.Name, p.ID, p.Owner.Username)
	if p.Description != "" {
		fmt.Fprintln(stdout, p.Description)
	}
	if len(p.Members) > 0 {
		names := make([]string, 0, len(p.Members))
		for _, m := range p.Members {
			names = append(names, m.User.Username)
		}
		fmt.Fprintf(stdout, "Members: %s\n", strings.Join(names, ", "))
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, col := range s.Board() {
		fmt.Fprintf(w, "\n[%s] %s\n", col.Status, humanize.Comma(int64(len(col.Tasks))))
		for _, t := range col.Tasks {
			assignee := "-"
			if t.Assignee != nil {
				assignee = t.Assignee.Username
			}
			fmt.Fprintf(w, "  #%d\t%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Complexity, assignee, humanize.Time(t.UpdatedAt))
		}
	}
	w.Flush()
}
