package main

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidandcat/taskflow/internal/config"
	"github.com/kidandcat/taskflow/internal/controller"
	"github.com/kidandcat/taskflow/internal/db"
	"github.com/kidandcat/taskflow/internal/testserver"
)

func newCLI(t *testing.T, srv *testserver.Server) (*controller.Controller, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.ServerURL = srv.URL
	cfg.DataDir = t.TempDir()

	storage, err := db.Open(cfg.DataDir)
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })
	ctl := wire(cfg, storage, log.New(io.Discard, "", 0))
	t.Cleanup(ctl.Close)

	var out, errOut bytes.Buffer
	prevOut, prevErr := stdout, stderr
	stdout, stderr = &out, &errOut
	t.Cleanup(func() { stdout, stderr = prevOut, prevErr })
	return ctl, &out, &errOut
}

func TestLoginPrintsProjects(t *testing.T) {
	srv := testserver.New(t)
	alice := srv.AddUser("alice", "secret1")
	srv.AddProject(alice, "Sprint 1")
	ctl, out, _ := newCLI(t, srv)

	require.Zero(t, run(ctl, "login", []string{"alice", "secret1"}))
	assert.Contains(t, out.String(), "Logged in as alice")
	assert.Contains(t, out.String(), "Sprint 1")
}

func TestLoginReportedWhenListFails(t *testing.T) {
	srv := testserver.New(t)
	srv.AddUser("alice", "secret1")
	ctl, out, errOut := newCLI(t, srv)
	srv.FailNext("GET /api/projects/", http.StatusInternalServerError)

	assert.Equal(t, 1, run(ctl, "login", []string{"alice", "secret1"}))
	assert.Contains(t, out.String(), "Logged in as alice")
	assert.Contains(t, errOut.String(), "Failed to load projects")
	assert.NotNil(t, ctl.State().User)
}

func TestLoginBadPassword(t *testing.T) {
	srv := testserver.New(t)
	srv.AddUser("alice", "secret1")
	ctl, out, errOut := newCLI(t, srv)

	assert.Equal(t, 1, run(ctl, "login", []string{"alice", "nope"}))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Invalid username or password")
}
