package engine_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daryltucker/todo-prober/internal/config"
	"github.com/daryltucker/todo-prober/internal/engine"
	"github.com/daryltucker/todo-prober/internal/engine/enginetest"
	"github.com/daryltucker/todo-prober/internal/output"
)

// quiet swaps the package logger for one that drops everything below error.
func quiet(t *testing.T) {
	t.Helper()
	prev := output.Logger
	output.SetLogger(output.NewLogger(&bytes.Buffer{}, slog.LevelError))
	t.Cleanup(func() { output.SetLogger(prev) })
}

// newTarget starts a fake API and returns a config pointing at it.
func newTarget(t *testing.T, opts enginetest.Options) (*enginetest.Server, *config.Config) {
	t.Helper()
	quiet(t)

	srv := enginetest.NewServer(opts)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.BaseURL = srv.URL
	return srv, cfg
}

// loggedIn registers the default account on srv and returns a client holding its session.
func loggedIn(t *testing.T, srv *enginetest.Server, cfg *config.Config) *engine.Client {
	t.Helper()
	srv.AddUser(cfg.Credentials.Email, cfg.Credentials.Password)

	client, err := engine.Login(context.Background(), cfg)
	require.NoError(t, err)
	return client
}
