package engine_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/todo-prober/internal/engine"
	"github.com/daryltucker/todo-prober/internal/engine/enginetest"
)

func TestSessionManager_RegisterTwice(t *testing.T) {
	_, cfg := newTarget(t, enginetest.Options{})
	client, err := engine.NewClient(cfg)
	require.NoError(t, err)
	sm := engine.NewSessionManager(client)

	status, err := sm.Register(context.Background(), cfg.Credentials)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	status, err = sm.Register(context.Background(), cfg.Credentials)
	require.NoError(t, err, "duplicate registration is tolerated")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSessionManager_Login(t *testing.T) {
	srv, cfg := newTarget(t, enginetest.Options{})
	srv.AddUser(cfg.Credentials.Email, cfg.Credentials.Password)
	client, err := engine.NewClient(cfg)
	require.NoError(t, err)

	session, status, err := engine.NewSessionManager(client).Login(context.Background(), cfg.Credentials)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Bearer", session.TokenType)
	assert.Equal(t, 3600, session.ExpiresIn)
	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)

	_, err = engine.ParseTokenInfo(session.AccessToken)
	assert.Error(t, err, "fake issues opaque tokens by default")
}

func TestSessionManager_LoginJWT(t *testing.T) {
	clock := enginetest.NewFakeClock()
	srv, cfg := newTarget(t, enginetest.Options{Now: clock.Now, JWTKey: []byte("test-signing-key")})
	client := loggedIn(t, srv, cfg)

	session, ok := client.Session()
	require.True(t, ok)

	info, err := engine.ParseTokenInfo(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, cfg.Credentials.Email, info.Subject)
	assert.Equal(t, "todo-api-fake", info.Issuer)
	assert.True(t, info.ExpiresAt.Equal(clock.Now().Add(time.Hour)))
}

func TestSessionManager_LoginMissingRefreshToken(t *testing.T) {
	srv, cfg := newTarget(t, enginetest.Options{OmitRefreshToken: true})
	srv.AddUser(cfg.Credentials.Email, cfg.Credentials.Password)
	client, err := engine.NewClient(cfg)
	require.NoError(t, err)

	_, status, err := engine.NewSessionManager(client).Login(context.Background(), cfg.Credentials)
	assert.ErrorIs(t, err, engine.ErrMalformedResponse)
	assert.Equal(t, http.StatusOK, status)
}

func TestSessionManager_LoginRejected(t *testing.T) {
	_, cfg := newTarget(t, enginetest.Options{})
	client, err := engine.NewClient(cfg)
	require.NoError(t, err)

	_, status, err := engine.NewSessionManager(client).Login(context.Background(), cfg.Credentials)
	assert.ErrorIs(t, err, engine.ErrMalformedResponse)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestParseTokenInfo_Opaque(t *testing.T) {
	_, err := engine.ParseTokenInfo("CfDJ8Opaque-token")
	assert.Error(t, err)
}
