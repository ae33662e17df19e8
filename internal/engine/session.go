package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/daryltucker/todo-prober/internal/model"
	"github.com/daryltucker/todo-prober/internal/output"
)

// SessionManager performs registration and login against the identity endpoints.
type SessionManager struct {
	client *Client
}

func NewSessionManager(c *Client) *SessionManager {
	return &SessionManager{client: c}
}

// Register submits the credentials. A non-success status is logged with the
// body and is not an error: the account may already exist.
func (m *SessionManager) Register(ctx context.Context, creds model.Credentials) (int, error) {
	output.Logger.Info("Trying to register user...", "email", creds.Email)

	resp, err := m.client.Post(ctx, RegisterPath, nil, creds)
	if err != nil {
		return 0, fmt.Errorf("register: %w", err)
	}

	output.Logger.Info("Register response", "status", resp.StatusCode)
	if resp.StatusCode != 200 {
		output.Logger.Warn("Register not accepted, assuming account exists",
			"status", resp.StatusCode, "body", truncate(string(resp.Body), 500))
	}
	return resp.StatusCode, nil
}

// Login submits the credentials and extracts the token pair. A body without
// both tokens yields ErrMalformedResponse.
func (m *SessionManager) Login(ctx context.Context, creds model.Credentials) (model.Session, int, error) {
	output.Logger.Info("Trying to login user...", "email", creds.Email)

	resp, err := m.client.Post(ctx, LoginPath, nil, creds)
	if err != nil {
		return model.Session{}, 0, fmt.Errorf("login: %w", err)
	}
	output.Logger.Info("Login response", "status", resp.StatusCode)

	var session model.Session
	if err := resp.Decode(&session); err != nil {
		return model.Session{}, resp.StatusCode, fmt.Errorf("login (status %d): %w", resp.StatusCode, err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		return model.Session{}, resp.StatusCode, fmt.Errorf("login (status %d): %w: accessToken or refreshToken missing (body: %s)",
			resp.StatusCode, ErrMalformedResponse, truncate(string(resp.Body), 200))
	}

	output.Logger.Info("Logged in",
		"status", resp.StatusCode,
		"access_token", output.Redact(session.AccessToken),
		"refresh_token", output.Redact(session.RefreshToken),
		"expires_in", session.ExpiresIn)
	output.Logger.Debug("Session tokens", "access_token", session.AccessToken, "refresh_token", session.RefreshToken)

	InspectToken(session.AccessToken)
	return session, resp.StatusCode, nil
}

// TokenInfo is what can be read from a JWT access token without verifying it.
type TokenInfo struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
}

// errOpaqueToken means the token is not a JWT, as with ASP.NET Identity bearer tokens.
var errOpaqueToken = errors.New("opaque token")

// ParseTokenInfo decodes JWT claims without checking the signature; the
// prober has no key and only reports what the server issued.
func ParseTokenInfo(token string) (TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("%w: %v", errOpaqueToken, err)
	}

	var info TokenInfo
	info.Subject, _ = claims.GetSubject()
	info.Issuer, _ = claims.GetIssuer()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}

// InspectToken logs the claims of a JWT access token, or notes that it is opaque.
func InspectToken(token string) {
	info, err := ParseTokenInfo(token)
	if err != nil {
		output.Logger.Debug("Access token is opaque", "length", len(token))
		return
	}
	output.Logger.Info("Access token claims", "sub", info.Subject, "iss", info.Issuer, "exp", info.ExpiresAt)
}
