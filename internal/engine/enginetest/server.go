// Package enginetest provides an in-process fake of the ToDo API for tests.
//
// The fake follows the real server's semantics where the prober can observe
// them: bearer auth on /ToDoEntries, status "done" parked as doing with
// pendingApproval until confirmed, 204 on updates and deletes, and a fixed
// window rate limiter answering 429.
package enginetest

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/daryltucker/todo-prober/internal/model"
)

// Options configure a Server.
type Options struct {
	// Now drives the rate limiter window. Nil uses time.Now.
	Now func() time.Time
	// Limit is the number of permits per window; 0 disables limiting.
	Limit  int
	Window time.Duration
	// Encoding compresses JSON responses when the client accepts it
	// ("gzip", "br" or "zstd").
	Encoding string
	// JWTKey makes login issue HS256 JWT access tokens instead of opaque ones.
	JWTKey []byte
	// CreateStatus overrides the create response with a bare status code.
	CreateStatus int
	// OmitRefreshToken drops refreshToken from the login body.
	OmitRefreshToken bool
}

// Request is a recorded inbound request.
type Request struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	Accept        string
}

// Server is the fake ToDo API.
type Server struct {
	*httptest.Server

	opts Options

	mu        sync.Mutex
	epoch     time.Time
	windowIdx int64
	permits   int
	users     map[string]string
	tokens    map[string]string
	entries   map[string]*model.TaskEntry
	order     []string
	requests  []Request
}

// NewServer starts the fake. Callers must Close it.
func NewServer(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}

	s := &Server{
		opts:    opts,
		epoch:   opts.Now(),
		users:   make(map[string]string),
		tokens:  make(map[string]string),
		entries: make(map[string]*model.TaskEntry),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", s.register)
	mux.HandleFunc("POST /login", s.login)
	mux.HandleFunc("GET /ToDoEntries", s.authed(s.listEntries))
	mux.HandleFunc("POST /ToDoEntries", s.authed(s.createEntry))
	mux.HandleFunc("GET /ToDoEntries/{id}", s.authed(s.getEntry))
	mux.HandleFunc("PUT /ToDoEntries/{id}", s.authed(s.putEntry))
	mux.HandleFunc("DELETE /ToDoEntries/{id}", s.authed(s.deleteEntry))

	s.Server = httptest.NewServer(s.limited(mux))
	return s
}

// AddUser registers an account up front.
func (s *Server) AddUser(email, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email] = password
}

// Requests returns every request seen, throttled ones included.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// Entry returns a stored entry by id.
func (s *Server) Entry(id string) (model.TaskEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return model.TaskEntry{}, false
	}
	return *e, true
}

func (s *Server) limited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
			Accept:        r.Header.Get("Accept"),
		})
		allowed := s.allow()
		s.mu.Unlock()

		if !allowed {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("Too many requests - RateLimit = 30/min"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow consumes a permit of the current fixed window. Caller holds mu.
func (s *Server) allow() bool {
	if s.opts.Limit <= 0 {
		return true
	}
	idx := int64(s.opts.Now().Sub(s.epoch) / s.opts.Window)
	if idx != s.windowIdx {
		s.windowIdx = idx
		s.permits = 0
	}
	if s.permits >= s.opts.Limit {
		return false
	}
	s.permits++
	return true
}

func (s *Server) authed(h func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		user, known := s.tokens[token]
		s.mu.Unlock()
		if !ok || !known {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h(w, r, user)
	}
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Email == "" {
		s.writeJSON(w, r, http.StatusBadRequest, problem("InvalidEmail", "Email is invalid."))
		return
	}

	s.mu.Lock()
	_, exists := s.users[creds.Email]
	if !exists {
		s.users[creds.Email] = creds.Password
	}
	s.mu.Unlock()

	if exists {
		s.writeJSON(w, r, http.StatusBadRequest, problem("DuplicateUserName", "Username '"+creds.Email+"' is already taken."))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	password, ok := s.users[creds.Email]
	s.mu.Unlock()
	if !ok || password != creds.Password {
		s.writeJSON(w, r, http.StatusUnauthorized, map[string]any{"title": "Unauthorized", "status": 401, "detail": "Failed"})
		return
	}

	access := uuid.NewString()
	if s.opts.JWTKey != nil {
		claims := jwt.RegisteredClaims{
			Subject:   creds.Email,
			Issuer:    "todo-api-fake",
			ExpiresAt: jwt.NewNumericDate(s.opts.Now().Add(time.Hour)),
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.JWTKey)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		access = signed
	}

	s.mu.Lock()
	s.tokens[access] = creds.Email
	s.mu.Unlock()

	body := map[string]any{
		"tokenType":   "Bearer",
		"accessToken": access,
		"expiresIn":   3600,
	}
	if !s.opts.OmitRefreshToken {
		body["refreshToken"] = uuid.NewString()
	}
	s.writeJSON(w, r, http.StatusOK, body)
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request, _ string) {
	s.mu.Lock()
	list := make([]model.TaskEntry, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, *s.entries[id])
	}
	s.mu.Unlock()
	s.writeJSON(w, r, http.StatusOK, list)
}

func (s *Server) createEntry(w http.ResponseWriter, r *http.Request, user string) {
	if s.opts.CreateStatus != 0 {
		w.WriteHeader(s.opts.CreateStatus)
		return
	}

	var e model.TaskEntry
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	e.ID = uuid.NewString()
	e.CreatedBy = user
	e.CreateTime = s.opts.Now().UTC().Format(time.RFC3339Nano)
	if e.Status == model.StatusDone {
		e.Status = model.StatusDoing
		e.PendingApproval = ptr(true)
	}

	s.mu.Lock()
	s.entries[e.ID] = &e
	s.order = append(s.order, e.ID)
	s.mu.Unlock()

	w.Header().Set("Location", "/ToDoEntries/"+e.ID)
	s.writeJSON(w, r, http.StatusCreated, e)
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request, _ string) {
	s.mu.Lock()
	e, ok := s.entries[r.PathValue("id")]
	var snapshot model.TaskEntry
	if ok {
		snapshot = *e
	}
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.writeJSON(w, r, http.StatusOK, snapshot)
}

func (s *Server) putEntry(w http.ResponseWriter, r *http.Request, user string) {
	id := r.PathValue("id")
	confirm := strings.EqualFold(r.URL.Query().Get("confirm"), "true")

	var update model.TaskEntry
	if !confirm {
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	now := s.opts.Now().UTC().Format(time.RFC3339Nano)

	if confirm {
		e.ApprovedTime = ptr(now)
		e.ApprovedBy = ptr(user)
		e.Status = model.StatusDone
		e.PendingApproval = ptr(false)
	} else {
		e.Title = update.Title
		e.Description = update.Description
		e.Status = update.Status
		if update.Status == model.StatusDone && e.ApprovedTime == nil {
			e.Status = model.StatusDoing
			e.PendingApproval = ptr(true)
		}
	}
	e.UpdatedBy = ptr(user)
	e.UpdateTime = ptr(now)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request, _ string) {
	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	delete(s.entries, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	enc := s.opts.Encoding
	if enc != "" && strings.Contains(r.Header.Get("Accept-Encoding"), enc) {
		compressed, err := compress(data, enc)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		data = compressed
		w.Header().Set("Content-Encoding", enc)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func compress(data []byte, encoding string) ([]byte, error) {
	var buf bytes.Buffer
	switch encoding {
	case "gzip":
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	case "br":
		bw := brotli.NewWriter(&buf)
		if _, err := bw.Write(data); err != nil {
			return nil, err
		}
		if err := bw.Close(); err != nil {
			return nil, err
		}
	case "zstd":
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
	default:
		return data, nil
	}
	return buf.Bytes(), nil
}

func problem(code, description string) map[string]any {
	return map[string]any{
		"type":   "https://tools.ietf.org/html/rfc9110#section-15.5.1",
		"title":  "One or more validation errors occurred.",
		"status": 400,
		"errors": map[string][]string{code: {description}},
	}
}

func ptr[T any](v T) *T { return &v }
