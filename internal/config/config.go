/*
PURPOSE:
  Defines the configuration structure and loading logic for the ToDo prober.
  Lifts the target URL, credentials and probe parameters out of the code.

REQUIREMENTS:
  User-specified:
  - Recognised options: base URL, burst limit, cooldown window, passes, credentials.

  Implementation-discovered:
  - Needs to support YAML parsing.
  - Needs environment overrides (TODOPROBE_...) so credentials stay out of files.
  - Files are checked against an embedded JSON schema before decoding.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli, internal/engine
  - Dependencies: gopkg.in/yaml.v3, github.com/santhosh-tekuri/jsonschema/v6

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - A missing default file is not an error; defaults apply.

IMPLEMENTATION RULES:
  - Config struct tags should support yaml.
  - Defaults match the public deployment (30 requests / 60s / 5 passes).

USAGE:
  cfg, err := config.Load("todo_prober.yaml")

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config, DefaultConfig and config.schema.json.

RELATED FILES:
  - internal/config/config.schema.json
  - internal/cli/root.go

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daryltucker/todo-prober/internal/model"
)

// Environment variables that override file values.
const (
	EnvBaseURL  = "TODOPROBE_BASE_URL"
	EnvEmail    = "TODOPROBE_EMAIL"
	EnvPassword = "TODOPROBE_PASSWORD"
)

// DefaultFiles are searched in order when no path is given.
var DefaultFiles = []string{"todo_prober.yaml", "prober.yaml"}

// Config represents the full configuration for a probe run.
type Config struct {
	BaseURL        string                `yaml:"base_url"`
	Credentials    model.Credentials     `yaml:"credentials"`
	Entry          EntryTemplate         `yaml:"entry"`
	RateLimit      model.RateLimitWindow `yaml:"rate_limit"`
	RequestTimeout time.Duration         `yaml:"request_timeout"`

	// AcceptEncoding is sent verbatim; empty disables compression negotiation.
	AcceptEncoding string     `yaml:"accept_encoding"`
	Assertions     Assertions `yaml:"assertions"`
}

// EntryTemplate is the payload of the entry created by the CRUD scenario.
type EntryTemplate struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// Assertions are expr-lang predicates evaluated against fetched entries.
type Assertions struct {
	Updated   string `yaml:"updated"`
	Confirmed string `yaml:"confirmed"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://danmanthenomad.com/ToDo-API-Server",
		Credentials: model.Credentials{
			Email:    "string@email.com",
			Password: "stringPass123!",
		},
		Entry: EntryTemplate{
			Title:       "ToDoEntry Test Object",
			Description: "This is a test ToDoEntry for python tester",
		},
		RateLimit: model.RateLimitWindow{
			Limit:         30,
			WindowSeconds: 60,
			Passes:        5,
		},
		RequestTimeout: 30 * time.Second,
		AcceptEncoding: "gzip, br, zstd",
		Assertions: Assertions{
			// The server parks an unapproved "done" entry as doing + pending approval.
			Updated:   "entry.status == 2 || entry.pendingApproval == true",
			Confirmed: "entry.approvedTime != nil || entry.pendingApproval == false",
		},
	}
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches DefaultFiles in order.
// If no file found, returns default config.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		found := false
		for _, name := range DefaultFiles {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				found = true
				break
			}
		}
		if !found {
			cfg.ApplyEnv()
			return cfg, nil
		}
	}

	if err := ValidateYAML(data); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from TODOPROBE_* variables when set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvEmail); v != "" {
		c.Credentials.Email = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.Credentials.Password = v
	}
}

// Validate checks the semantic bounds the schema cannot express, including
// values that arrived through flags or the environment.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.BaseURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("base_url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("base_url: scheme must be http or https, got %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, errors.New("base_url: missing host"))
	}

	if c.Credentials.Email == "" || c.Credentials.Password == "" {
		errs = append(errs, errors.New("credentials: email and password are required"))
	}
	if c.RateLimit.Limit < 1 {
		errs = append(errs, fmt.Errorf("rate_limit.limit must be positive, got %d", c.RateLimit.Limit))
	}
	if c.RateLimit.WindowSeconds < 1 {
		errs = append(errs, fmt.Errorf("rate_limit.window_seconds must be positive, got %d", c.RateLimit.WindowSeconds))
	}
	if c.RateLimit.Passes < 1 {
		errs = append(errs, fmt.Errorf("rate_limit.passes must be positive, got %d", c.RateLimit.Passes))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}

	return errors.Join(errs...)
}
