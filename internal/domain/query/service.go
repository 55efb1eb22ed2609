package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rpggio/cubelink/internal/remote"
)

// Submitter posts an execution envelope and returns the raw response body.
type Submitter interface {
	SubmitQuery(ctx context.Context, envelope []byte) ([]byte, error)
}

// Language is the dialect of a submitted query.
type Language string

const (
	LanguageSQL Language = "SQL"
	LanguageMDX Language = "MDX"
)

// Options are the execution flags forwarded to the server.
type Options struct {
	Language          Language
	UseAggregates     bool
	GenAggregates     bool
	FakeResults       bool
	DryRun            bool
	UseLocalCache     bool
	UseAggregateCache bool
	TimeoutMinutes    int
}

// DefaultOptions returns the flags used when the caller sets none.
func DefaultOptions() Options {
	return Options{
		Language:          LanguageSQL,
		UseAggregates:     true,
		UseLocalCache:     true,
		UseAggregateCache: true,
		TimeoutMinutes:    2,
	}
}

type idRef struct {
	ID string `json:"id"`
}

type nameRef struct {
	Name string `json:"name"`
}

type executionEnvelope struct {
	Language string `json:"language"`
	Query    string `json:"query"`
	Context  struct {
		Organization idRef   `json:"organization"`
		Environment  idRef   `json:"environment"`
		Project      nameRef `json:"project"`
	} `json:"context"`
	Aggregation struct {
		UseAggregates bool `json:"useAggregates"`
		GenAggregates bool `json:"genAggregates"`
	} `json:"aggregation"`
	FakeResults       bool   `json:"fakeResults"`
	DryRun            bool   `json:"dryRun"`
	UseLocalCache     bool   `json:"useLocalCache"`
	UseAggregateCache bool   `json:"useAggregateCache"`
	Timeout           string `json:"timeout"`
}

// Service executes queries against the published model.
type Service struct {
	submitter    Submitter
	organization string
	logger       *slog.Logger
}

// NewService creates a new query service for an organization.
func NewService(submitter Submitter, organization string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{submitter: submitter, organization: organization, logger: logger}
}

// Envelope renders the execution request for text. The language is
// matched case-insensitively.
func (s *Service) Envelope(project, text string, opts Options) ([]byte, error) {
	lang := Language(strings.ToUpper(string(opts.Language)))
	if lang == "" {
		lang = LanguageSQL
	}
	if lang != LanguageSQL && lang != LanguageMDX {
		return nil, fmt.Errorf("%w: language %q, valid options are SQL and MDX", ErrInvalidInput, opts.Language)
	}
	if opts.TimeoutMinutes <= 0 {
		return nil, fmt.Errorf("%w: timeout must be a positive number of minutes, got %d", ErrInvalidInput, opts.TimeoutMinutes)
	}

	env := executionEnvelope{
		Language:          string(lang),
		Query:             text,
		FakeResults:       opts.FakeResults,
		DryRun:            opts.DryRun,
		UseLocalCache:     opts.UseLocalCache,
		UseAggregateCache: opts.UseAggregateCache,
		Timeout:           fmt.Sprintf("%d.minutes", opts.TimeoutMinutes),
	}
	env.Context.Organization.ID = s.organization
	env.Context.Environment.ID = s.organization
	env.Context.Project.Name = project
	env.Aggregation.UseAggregates = opts.UseAggregates
	env.Aggregation.GenAggregates = opts.GenAggregates
	return json.Marshal(env)
}

// Execute submits text against project and parses the result table.
func (s *Service) Execute(ctx context.Context, project, text string, opts Options) (*Table, error) {
	env, err := s.Envelope(project, text, opts)
	if err != nil {
		return nil, err
	}
	body, err := s.submitter.SubmitQuery(ctx, env)
	if err != nil {
		var status *remote.StatusError
		if errors.As(err, &status) {
			return nil, fmt.Errorf("%w: %w", ErrQuery, err)
		}
		return nil, fmt.Errorf("submitting query: %w", err)
	}
	table, err := ParseResponse(body)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("query executed", "project", project, "rows", table.NumRows(), "columns", len(table.Columns))
	return table, nil
}
