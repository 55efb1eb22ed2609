package schema

import (
	"context"
	"fmt"
	"log/slog"
)

// Discoverer posts schema-discovery envelopes and returns the response text.
type Discoverer interface {
	Discover(ctx context.Context, envelope []byte) ([]byte, error)
}

// Service introspects the published model.
type Service struct {
	discoverer Discoverer
	logger     *slog.Logger
}

// NewService creates a new schema service.
func NewService(discoverer Discoverer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{discoverer: discoverer, logger: logger}
}

// Refresh runs the levels, hierarchies and measures discovery queries and
// builds a new catalog. Levels are parsed first because hierarchies assign
// their folders.
func (s *Service) Refresh(ctx context.Context, projectName, modelName string) (*Catalog, error) {
	levelText, err := s.discover(ctx, levelsStatement, projectName, modelName)
	if err != nil {
		return nil, fmt.Errorf("discovering levels: %w", err)
	}
	dims, err := parseLevels(levelText)
	if err != nil {
		return nil, fmt.Errorf("parsing levels: %w", err)
	}

	hierText, err := s.discover(ctx, hierarchiesStatement, projectName, modelName)
	if err != nil {
		return nil, fmt.Errorf("discovering hierarchies: %w", err)
	}
	hierarchies, err := parseHierarchies(hierText, dims)
	if err != nil {
		return nil, fmt.Errorf("parsing hierarchies: %w", err)
	}

	measureText, err := s.discover(ctx, measuresStatement, projectName, modelName)
	if err != nil {
		return nil, fmt.Errorf("discovering measures: %w", err)
	}
	measures, err := parseMeasures(measureText)
	if err != nil {
		return nil, fmt.Errorf("parsing measures: %w", err)
	}

	catalog := NewCatalog(dims, measures, hierarchies)
	s.logger.Info("schema refreshed",
		"model", modelName,
		"levels", len(catalog.dimensions),
		"measures", len(catalog.measures),
		"hierarchies", len(catalog.hierarchies))
	return catalog, nil
}

func (s *Service) discover(ctx context.Context, statement, projectName, modelName string) ([]byte, error) {
	env, err := buildEnvelope(statement, projectName, modelName)
	if err != nil {
		return nil, err
	}
	return s.discoverer.Discover(ctx, env)
}
