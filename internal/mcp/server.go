package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/cubelink/internal/domain/project"
	"github.com/rpggio/cubelink/internal/domain/query"
	"github.com/rpggio/cubelink/internal/domain/schema"
	"github.com/rpggio/cubelink/internal/remote"
)

// Cube defines the client operations exposed as tools.
type Cube interface {
	ListFeatures(folder string) []string
	ListCategorical(folder string) []string
	ListNumeric(folder string) []string
	ListHierarchies(folder string) []string
	ListLevels(hierarchy string) ([]string, error)
	ListFolders() []string
	Describe(feature string) (schema.FeatureInfo, error)

	GenerateQuery(req query.Request) (string, error)
	GetData(ctx context.Context, req query.Request) (*query.Table, error)
	DefaultQueryOptions() query.Options
	CustomQuery(ctx context.Context, text string, opts query.Options) (*query.Table, error)
	Explain(ctx context.Context, text string) (string, error)

	CreateCalculatedFeature(ctx context.Context, f project.CalculatedFeature, publish bool) error
	CreateAggregateFeature(ctx context.Context, f project.AggregateFeature, publish bool) error
	ListSnapshots(ctx context.Context) ([]remote.Snapshot, error)
	RefreshProject(ctx context.Context) error
}

// Config contains server configuration.
type Config struct {
	Cube    Cube
	Version string
	// Metrics records tool calls when set.
	Metrics *Metrics
	Logger  *slog.Logger
}

// NewServer creates and configures an MCP server with all tools, docs and traffic logging.
func NewServer(cfg Config) *sdkmcp.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "cubelink",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       logger,
	})

	registerDocResources(server)

	server.AddReceivingMiddleware(trafficLoggingMiddleware(logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(logger, "outbound"))
	if cfg.Metrics != nil {
		server.AddReceivingMiddleware(cfg.Metrics.middleware())
	}

	registerTools(server, &handler{cube: cfg.Cube})

	return server
}
