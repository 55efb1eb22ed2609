// Package cube is the client handle for one model of a project on the
// analytics server. It ties the session, schema catalog, query, explain and
// project mutation services together and keeps the catalog current after
// every committed change.
//
// A Client is not safe for concurrent use.
package cube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rpggio/cubelink/internal/domain/explain"
	"github.com/rpggio/cubelink/internal/domain/project"
	"github.com/rpggio/cubelink/internal/domain/query"
	"github.com/rpggio/cubelink/internal/domain/schema"
	"github.com/rpggio/cubelink/internal/remote"
	"github.com/rpggio/cubelink/internal/warehouse"
)

// Version is reported in the comment appended to generated queries.
var Version = "dev"

const normalPublish = "normal_publish"

// Config configures a Client.
type Config struct {
	Remote  remote.Config
	ModelID string
	// QueryTimeoutMinutes defaults to 2.
	QueryTimeoutMinutes int
	// Now defaults to the wall clock.
	Now    func() time.Time
	Logger *slog.Logger
}

// Client operates on one model of one project.
type Client struct {
	remote  *remote.Client
	schema  *schema.Service
	queries *query.Service
	explain *explain.Service
	project *project.Service

	modelID      string
	modelName    string
	projectName  string
	catalog      *schema.Catalog
	warehouse    warehouse.Connector
	queryTimeout int
	logger       *slog.Logger
}

// New connects to the server and loads the model's catalog.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ModelID == "" || cfg.Remote.ProjectID == "" {
		return nil, fmt.Errorf("%w: project id and model id are required", project.ErrInvalidInput)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Remote.Logger == nil {
		cfg.Remote.Logger = logger
	}
	timeout := cfg.QueryTimeoutMinutes
	if timeout == 0 {
		timeout = query.DefaultOptions().TimeoutMinutes
	}

	rc, err := remote.New(ctx, cfg.Remote)
	if err != nil {
		return nil, err
	}
	c := &Client{
		remote:       rc,
		schema:       schema.NewService(rc, logger),
		queries:      query.NewService(rc, rc.Organization(), logger),
		modelID:      cfg.ModelID,
		queryTimeout: timeout,
		logger:       logger,
	}
	c.explain = explain.NewService(c.queries, rc, cfg.Now, logger)
	c.project = project.NewService(rc, rc, c, logger)

	if err := c.RefreshProject(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Catalog returns the catalog loaded by the last refresh.
func (c *Client) Catalog() *schema.Catalog { return c.catalog }

// ModelName returns the name of the active model.
func (c *Client) ModelName() string { return c.modelName }

// ModelID returns the id of the active model.
func (c *Client) ModelID() string { return c.modelID }

// ProjectName returns the published name of the active project.
func (c *Client) ProjectName() string { return c.projectName }

// ProjectID returns the id of the active project.
func (c *Client) ProjectID() string { return c.remote.ProjectID() }

// Refresh reloads the project and catalog. It satisfies project.Model.
func (c *Client) Refresh(ctx context.Context) error { return c.RefreshProject(ctx) }

// RefreshProject re-reads the project document, resolves the model and
// published project names and reloads the schema catalog.
func (c *Client) RefreshProject(ctx context.Context) error {
	doc, err := c.project.Document(ctx)
	if err != nil {
		return fmt.Errorf("refresh project: %w", err)
	}
	model, ok := doc.CubeByID(c.modelID)
	if !ok {
		return fmt.Errorf("refresh project: %w: model %q in project %q", schema.ErrNotFound, c.modelID, c.ProjectID())
	}

	name := doc.Name()
	published, err := c.remote.PublishedProjects(ctx)
	if err != nil {
		return fmt.Errorf("refresh project: %w", err)
	}
	if p, ok := publishedWith(published, c.modelID); ok {
		name = p.Name
	}

	catalog, err := c.schema.Refresh(ctx, name, model.Name())
	if err != nil {
		return fmt.Errorf("refresh project: %w", err)
	}
	c.catalog = catalog
	c.modelName = model.Name()
	c.projectName = name
	c.logger.Debug("project refreshed", "project", name, "model", c.modelName)
	return nil
}

func publishedWith(projects []remote.PublishedProject, modelID string) (remote.PublishedProject, bool) {
	for _, p := range projects {
		if p.PublishType != normalPublish {
			continue
		}
		for _, cb := range p.Cubes {
			if cb.ID == modelID {
				return p, true
			}
		}
	}
	return remote.PublishedProject{}, false
}

// Publish publishes the current draft and refreshes.
func (c *Client) Publish(ctx context.Context) error {
	if err := c.remote.PublishProject(ctx); err != nil {
		return err
	}
	return c.RefreshProject(ctx)
}

// ExportProject writes the project document to path, adding a .json
// extension when it is missing, and returns the path written.
func (c *Client) ExportProject(ctx context.Context, path string) (string, error) {
	if err := c.RefreshProject(ctx); err != nil {
		return "", err
	}
	raw, err := c.remote.GetProject(ctx)
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return "", fmt.Errorf("export project: %w", err)
	}
	if !strings.HasSuffix(path, ".json") {
		path += ".json"
	}
	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("export project: %w", err)
	}
	return path, nil
}

// CloneProject copies the project under name, switches the client to the
// copy and publishes it.
func (c *Client) CloneProject(ctx context.Context, name string) (project.CloneResult, error) {
	res, err := c.project.Clone(ctx, name)
	if err != nil {
		return project.CloneResult{}, err
	}
	c.remote.SetProjectID(res.ProjectID)
	c.modelID = res.ModelID
	if err := c.Publish(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// CreateProject posts a project document and returns the new project's id.
func (c *Client) CreateProject(ctx context.Context, doc []byte) (string, error) {
	return c.remote.CreateProject(ctx, doc)
}

func (c *Client) CreateSnapshot(ctx context.Context, tag string) (string, error) {
	return c.project.CreateSnapshot(ctx, tag)
}

func (c *Client) DeleteSnapshot(ctx context.Context, id string) error {
	return c.project.DeleteSnapshot(ctx, id)
}

// RestoreSnapshot replaces the draft with a snapshot and refreshes.
func (c *Client) RestoreSnapshot(ctx context.Context, id string) error {
	return c.project.RestoreSnapshot(ctx, id)
}

// ListSnapshots returns the project's snapshots, newest first.
func (c *Client) ListSnapshots(ctx context.Context) ([]remote.Snapshot, error) {
	return c.project.ListSnapshots(ctx)
}

func (c *Client) SnapshotIDs(ctx context.Context, name string) ([]string, error) {
	return c.project.SnapshotIDs(ctx, name)
}
