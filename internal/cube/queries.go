package cube

import (
	"context"
	"fmt"
	"slices"

	"github.com/rpggio/cubelink/internal/domain/query"
	"github.com/rpggio/cubelink/internal/domain/schema"
	"github.com/rpggio/cubelink/internal/warehouse"
)

func (c *Client) target() query.Target {
	return query.Target{Project: c.projectName, Model: c.modelName}
}

func (c *Client) options() query.Options {
	opts := query.DefaultOptions()
	opts.TimeoutMinutes = c.queryTimeout
	return opts
}

// DefaultQueryOptions returns the execution flags CustomQuery uses when given none.
func (c *Client) DefaultQueryOptions() query.Options { return c.options() }

// GenerateQuery renders req without executing it.
func (c *Client) GenerateQuery(req query.Request) (string, error) {
	return query.Build(c.catalog, c.target(), req)
}

func (c *Client) versioned(req query.Request) query.Request {
	if req.Comment == "" {
		req.Comment = "cubelink version: " + Version
	}
	return req
}

// GetData queries the model through the semantic layer. Rows are sorted by
// the requested categorical features.
func (c *Client) GetData(ctx context.Context, req query.Request) (*query.Table, error) {
	text, err := c.GenerateQuery(c.versioned(req))
	if err != nil {
		return nil, err
	}
	table, err := c.queries.Execute(ctx, c.projectName, text, c.options())
	if err != nil {
		return nil, err
	}
	table.SortBy(c.categorical(req.Features)...)
	return table, nil
}

func (c *Client) categorical(features []string) []string {
	return slices.DeleteFunc(slices.Clone(features), func(f string) bool { return !c.catalog.IsCategorical(f) })
}

// CustomQuery executes text as given against the active project.
func (c *Client) CustomQuery(ctx context.Context, text string, opts query.Options) (*query.Table, error) {
	return c.queries.Execute(ctx, c.projectName, text, opts)
}

// Explain returns the warehouse SQL the server generates for text.
func (c *Client) Explain(ctx context.Context, text string) (string, error) {
	return c.explain.Explain(ctx, c.projectName, text)
}

// GetDataDirect builds the query, recovers its native SQL and runs that
// directly on the warehouse.
func (c *Client) GetDataDirect(ctx context.Context, req query.Request) (*query.Table, error) {
	conn, err := c.requireWarehouse()
	if err != nil {
		return nil, err
	}
	text, err := c.GenerateQuery(c.versioned(req))
	if err != nil {
		return nil, err
	}
	native, err := c.Explain(ctx, text)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("running native query", "connection", conn.ConnectionID())
	table, err := conn.SubmitQuery(ctx, native)
	if err != nil {
		return nil, err
	}
	table.SortBy(c.categorical(req.Features)...)
	return table, nil
}

// Warehouse returns the attached connector, nil when none is set.
func (c *Client) Warehouse() warehouse.Connector { return c.warehouse }

// SetWarehouse attaches a connector after checking that the server knows its connection id.
func (c *Client) SetWarehouse(ctx context.Context, conn warehouse.Connector) error {
	ids, err := c.remote.ConnectionIDs(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(ids, conn.ConnectionID()) {
		return fmt.Errorf("%w: connection %q is not a connection group of the organization, known: %v",
			warehouse.ErrInvalidInput, conn.ConnectionID(), ids)
	}
	c.warehouse = conn
	return nil
}

func (c *Client) requireWarehouse() (warehouse.Connector, error) {
	if c.warehouse == nil {
		return nil, ErrNoWarehouse
	}
	return c.warehouse, nil
}

// SubmitWarehouseQuery runs SQL on the attached warehouse.
func (c *Client) SubmitWarehouseQuery(ctx context.Context, sql string) (*query.Table, error) {
	conn, err := c.requireWarehouse()
	if err != nil {
		return nil, err
	}
	return conn.SubmitQuery(ctx, sql)
}

// WriteTable loads table into the attached warehouse.
func (c *Client) WriteTable(ctx context.Context, name string, table *query.Table, opts warehouse.LoadOptions) error {
	conn, err := c.requireWarehouse()
	if err != nil {
		return err
	}
	return conn.AddTable(ctx, name, table, opts)
}

// Lookups over the current catalog.

func (c *Client) ListCategorical(folder string) []string { return c.catalog.ListCategorical(folder) }
func (c *Client) ListNumeric(folder string) []string     { return c.catalog.ListNumeric(folder) }
func (c *Client) ListAggregate(folder string) []string   { return c.catalog.ListAggregate(folder) }
func (c *Client) ListCalculated(folder string) []string  { return c.catalog.ListCalculated(folder) }
func (c *Client) ListFeatures(folder string) []string    { return c.catalog.ListFeatures(folder) }
func (c *Client) ListHierarchies(folder string) []string { return c.catalog.ListHierarchies(folder) }
func (c *Client) ListFolders() []string                  { return c.catalog.ListFolders() }
func (c *Client) ListLevels(hierarchy string) ([]string, error) {
	return c.catalog.ListLevels(hierarchy)
}

func (c *Client) Describe(feature string) (schema.FeatureInfo, error) {
	return c.catalog.Describe(feature)
}

func (c *Client) FeatureDescription(feature string) (string, error) {
	return c.catalog.FeatureDescription(feature)
}

func (c *Client) HierarchyDescription(hierarchy string) (string, error) {
	return c.catalog.HierarchyDescription(hierarchy)
}

func (c *Client) HierarchyDimension(hierarchy string) (string, error) {
	return c.catalog.HierarchyDimension(hierarchy)
}

func (c *Client) LevelType(hierarchy, level string) (schema.LevelType, error) {
	return c.catalog.LevelType(hierarchy, level)
}

func (c *Client) CheckTimeHierarchy(hierarchy, level string) error {
	return c.catalog.CheckTimeHierarchy(hierarchy, level)
}
