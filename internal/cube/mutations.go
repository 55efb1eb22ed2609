package cube

import (
	"context"
	"fmt"

	"github.com/rpggio/cubelink/internal/domain/calc"
	"github.com/rpggio/cubelink/internal/domain/project"
	"github.com/rpggio/cubelink/internal/domain/query"
	"github.com/rpggio/cubelink/internal/warehouse"
)

// Every mutation commits through the project service: snapshot, write,
// publish unless publish is false, then refresh this client.

func (c *Client) CreateAggregateFeature(ctx context.Context, f project.AggregateFeature, publish bool) error {
	return c.project.CreateAggregateFeature(ctx, f, publish)
}

func (c *Client) UpdateAggregateFeatureMetadata(ctx context.Context, name string, p project.MetadataPatch, publish bool) error {
	return c.project.UpdateAggregateFeatureMetadata(ctx, name, p, publish)
}

func (c *Client) CreateCalculatedFeature(ctx context.Context, f project.CalculatedFeature, publish bool) error {
	return c.project.CreateCalculatedFeature(ctx, f, publish)
}

// CreateCalculatedFeatures adds several calculated features in one commit.
func (c *Client) CreateCalculatedFeatures(ctx context.Context, features []project.CalculatedFeature, publish bool) error {
	return c.project.CreateCalculatedFeatures(ctx, features, publish)
}

func (c *Client) UpdateCalculatedFeatureMetadata(ctx context.Context, name string, p project.MetadataPatch, publish bool) error {
	return c.project.UpdateCalculatedFeatureMetadata(ctx, name, p, publish)
}

func (c *Client) CreateDenormalizedCategoricalFeature(ctx context.Context, f project.CategoricalFeature, publish bool) error {
	return c.project.CreateDenormalizedCategoricalFeature(ctx, f, publish)
}

func (c *Client) CreateSecondaryAttribute(ctx context.Context, a project.SecondaryAttribute, publish bool) error {
	return c.project.CreateSecondaryAttribute(ctx, a, publish)
}

func (c *Client) UpdateSecondaryAttributeMetadata(ctx context.Context, name string, p project.MetadataPatch, publish bool) error {
	return c.project.UpdateSecondaryAttributeMetadata(ctx, name, p, publish)
}

func (c *Client) CreateCalculatedColumn(ctx context.Context, dataset, name, expression string, publish bool) error {
	return c.project.CreateCalculatedColumn(ctx, dataset, name, expression, publish)
}

func (c *Client) CreateMappedColumns(ctx context.Context, m project.MappedColumns, publish bool) error {
	return c.project.CreateMappedColumns(ctx, m, publish)
}

func (c *Client) AddColumnMapping(ctx context.Context, dataset, column, name, dataType string, publish bool) error {
	return c.project.AddColumnMapping(ctx, dataset, column, name, dataType, publish)
}

// UpdateProjectTables reconciles dataset columns with the warehouse and
// reports whether anything changed.
func (c *Client) UpdateProjectTables(ctx context.Context, tables []string, publish bool) (bool, error) {
	return c.project.UpdateProjectTables(ctx, tables, publish)
}

// JoinTable joins a warehouse table to the model. Connection, database and
// schema default to the attached warehouse.
func (c *Client) JoinTable(ctx context.Context, j project.Join, publish bool) error {
	if conn := c.warehouse; conn != nil {
		if j.ConnectionID == "" {
			j.ConnectionID = conn.ConnectionID()
		}
		if j.Database == "" {
			j.Database = conn.DatabaseName()
		}
		if j.Schema == "" {
			j.Schema = conn.Schema()
		}
	}
	return c.project.JoinTable(ctx, j, publish)
}

// AddTable loads data into the warehouse as a new table and joins it to the
// model on the given features. Columns default to the features.
func (c *Client) AddTable(ctx context.Context, table string, data *query.Table, features, columns []string, opts warehouse.LoadOptions, publish bool) error {
	conn, err := c.requireWarehouse()
	if err != nil {
		return err
	}
	// Nothing is loaded when the join cannot be built.
	if _, err := project.CheckJoin(c.catalog, features, columns, data.Names()); err != nil {
		return fmt.Errorf("add table: %w", err)
	}
	opts.IfExists = warehouse.IfExistsFail
	if err := conn.AddTable(ctx, table, data, opts); err != nil {
		return fmt.Errorf("add table: %w", err)
	}
	return c.JoinTable(ctx, project.Join{
		Table:    conn.FixTableName(table),
		Features: features,
		Columns:  columns,
	}, publish)
}

// Derived calculated features. Each generator validates against the current
// catalog and commits its features in a single write.

func (c *Client) derive(ctx context.Context, publish bool, build func(g *calc.Generator) ([]project.CalculatedFeature, error)) ([]string, error) {
	features, err := build(calc.New(c.catalog))
	if err != nil {
		return nil, err
	}
	if err := c.project.CreateCalculatedFeatures(ctx, features, publish); err != nil {
		return nil, err
	}
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = f.Name
	}
	return names, nil
}

func one(f project.CalculatedFeature, err error) ([]project.CalculatedFeature, error) {
	if err != nil {
		return nil, err
	}
	return []project.CalculatedFeature{f}, nil
}

func (c *Client) CreateRollingFeature(ctx context.Context, fn calc.RollingFunc, name, numeric string, length int, at calc.TimeLevel, meta project.Metadata, publish bool) error {
	_, err := c.derive(ctx, publish, func(g *calc.Generator) ([]project.CalculatedFeature, error) {
		return one(g.Rolling(fn, name, numeric, length, at, meta))
	})
	return err
}

func (c *Client) CreateLagFeature(ctx context.Context, name, numeric string, length int, at calc.TimeLevel, meta project.Metadata, publish bool) error {
	_, err := c.derive(ctx, publish, func(g *calc.Generator) ([]project.CalculatedFeature, error) {
		return one(g.Lag(name, numeric, length, at, meta))
	})
	return err
}

func (c *Client) CreateTimeDifferencing(ctx context.Context, name, numeric string, length int, at calc.TimeLevel, meta project.Metadata, publish bool) error {
	_, err := c.derive(ctx, publish, func(g *calc.Generator) ([]project.CalculatedFeature, error) {
		return one(g.Diff(name, numeric, length, at, meta))
	})
	return err
}

func (c *Client) CreatePercentChange(ctx context.Context, name, numeric string, length int, at calc.TimeLevel, meta project.Metadata, publish bool) error {
	_, err := c.derive(ctx, publish, func(g *calc.Generator) ([]project.CalculatedFeature, error) {
		return one(g.PercentChange(name, numeric, length, at, meta))
	})
	return err
}

func (c *Client) CreatePeriodToDate(ctx context.Context, name, numeric string, at calc.TimeLevel, meta project.Metadata, publish bool) error {
	_, err := c.derive(ctx, publish, func(g *calc.Generator) ([]project.CalculatedFeature, error) {
		return one(g.PeriodToDate(name, numeric, at, meta))
	})
	return err
}

// CreatePeriodsToDate returns the names of the created features.
func (c *Client) CreatePeriodsToDate(ctx context.Context, numeric, hierarchy string, meta project.Metadata, publish bool) ([]string, error) {
	return c.derive(ctx, publish, func(g *calc.Generator) ([]project.CalculatedFeature, error) {
		return g.PeriodsToDate(numeric, hierarchy, meta)
	})
}

// CreatePercentages returns the names of the created features.
func (c *Client) CreatePercentages(ctx context.Context, numeric, hierarchy string, meta project.Metadata, publish bool) ([]string, error) {
	return c.derive(ctx, publish, func(g *calc.Generator) ([]project.CalculatedFeature, error) {
		return g.Percentages(numeric, hierarchy, meta)
	})
}

// CreateRollingStats returns the names of the created features.
func (c *Client) CreateRollingStats(ctx context.Context, numerics []string, at calc.TimeLevel, intervals []int, meta project.Metadata, publish bool) ([]string, error) {
	return c.derive(ctx, publish, func(g *calc.Generator) ([]project.CalculatedFeature, error) {
		return g.RollingStats(numerics, at, intervals, meta)
	})
}

// CreateScaledFeature commits a single feature from one of the scaling or
// transform generators, for example:
//
//	c.CreateScaledFeature(ctx, true, func(g *calc.Generator) (project.CalculatedFeature, error) {
//		return g.StandardScaled("sales_z", "sales", mean, stddev, meta)
//	})
func (c *Client) CreateScaledFeature(ctx context.Context, publish bool, build func(g *calc.Generator) (project.CalculatedFeature, error)) error {
	_, err := c.derive(ctx, publish, func(g *calc.Generator) ([]project.CalculatedFeature, error) {
		return one(build(g))
	})
	return err
}
