package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rpggio/cubelink/internal/domain/query"
	"github.com/rpggio/cubelink/internal/warehouse"
)

// ConnectorConfig names the server connection a SQLite warehouse is registered under.
type ConnectorConfig struct {
	ConnectionID string
	Schema       string
	Database     string
}

// Connector implements warehouse.Connector over a SQLite database.
type Connector struct {
	db     *DB
	cfg    ConnectorConfig
	logger *slog.Logger
}

// NewConnector creates a new Connector
func NewConnector(db *DB, cfg ConnectorConfig, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Connector{db: db, cfg: cfg, logger: logger}
}

var _ warehouse.Connector = (*Connector)(nil)

func (c *Connector) ConnectionID() string { return c.cfg.ConnectionID }
func (c *Connector) Schema() string       { return c.cfg.Schema }
func (c *Connector) DatabaseName() string { return c.cfg.Database }

// FixTableName upper-cases name, matching how the server reports SQLite tables.
func (c *Connector) FixTableName(name string) string { return strings.ToUpper(name) }

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func createStatement(name string, table *query.Table) string {
	cols := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		typ := "TEXT"
		if col.Numeric {
			typ = "REAL"
		}
		cols[i] = quoteIdent(col.Name) + " " + typ
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(cols, ", "))
}

func insertStatement(name string, table *query.Table) string {
	cols := make([]string, len(table.Columns))
	marks := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		cols[i] = quoteIdent(col.Name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(name), strings.Join(cols, ", "), strings.Join(marks, ", "))
}

// AddTable writes table under FixTableName(name). The table is created,
// replaced or appended to per opts; rows are inserted ChunkSize at a time,
// one transaction per chunk.
func (c *Connector) AddTable(ctx context.Context, name string, table *query.Table, opts warehouse.LoadOptions) error {
	opts, err := opts.Normalize()
	if err != nil {
		return err
	}
	if table == nil || len(table.Columns) == 0 {
		return fmt.Errorf("%w: table %s has no columns", warehouse.ErrInvalidInput, name)
	}
	name = c.FixTableName(name)

	err = c.db.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := tableExists(ctx, tx, name)
		if err != nil {
			return err
		}
		switch {
		case exists && opts.IfExists == warehouse.IfExistsFail:
			return fmt.Errorf("%w: %s", warehouse.ErrTableExists, name)
		case exists && opts.IfExists == warehouse.IfExistsAppend:
			return nil
		case exists:
			if _, err := tx.ExecContext(ctx, "DROP TABLE "+quoteIdent(name)); err != nil {
				return fmt.Errorf("failed to drop table %s: %w", name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, createStatement(name, table)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	insert := insertStatement(name, table)
	rows := table.Rows()
	chunk := *opts.ChunkSize
	for start := 0; start < len(rows); start += chunk {
		end := min(start+chunk, len(rows))
		err := c.db.inTx(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, insert)
			if err != nil {
				return fmt.Errorf("failed to prepare insert: %w", err)
			}
			defer stmt.Close()
			for _, row := range rows[start:end] {
				if _, err := stmt.ExecContext(ctx, row...); err != nil {
					return fmt.Errorf("failed to insert into %s: %w", name, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	c.logger.Info("table written", "table", name, "rows", len(rows), "mode", opts.IfExists)
	return nil
}

// SubmitQuery runs sql and returns the rows as a query table, with the same
// numeric coercion applied to server results.
func (c *Connector) SubmitQuery(ctx context.Context, statement string) (*query.Table, error) {
	c.logger.Debug("warehouse query", "sql", statement)
	rows, err := c.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("failed to run warehouse query: %w", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	var cells [][]*string
	for rows.Next() {
		raw := make([]any, len(names))
		for i := range raw {
			raw[i] = new(nullText)
		}
		if err := rows.Scan(raw...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make([]*string, len(names))
		for i, v := range raw {
			row[i] = v.(*nullText).ptr
		}
		cells = append(cells, row)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return query.NewTable(names, cells)
}

// nullText scans any column value as text, keeping NULL distinct from "".
type nullText struct{ ptr *string }

func (n *nullText) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		n.ptr = nil
		return nil
	case []byte:
		s = string(v)
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		s = strconv.FormatInt(v, 10)
	default:
		s = fmt.Sprint(v)
	}
	n.ptr = &s
	return nil
}
