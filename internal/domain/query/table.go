package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Column is one result column. Values hold float64 when Numeric is set,
// string otherwise; nil is a null cell.
type Column struct {
	Name    string
	Numeric bool
	Values  []any
}

// Table is a column-ordered query result.
type Table struct {
	Columns []Column
}

// NewTable builds a table from text cells in row order, coercing each column
// to numbers when every non-null cell parses as one. A nil cell is null.
func NewTable(names []string, rows [][]*string) (*Table, error) {
	t := &Table{Columns: make([]Column, len(names))}
	for i, name := range names {
		t.Columns[i] = Column{Name: name, Values: make([]any, 0, len(rows))}
	}
	for r, row := range rows {
		if len(row) != len(names) {
			return nil, fmt.Errorf("%w: row %d has %d cells for %d columns", ErrQuery, r, len(row), len(names))
		}
		for i, cell := range row {
			if cell == nil {
				t.Columns[i].Values = append(t.Columns[i].Values, nil)
				continue
			}
			t.Columns[i].Values = append(t.Columns[i].Values, *cell)
		}
	}
	for i := range t.Columns {
		coerce(&t.Columns[i])
	}
	return t, nil
}

func coerce(c *Column) {
	parsed := make([]any, len(c.Values))
	for i, v := range c.Values {
		if v == nil {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v.(string)), 64)
		if err != nil {
			return
		}
		parsed[i] = f
	}
	c.Values = parsed
	c.Numeric = true
}

func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Values)
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Row returns the cells of row i in column order.
func (t *Table) Row(i int) []any {
	out := make([]any, len(t.Columns))
	for j, c := range t.Columns {
		out[j] = c.Values[i]
	}
	return out
}

// Rows returns every row in order.
func (t *Table) Rows() [][]any {
	out := make([][]any, t.NumRows())
	for i := range out {
		out[i] = t.Row(i)
	}
	return out
}

// SortBy stably reorders rows by the named columns, nulls last.
// Names missing from the table are skipped.
func (t *Table) SortBy(names ...string) {
	var keys []Column
	for _, name := range names {
		if c, ok := t.Column(name); ok {
			keys = append(keys, c)
		}
	}
	if len(keys) == 0 {
		return
	}
	order := make([]int, t.NumRows())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		for _, k := range keys {
			if c := compareCells(k.Values[order[a]], k.Values[order[b]]); c != 0 {
				return c < 0
			}
		}
		return false
	})
	for ci := range t.Columns {
		values := make([]any, len(order))
		for i, src := range order {
			values[i] = t.Columns[ci].Values[src]
		}
		t.Columns[ci].Values = values
	}
}

func compareCells(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if fa, ok := a.(float64); ok {
		fb := b.(float64)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a.(string), b.(string))
}
