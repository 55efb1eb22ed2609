package query

import (
	"fmt"
	"strings"

	"github.com/rpggio/cubelink/internal/tagtext"
)

// ParseResponse reads a query execution response into a table.
func ParseResponse(body []byte) (*Table, error) {
	text := tagtext.Fragment(body)

	succeeded, ok, err := text.Lookup("succeeded")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: response has no <succeeded> flag", ErrQuery)
	}
	if strings.TrimSpace(succeeded) == "false" {
		flat := tagtext.Fragment(strings.ReplaceAll(string(body), "\n", " "))
		msg, _, _ := flat.Lookup("error-message")
		return nil, fmt.Errorf("%w: %s", ErrQuery, msg)
	}

	headers, err := text.Elements("name")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	names := make([]string, len(headers))
	for i, h := range headers {
		names[i] = h.Text
	}

	rowFrags, err := text.All("row")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	rows := make([][]*string, len(rowFrags))
	for i, frag := range rowFrags {
		cells, err := frag.Elements("column")
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrQuery, i, err)
		}
		row := make([]*string, len(cells))
		for j, cell := range cells {
			if !cell.Null {
				v := cell.Text
				row[j] = &v
			}
		}
		rows[i] = row
	}
	return NewTable(names, rows)
}
