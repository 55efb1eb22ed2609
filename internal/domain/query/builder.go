package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rpggio/cubelink/internal/domain/schema"
)

// Request describes a query over model features.
type Request struct {
	Features []string
	// Where is rendered first, then Filters in kind order.
	Where   []Predicate
	Filters Filters
	Limit   *int
	Comment string
}

// Target names the published project and model the query reads from.
type Target struct {
	Project string
	Model   string
}

// Build renders req in the generic dialect. Every feature named in the
// select list or a filter must exist in catalog.
func Build(catalog *schema.Catalog, target Target, req Request) (string, error) {
	predicates, err := req.Filters.Predicates()
	if err != nil {
		return "", err
	}
	predicates = append(append([]Predicate{}, req.Where...), predicates...)

	if err := catalog.ValidateFeatures(req.Features...); err != nil {
		return "", err
	}
	for _, p := range predicates {
		if err := catalog.ValidateFeatures(p.Feature()); err != nil {
			return "", err
		}
	}
	if req.Limit != nil && *req.Limit < 0 {
		return "", fmt.Errorf("%w: negative limit %d", ErrInvalidInput, *req.Limit)
	}

	var categorical, numeric []string
	for _, name := range req.Features {
		col := column(target.Model, name)
		if catalog.IsCategorical(name) {
			categorical = append(categorical, col)
		} else {
			numeric = append(numeric, col)
		}
	}

	var b strings.Builder
	b.WriteString("SELECT")
	if cols := append(categorical, numeric...); len(cols) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(cols, ", "))
	}
	fmt.Fprintf(&b, " FROM %s.%s %s", quoteIdent(target.Project), quoteIdent(target.Model), quoteIdent(target.Model))

	if len(predicates) > 0 {
		clauses := make([]string, len(predicates))
		for i, p := range predicates {
			clause, err := p.render(column(target.Model, p.Feature()))
			if err != nil {
				return "", err
			}
			clauses[i] = "(" + clause + ")"
		}
		// The server requires the GROUP BY 1 suffix on filtered queries.
		b.WriteString(" WHERE (")
		b.WriteString(strings.Join(clauses, " and "))
		b.WriteString(") GROUP BY 1")
	}
	if req.Limit != nil {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(*req.Limit))
	}
	if req.Comment != "" {
		fmt.Fprintf(&b, " /* %s */", req.Comment)
	}
	return b.String(), nil
}

func quoteIdent(name string) string {
	return "`" + name + "`"
}

func column(model, name string) string {
	return quoteIdent(model) + "." + quoteIdent(name)
}
