package mcp

import (
	"github.com/rpggio/cubelink/internal/domain/query"
	"github.com/rpggio/cubelink/internal/domain/schema"
	"github.com/rpggio/cubelink/internal/remote"
)

// Feature kinds accepted by list_features.
const (
	kindAll         = "all"
	kindCategorical = "categorical"
	kindNumeric     = "numeric"
)

type ListFeaturesParams struct {
	Folder string `json:"folder,omitempty" jsonschema:"only features in this folder"`
	Kind   string `json:"kind,omitempty" jsonschema:"all (default), categorical or numeric"`
}

type ListHierarchiesParams struct {
	Folder string `json:"folder,omitempty" jsonschema:"only hierarchies in this folder"`
}

type ListHierarchyLevelsParams struct {
	Hierarchy string `json:"hierarchy" jsonschema:"hierarchy name"`
}

type DescribeFeatureParams struct {
	Feature string `json:"feature" jsonschema:"feature name"`
}

type QueryParams struct {
	Features []string      `json:"features" jsonschema:"categorical and numeric features to select"`
	Filters  query.Filters `json:"filters,omitempty" jsonschema:"filters by kind, see cubelink://docs/queries"`
	Limit    *int          `json:"limit,omitempty" jsonschema:"maximum number of rows"`
}

func (p QueryParams) request() query.Request {
	return query.Request{Features: p.Features, Filters: p.Filters, Limit: p.Limit}
}

type CustomQueryParams struct {
	Query    string `json:"query" jsonschema:"query text"`
	Language string `json:"language,omitempty" jsonschema:"SQL (default) or MDX"`
}

type ExplainQueryParams struct {
	Query string `json:"query" jsonschema:"query text, typically from generate_query"`
}

type MetadataParams struct {
	Description string `json:"description,omitempty"`
	Caption     string `json:"caption,omitempty"`
	Folder      string `json:"folder,omitempty"`
	Format      string `json:"format,omitempty" jsonschema:"named format or format string"`
}

type CreateCalculatedFeatureParams struct {
	Name       string `json:"name" jsonschema:"new feature name"`
	Expression string `json:"expression" jsonschema:"MDX expression"`
	MetadataParams
	// Publish defaults to true.
	Publish *bool `json:"publish,omitempty" jsonschema:"publish after writing, default true"`
}

type CreateAggregateFeatureParams struct {
	Dataset     string `json:"dataset" jsonschema:"dataset holding the column"`
	Column      string `json:"column" jsonschema:"column to aggregate"`
	Name        string `json:"name" jsonschema:"new feature name"`
	Aggregation string `json:"aggregation" jsonschema:"SUM, AVG, MAX, MIN, DC, DCE, NDC, STDDEV_SAMP, STDDEV_POP, VAR_SAMP or VAR_POP"`
	MetadataParams
	Publish *bool `json:"publish,omitempty" jsonschema:"publish after writing, default true"`
}

type NoParams struct{}

type NamesResult struct {
	Names []string `json:"names"`
}

type FeatureResult struct {
	schema.FeatureInfo
}

type QueryTextResult struct {
	Query string `json:"query"`
}

// TableResult is a query result in row order.
type TableResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func tableResult(t *query.Table) TableResult {
	return TableResult{Columns: t.Names(), Rows: t.Rows()}
}

type CreatedResult struct {
	Name      string `json:"name"`
	Published bool   `json:"published"`
}

type SnapshotsResult struct {
	Snapshots []remote.Snapshot `json:"snapshots"`
}
