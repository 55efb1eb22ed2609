package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `cubelink exposes one model of a project on a semantic-layer analytics server.

Core concepts:
- Feature: a categorical feature (a hierarchy level) or a numeric feature (a measure).
- Numeric features are aggregate (a column rolled up with SUM, AVG, ...) or calculated (an MDX expression).
- Hierarchy: ordered levels from the top down. Time hierarchies drive rolling and period features.
- Folder: a display grouping of features and hierarchies.

Default workflow:
1) Orient: list_features, list_hierarchies, list_hierarchy_levels, describe_feature.
2) Query: generate_query to inspect the SQL, get_data to run it. Use custom_query for hand-written SQL or MDX.
3) Inspect execution: explain_query returns the warehouse SQL the server produced.
4) Change the model: create_calculated_feature, create_aggregate_feature. Every change is snapshotted
   first and rolled back when writing or publishing fails. list_snapshots shows what is kept.

Docs:
- cubelink://docs/queries (feature queries and filter conventions)
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "cubelink://docs/queries",
		Name:        "docs_queries",
		Title:       "Feature queries and filters",
		Description: "How get_data and generate_query build SQL from features and filters.",
		Content: `# Feature queries

A query selects features by name. Categorical features come first in the
select list, then numeric features, each in the order given. Rows returned by
get_data are sorted by the categorical features, nulls last.

    SELECT ` + "`Sales`.`Country`, `Sales`.`sales`" + `
    FROM ` + "`Sales Project`.`Sales` `Sales`" + `

## Filters

Filters are grouped by kind. Kinds are applied in this order, features sorted
by name inside each kind. Clauses are joined with and inside one outer group,
as in WHERE ((a) and (b)):

| kind | example | renders |
|---|---|---|
| equals | {"Country": "US"} | Country = 'US' |
| greater | {"sales": 100} | sales > 100 |
| less | {"sales": 100} | sales < 100 |
| greater_or_equal | {"sales": 100} | sales >= 100 |
| less_or_equal | {"sales": 100} | sales <= 100 |
| not_equal | {"Country": "US"} | Country <> 'US' |
| like | {"City": "San%"} | City LIKE 'San%' |
| rlike | {"City": "^S"} | City RLIKE '^S' |
| in | {"Country": ["US", "CA"]} | Country IN ('US', 'CA') |
| between | {"sales": [10, 20]} | sales BETWEEN 10 and 20 |
| null | ["City"] | City IS NULL |
| not_null | ["City"] | City IS NOT NULL |

Numbers and booleans are written bare, everything else is quoted with single
quotes doubled. rlike patterns are always quoted. in and between quote all
values the way they quote the first one. A filtered query ends in GROUP BY 1.

## Errors

Every feature named in the select list or a filter must exist. Unknown names
fail with UNKNOWN_FEATURE before anything is sent to the server. An empty in
list, a between without exactly two bounds or a negative limit fail with
INVALID_ARGUMENT.

## explain_query

explain_query runs a one-row probe of the query and reads the server's query
history for the SQL it sent to the warehouse. The probe may not be listed yet
right after it ran; NATIVE_QUERY_NOT_FOUND means retry.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
