package mcp_test

import (
	"encoding/json"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/cubelink/internal/cube"
	"github.com/rpggio/cubelink/internal/mcp"
	"github.com/rpggio/cubelink/internal/remote"
	"github.com/rpggio/cubelink/internal/testserver"
	"github.com/stretchr/testify/require"
)

func newCube(t *testing.T) (*cube.Client, *testserver.TestServer) {
	t.Helper()
	ts := testserver.New(t)
	c, err := cube.New(t.Context(), cube.Config{
		Remote: remote.Config{
			BaseURL:      ts.URL(),
			Organization: ts.Org,
			ProjectID:    testserver.SalesProjectID,
			Username:     ts.Username,
			Password:     ts.Password,
		},
		ModelID: testserver.SalesModelID,
	})
	require.NoError(t, err)
	return c, ts
}

func connect(t *testing.T, server *sdkmcp.Server) *sdkmcp.ClientSession {
	t.Helper()
	serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := server.Connect(t.Context(), serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(t.Context(), clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func newSession(t *testing.T) (*sdkmcp.ClientSession, *testserver.TestServer) {
	t.Helper()
	c, ts := newCube(t)
	return connect(t, mcp.NewServer(mcp.Config{Cube: c, Version: "test"})), ts
}

func call(t *testing.T, session *sdkmcp.ClientSession, name string, args map[string]any) *sdkmcp.CallToolResult {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	result, err := session.CallTool(t.Context(), &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err, "CallTool %s failed", name)
	return result
}

func text(t *testing.T, result *sdkmcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	content, ok := result.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok, "expected text content")
	return content.Text
}

func decode[T any](t *testing.T, result *sdkmcp.CallToolResult) T {
	t.Helper()
	require.False(t, result.IsError, text(t, result))
	var out T
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &out))
	return out
}

func toolError(t *testing.T, result *sdkmcp.CallToolResult) string {
	t.Helper()
	require.True(t, result.IsError, "expected an error result")
	return text(t, result)
}

type names struct {
	Names []string `json:"names"`
}

func TestListTools(t *testing.T) {
	session, _ := newSession(t)

	res, err := session.ListTools(t.Context(), nil)
	require.NoError(t, err)
	got := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		got = append(got, tool.Name)
	}
	require.ElementsMatch(t, []string{
		"list_features", "list_hierarchies", "list_hierarchy_levels", "describe_feature", "list_folders",
		"generate_query", "get_data", "custom_query", "explain_query",
		"create_calculated_feature", "create_aggregate_feature", "list_snapshots", "refresh_project",
	}, got)
}

func TestListFeaturesByKind(t *testing.T) {
	session, _ := newSession(t)

	categorical := decode[names](t, call(t, session, "list_features", map[string]any{"kind": "categorical"}))
	require.Contains(t, categorical.Names, "Country")
	require.NotContains(t, categorical.Names, "sales")

	numeric := decode[names](t, call(t, session, "list_features", map[string]any{"kind": "numeric"}))
	require.Contains(t, numeric.Names, "sales")
	require.NotContains(t, numeric.Names, "hidden_cost")

	all := decode[names](t, call(t, session, "list_features", nil))
	require.Subset(t, all.Names, append(categorical.Names, numeric.Names...))

	msg := toolError(t, call(t, session, "list_features", map[string]any{"kind": "boolean"}))
	require.Contains(t, msg, "INVALID_ARGUMENT")
}

func TestListHierarchyLevels(t *testing.T) {
	session, _ := newSession(t)

	levels := decode[names](t, call(t, session, "list_hierarchy_levels", map[string]any{"hierarchy": "Calendar"}))
	require.Equal(t, []string{"Year", "Month", "Day"}, levels.Names)

	msg := toolError(t, call(t, session, "list_hierarchy_levels", map[string]any{"hierarchy": "Fiscal"}))
	require.Contains(t, msg, "UNKNOWN_HIERARCHY")
}

func TestDescribeFeature(t *testing.T) {
	session, _ := newSession(t)

	info := decode[struct {
		Name        string `json:"name"`
		Kind        string `json:"kind"`
		Description string `json:"description"`
		Folder      string `json:"folder"`
	}](t, call(t, session, "describe_feature", map[string]any{"feature": "sales"}))
	require.Equal(t, "sales", info.Name)
	require.Equal(t, "numeric", info.Kind)
	require.Equal(t, "Gross sales", info.Description)
	require.Equal(t, "Revenue", info.Folder)

	msg := toolError(t, call(t, session, "describe_feature", map[string]any{"feature": "margin"}))
	require.Contains(t, msg, "UNKNOWN_FEATURE")
	require.Contains(t, msg, "list_features")
}

func TestGenerateQueryWithFilters(t *testing.T) {
	session, ts := newSession(t)

	out := decode[struct {
		Query string `json:"query"`
	}](t, call(t, session, "generate_query", map[string]any{
		"features": []string{"Country", "sales"},
		"filters":  map[string]any{"equals": map[string]any{"Country": "US"}},
	}))
	require.Contains(t, out.Query, "= 'US'")
	require.Contains(t, out.Query, "GROUP BY 1")
	require.Empty(t, ts.Submitted())
}

func TestGetData(t *testing.T) {
	session, ts := newSession(t)
	ts.Respond = func(string, string) string {
		return testserver.QueryResult([]string{"Country", "sales"}, [][]string{{"US", "3"}, {"CA", "5"}})
	}

	table := decode[struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}](t, call(t, session, "get_data", map[string]any{"features": []string{"sales", "Country"}}))
	require.Equal(t, []string{"Country", "sales"}, table.Columns)
	require.Equal(t, [][]any{{"CA", 5.0}, {"US", 3.0}}, table.Rows)
	require.Len(t, ts.Submitted(), 1)

	msg := toolError(t, call(t, session, "get_data", map[string]any{"features": []string{"margin"}}))
	require.Contains(t, msg, "UNKNOWN_FEATURE")
	require.Len(t, ts.Submitted(), 1)
}

func TestCustomQueryFailure(t *testing.T) {
	session, ts := newSession(t)
	ts.Respond = func(string, string) string { return testserver.QueryFailure("syntax error") }

	msg := toolError(t, call(t, session, "custom_query", map[string]any{"query": "SELEC 1"}))
	require.Contains(t, msg, "QUERY_FAILED")
	require.Contains(t, msg, "syntax error")
}

func TestCreateCalculatedFeature(t *testing.T) {
	session, ts := newSession(t)

	created := decode[struct {
		Name      string `json:"name"`
		Published bool   `json:"published"`
	}](t, call(t, session, "create_calculated_feature", map[string]any{
		"name":       "sales_x2",
		"expression": "[Measures].[sales]*2",
		"folder":     "Derived",
	}))
	require.Equal(t, "sales_x2", created.Name)
	require.True(t, created.Published)
	require.Contains(t, string(ts.Project(testserver.SalesProjectID)), `"sales_x2"`)
	require.Equal(t, 2, ts.PublishCount(testserver.SalesProjectID))

	msg := toolError(t, call(t, session, "create_calculated_feature", map[string]any{
		"name":       "sales",
		"expression": "1",
	}))
	require.Contains(t, msg, "DUPLICATE_FEATURE")
}

func TestCreateAggregateFeatureStaged(t *testing.T) {
	session, ts := newSession(t)

	created := decode[struct {
		Published bool `json:"published"`
	}](t, call(t, session, "create_aggregate_feature", map[string]any{
		"dataset":     "sales_fact",
		"column":      "amount",
		"name":        "total_amount",
		"aggregation": "SUM",
		"publish":     false,
	}))
	require.False(t, created.Published)
	require.Equal(t, 1, ts.PublishCount(testserver.SalesProjectID))

	msg := toolError(t, call(t, session, "create_aggregate_feature", map[string]any{
		"dataset":     "orders",
		"column":      "amount",
		"name":        "order_amount",
		"aggregation": "SUM",
	}))
	require.Contains(t, msg, "UNKNOWN_DATASET")
}

func TestListSnapshotsAfterCommit(t *testing.T) {
	session, _ := newSession(t)

	call(t, session, "create_calculated_feature", map[string]any{"name": "sales_x2", "expression": "[Measures].[sales]*2"})
	out := decode[struct {
		Snapshots []remote.Snapshot `json:"snapshots"`
	}](t, call(t, session, "list_snapshots", nil))
	require.NotNil(t, out.Snapshots)
	require.Empty(t, out.Snapshots)
}

func TestRefreshProjectReportsRejectedToken(t *testing.T) {
	session, ts := newSession(t)
	ts.FailNext("GET", "/api/1.0/org/org/project/"+testserver.SalesProjectID, 401, 401)

	msg := toolError(t, call(t, session, "refresh_project", nil))
	require.Contains(t, msg, "AUTHENTICATION_FAILED")
}

func TestDocsResource(t *testing.T) {
	session, _ := newSession(t)

	list, err := session.ListResources(t.Context(), nil)
	require.NoError(t, err)
	uris := map[string]*sdkmcp.Resource{}
	for _, r := range list.Resources {
		uris[r.URI] = r
	}
	doc, ok := uris["cubelink://docs/queries"]
	require.True(t, ok)
	require.Equal(t, "text/markdown", doc.MIMEType)
	require.Positive(t, doc.Size)

	read, err := session.ReadResource(t.Context(), &sdkmcp.ReadResourceParams{URI: "cubelink://docs/queries"})
	require.NoError(t, err)
	require.Len(t, read.Contents, 1)
	require.Contains(t, read.Contents[0].Text, "# Feature queries")
	require.Contains(t, read.Contents[0].Text, "GROUP BY 1")
}
