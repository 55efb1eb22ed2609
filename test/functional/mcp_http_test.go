package functional_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/cubelink/internal/cube"
	"github.com/rpggio/cubelink/internal/mcp"
	"github.com/rpggio/cubelink/internal/remote"
	"github.com/rpggio/cubelink/internal/testserver"
	"github.com/rpggio/cubelink/internal/transport"
	"github.com/stretchr/testify/require"
)

const bearer = "functional-token"

type bearerTransport struct {
	token string
}

func (b bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+b.token)
	return http.DefaultTransport.RoundTrip(r)
}

// newHTTPServer serves the MCP server for the Sales model over streamable HTTP.
func newHTTPServer(t *testing.T) (*httptest.Server, *testserver.TestServer) {
	t.Helper()
	ts := testserver.New(t)
	client, err := cube.New(t.Context(), cube.Config{
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

	server := mcp.NewServer(mcp.Config{Cube: client})
	handler := sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server { return server }, nil)
	httpServer := httptest.NewServer(transport.NewRouter(transport.Config{MCP: handler, Token: bearer}))
	t.Cleanup(httpServer.Close)
	return httpServer, ts
}

func connectHTTP(t *testing.T, url, token string) (*sdkmcp.ClientSession, error) {
	t.Helper()
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(t.Context(), &sdkmcp.StreamableClientTransport{
		Endpoint:   url + "/mcp",
		HTTPClient: &http.Client{Transport: bearerTransport{token: token}},
	}, nil)
	if err != nil {
		return nil, err
	}
	t.Cleanup(func() { session.Close() })
	return session, nil
}

func TestHTTPFunctional_QueryWorkflow(t *testing.T) {
	httpServer, ts := newHTTPServer(t)
	ts.Respond = func(string, string) string {
		return testserver.QueryResult([]string{"Country", "sales"}, [][]string{{"US", "3"}, {"CA", "5"}})
	}

	session, err := connectHTTP(t, httpServer.URL, bearer)
	require.NoError(t, err)
	require.Equal(t, "cubelink", session.InitializeResult().ServerInfo.Name)

	features := callTool(t, session, "list_features", map[string]any{"kind": "numeric"})
	var names struct {
		Names []string `json:"names"`
	}
	require.NoError(t, json.Unmarshal(features, &names))
	require.Contains(t, names.Names, "sales")

	rows := callTool(t, session, "get_data", map[string]any{"features": []string{"Country", "sales"}})
	var table struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rows, &table))
	require.Equal(t, []string{"Country", "sales"}, table.Columns)
	require.Equal(t, [][]any{{"CA", 5.0}, {"US", 3.0}}, table.Rows)

	explained := callTool(t, session, "explain_query", map[string]any{"query": "SELECT `Sales`.`sales` FROM `Sales Project`.`Sales` `Sales`"})
	var native struct {
		Query string `json:"query"`
	}
	require.NoError(t, json.Unmarshal(explained, &native))
	require.Contains(t, native.Query, `FROM "SALES_FACT"`)
}

func TestHTTPFunctional_RejectsWrongToken(t *testing.T) {
	httpServer, _ := newHTTPServer(t)

	_, err := connectHTTP(t, httpServer.URL, "wrong")
	require.Error(t, err)
}

func TestHTTPFunctional_Health(t *testing.T) {
	httpServer, _ := newHTTPServer(t)

	resp, err := http.Get(httpServer.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
