package functional_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/cubelink/internal/testserver"
	"github.com/stretchr/testify/require"
)

// newStdioSession runs the server binary against an in-process analytics server.
func newStdioSession(t *testing.T) (*sdkmcp.ClientSession, *testserver.TestServer) {
	t.Helper()

	binaryPath := "./bin/cubelink"
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		binaryPath = "../../bin/cubelink"
		if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
			t.Skip("Server binary not found. Run 'go build -o bin/cubelink ./cmd/server' first.")
		}
	}

	ts := testserver.New(t)
	configPath := filepath.Join(t.TempDir(), "cubelink.yaml")
	config := fmt.Sprintf(`remote:
  url: %s
  design_center_port: ""
  engine_port: ""
  organization: %s
  project_id: %s
  model_id: %s
auth:
  username: %s
  password: %s
warehouse:
  path: %s
  connection_id: %s
  schema: main
  database: dw
`, ts.URL(), ts.Org, testserver.SalesProjectID, testserver.SalesModelID, ts.Username, ts.Password,
		filepath.Join(t.TempDir(), "warehouse.db"), testserver.Connection)
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	cmd := exec.CommandContext(ctx, binaryPath)
	cmd.Env = append(os.Environ(),
		"CUBELINK_CONFIG_PATH="+configPath,
		"CUBELINK_TRANSPORT=stdio",
	)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, &sdkmcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		cancel()
		t.Fatalf("Failed to connect: %v", err)
	}

	t.Cleanup(func() {
		session.Close()
		cancel()
	})
	return session, ts
}

func TestStdioFunctional_Orientation(t *testing.T) {
	session, _ := newStdioSession(t)

	levels := callTool(t, session, "list_hierarchy_levels", map[string]any{"hierarchy": "Location"})
	var names struct {
		Names []string `json:"names"`
	}
	require.NoError(t, json.Unmarshal(levels, &names))
	require.Equal(t, []string{"Country", "City"}, names.Names)

	folders := callTool(t, session, "list_folders", nil)
	require.NoError(t, json.Unmarshal(folders, &names))
	require.Contains(t, names.Names, "Revenue")
}

func TestStdioFunctional_CreateFeature(t *testing.T) {
	session, ts := newStdioSession(t)

	created := callTool(t, session, "create_calculated_feature", map[string]any{
		"name":       "sales_x2",
		"expression": "[Measures].[sales]*2",
	})
	var out struct {
		Published bool `json:"published"`
	}
	require.NoError(t, json.Unmarshal(created, &out))
	require.True(t, out.Published)
	require.Equal(t, 2, ts.PublishCount(testserver.SalesProjectID))
}

func TestStdioFunctional_DocResources(t *testing.T) {
	session, _ := newStdioSession(t)

	read, err := session.ReadResource(t.Context(), &sdkmcp.ReadResourceParams{URI: "cubelink://docs/queries"})
	require.NoError(t, err)
	require.NotEmpty(t, read.Contents)
	require.Equal(t, "text/markdown", read.Contents[0].MIMEType)
	require.Contains(t, read.Contents[0].Text, "# Feature queries")
}
