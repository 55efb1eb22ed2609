package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Snapshot is a saved copy of a project definition.
type Snapshot struct {
	ID   string `json:"snapshot_id"`
	Name string `json:"name"`
}

// PublishedProject is an entry of the engine's published-projects list.
type PublishedProject struct {
	Name        string `json:"name"`
	PublishType string `json:"publishType"`
	Cubes       []struct {
		ID string `json:"id"`
	} `json:"cubes"`
}

// TableColumn is a warehouse column as reported by the table info endpoint.
type TableColumn struct {
	Name     string
	DataType string
}

// ExpressionContext locates the table a SQL expression is evaluated against.
type ExpressionContext struct {
	ConnectionID string
	Table        string
	Schema       string
	Database     string
}

// unwrap decodes the {"response": ...} envelope returned by most endpoints.
func unwrap(body []byte, out any) error {
	var env struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = env.Response
		return nil
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) projectsURL() string {
	return fmt.Sprintf("%s/api/1.0/org/%s/project", c.designURL, url.PathEscape(c.org))
}

func (c *Client) projectURL() string {
	return c.projectsURL() + "/" + url.PathEscape(c.projectID)
}

func (c *Client) engine(format string, args ...any) string {
	return c.engineURL + fmt.Sprintf(format, args...)
}

// GetProject fetches the full project document.
func (c *Client) GetProject(ctx context.Context) (json.RawMessage, error) {
	body, err := c.send(ctx, call{method: http.MethodGet, url: c.projectURL()})
	if err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}
	var doc json.RawMessage
	if err := unwrap(body, &doc); err != nil {
		return nil, fmt.Errorf("getting project: %w", err)
	}
	return doc, nil
}

// PutProject replaces the staged project document.
func (c *Client) PutProject(ctx context.Context, doc []byte) error {
	if _, err := c.send(ctx, call{method: http.MethodPut, url: c.projectURL(), body: doc}); err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	return nil
}

// PublishProject promotes staged edits.
func (c *Client) PublishProject(ctx context.Context) error {
	if _, err := c.send(ctx, call{method: http.MethodPost, url: c.projectURL() + "/publish", body: []byte("{}")}); err != nil {
		return fmt.Errorf("publishing project: %w", err)
	}
	return nil
}

// CloneProject returns a server-side copy of the project document, not yet saved.
func (c *Client) CloneProject(ctx context.Context) (json.RawMessage, error) {
	body, err := c.send(ctx, call{method: http.MethodGet, url: c.projectURL() + "/clone"})
	if err != nil {
		return nil, fmt.Errorf("cloning project: %w", err)
	}
	var doc json.RawMessage
	if err := unwrap(body, &doc); err != nil {
		return nil, fmt.Errorf("cloning project: %w", err)
	}
	return doc, nil
}

// CreateProject saves a new project document and returns its id.
func (c *Client) CreateProject(ctx context.Context, doc []byte) (string, error) {
	body, err := c.send(ctx, call{method: http.MethodPost, url: c.projectsURL(), body: doc})
	if err != nil {
		return "", fmt.Errorf("creating project: %w", err)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := unwrap(body, &created); err != nil {
		return "", fmt.Errorf("creating project: %w", err)
	}
	return created.ID, nil
}

// CreateSnapshot saves the current server-side project under tag and returns the snapshot id.
func (c *Client) CreateSnapshot(ctx context.Context, tag string) (string, error) {
	payload, err := json.Marshal(map[string]string{"tag": tag})
	if err != nil {
		return "", fmt.Errorf("encoding snapshot tag: %w", err)
	}
	body, err := c.send(ctx, call{method: http.MethodPost, url: c.projectURL() + "/snapshots", body: payload})
	if err != nil {
		return "", fmt.Errorf("creating snapshot: %w", err)
	}
	var snap Snapshot
	if err := unwrap(body, &snap); err != nil {
		return "", fmt.Errorf("creating snapshot: %w", err)
	}
	return snap.ID, nil
}

// ListSnapshots returns snapshots in server order.
func (c *Client) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	body, err := c.send(ctx, call{method: http.MethodGet, url: c.projectURL() + "/snapshots"})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	var snaps []Snapshot
	if err := unwrap(body, &snaps); err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return snaps, nil
}

// DeleteSnapshot removes a snapshot.
func (c *Client) DeleteSnapshot(ctx context.Context, id string) error {
	u := c.projectURL() + "/snapshots/" + url.PathEscape(id)
	if _, err := c.send(ctx, call{method: http.MethodDelete, url: u}); err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", id, err)
	}
	return nil
}

// RestoreSnapshot rolls the server-side project back to a snapshot.
// The server documents PUT for this call but only accepts GET.
func (c *Client) RestoreSnapshot(ctx context.Context, id string) error {
	u := c.projectURL() + "/snapshots/" + url.PathEscape(id) + "/restore"
	if _, err := c.send(ctx, call{method: http.MethodGet, url: u}); err != nil {
		return fmt.Errorf("restoring snapshot %s: %w", id, err)
	}
	return nil
}

// PublishedProjects lists the organization's published projects.
func (c *Client) PublishedProjects(ctx context.Context) ([]PublishedProject, error) {
	body, err := c.send(ctx, call{method: http.MethodGet, url: c.engine("/projects/published/orgId/%s", url.PathEscape(c.org))})
	if err != nil {
		return nil, fmt.Errorf("listing published projects: %w", err)
	}
	var projects []PublishedProject
	if err := unwrap(body, &projects); err != nil {
		return nil, fmt.Errorf("listing published projects: %w", err)
	}
	return projects, nil
}

// Discover posts a SOAP schema-discovery envelope and returns the raw response text.
func (c *Client) Discover(ctx context.Context, envelope []byte) ([]byte, error) {
	body, err := c.send(ctx, call{
		method:      http.MethodPost,
		url:         c.engine("/xmla/%s", url.PathEscape(c.org)),
		body:        envelope,
		contentType: "application/xml",
	})
	if err != nil {
		return nil, fmt.Errorf("schema discovery: %w", err)
	}
	return body, nil
}

// SubmitQuery posts a query envelope. Both 401 and 403 trigger the single re-authentication.
func (c *Client) SubmitQuery(ctx context.Context, envelope []byte) ([]byte, error) {
	return c.send(ctx, call{
		method:  http.MethodPost,
		url:     c.engine("/query/orgId/%s/submit", url.PathEscape(c.org)),
		body:    envelope,
		retryOn: []int{http.StatusUnauthorized, http.StatusForbidden},
	})
}

// RecentQueries returns the query-history payload for user queries started after since.
func (c *Client) RecentQueries(ctx context.Context, since time.Time, limit int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("querySource", "user")
	q.Set("queryStarted", "5m")
	q.Set("queryDateTimeStart", since.UTC().Format("2006-01-02T15:04:05.000Z"))
	u := c.engine("/queries/orgId/%s", url.PathEscape(c.org)) + "?" + q.Encode()

	body, err := c.send(ctx, call{method: http.MethodGet, url: u})
	if err != nil {
		return nil, fmt.Errorf("listing recent queries: %w", err)
	}
	var history json.RawMessage
	if err := unwrap(body, &history); err != nil {
		return nil, fmt.Errorf("listing recent queries: %w", err)
	}
	return history, nil
}

// ConnectionIDs lists the warehouse connection ids known to the organization.
func (c *Client) ConnectionIDs(ctx context.Context) ([]string, error) {
	body, err := c.send(ctx, call{method: http.MethodGet, url: c.engine("/connection-groups/orgId/%s", url.PathEscape(c.org))})
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	var groups struct {
		Results struct {
			Values []struct {
				ConnectionID string `json:"connectionId"`
			} `json:"values"`
		} `json:"results"`
	}
	if err := unwrap(body, &groups); err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	ids := make([]string, 0, len(groups.Results.Values))
	for _, v := range groups.Results.Values {
		ids = append(ids, v.ConnectionID)
	}
	return ids, nil
}

// RefreshTableCache makes the engine re-read the connection's table list.
func (c *Client) RefreshTableCache(ctx context.Context, connectionID string) error {
	u := c.engine("/data-sources/orgId/%s/conn/%s/tables/cacheRefresh", url.PathEscape(c.org), url.PathEscape(connectionID))
	if _, err := c.send(ctx, call{method: http.MethodPost, url: u, body: []byte{}}); err != nil {
		return fmt.Errorf("refreshing table cache: %w", err)
	}
	return nil
}

// TableColumns reads a warehouse table's columns. Empty database or schema are omitted.
func (c *Client) TableColumns(ctx context.Context, connectionID, table, database, schema string) ([]TableColumn, error) {
	u := c.engine("/data-sources/orgId/%s/conn/%s/table/%s/info", url.PathEscape(c.org), url.PathEscape(connectionID), url.PathEscape(table))
	q := url.Values{}
	if database != "" {
		q.Set("database", database)
	}
	if schema != "" {
		q.Set("schema", schema)
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	body, err := c.send(ctx, call{method: http.MethodGet, url: u})
	if err != nil {
		return nil, fmt.Errorf("reading table %s: %w", table, err)
	}
	var info struct {
		Columns []struct {
			Name       string `json:"name"`
			ColumnType struct {
				DataType string `json:"data-type"`
			} `json:"column-type"`
		} `json:"columns"`
	}
	if err := unwrap(body, &info); err != nil {
		return nil, fmt.Errorf("reading table %s: %w", table, err)
	}
	cols := make([]TableColumn, 0, len(info.Columns))
	for _, col := range info.Columns {
		cols = append(cols, TableColumn{Name: col.Name, DataType: col.ColumnType.DataType})
	}
	return cols, nil
}

// EvaluateExpression asks the engine for the data type of a SQL expression over a table.
func (c *Client) EvaluateExpression(ctx context.Context, at ExpressionContext, expression string) (string, error) {
	u := c.engine("/expression-evaluator/evaluate/orgId/%s/conn/%s/table/%s",
		url.PathEscape(c.org), url.PathEscape(at.ConnectionID), url.PathEscape(at.Table))
	form := url.Values{}
	form.Set("dbschema", at.Schema)
	form.Set("expression", expression)
	form.Set("database", at.Database)

	body, err := c.send(ctx, call{
		method:      http.MethodPost,
		url:         u,
		body:        []byte(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		return "", fmt.Errorf("evaluating expression: %w", err)
	}
	var result struct {
		DataType string `json:"data-type"`
	}
	if err := unwrap(body, &result); err != nil {
		return "", fmt.Errorf("evaluating expression: %w", err)
	}
	return result.DataType, nil
}
