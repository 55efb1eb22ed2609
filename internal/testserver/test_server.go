package testserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// TableColumn is a warehouse column served by the table info endpoint.
type TableColumn struct {
	Name     string
	DataType string
}

type snapshot struct {
	ID   string `json:"snapshot_id"`
	Name string `json:"name"`
	doc  []byte
}

type historyEntry struct {
	QueryText      string          `json:"query_text"`
	TimelineEvents []timelineEvent `json:"timeline_events"`
}

type timelineEvent struct {
	Type     string `json:"type"`
	Children []struct {
		QueryText string `json:"query_text"`
	} `json:"children"`
}

// TestServer is an in-process analytics server: design center, engine and
// XMLA endpoints on one listener. Exported hooks may be replaced before the
// first request.
type TestServer struct {
	Server *httptest.Server

	Org      string
	Username string
	Password string

	// Discovery answers XMLA envelopes. Defaults to DiscoveryResponse.
	Discovery func(envelope string) (string, bool)
	// Respond answers query submissions with a response body.
	Respond func(language, text string) string
	// Native is the warehouse SQL the engine logs for a query. An empty
	// result logs the query without subqueries.
	Native func(text string) string
	// Tables are keyed by connection id then table name.
	Tables map[string]map[string][]TableColumn
	// ExpressionType is the data type reported for every evaluated expression.
	ExpressionType string

	mu          sync.Mutex
	token       string
	tokenSeq    int
	projects    map[string][]byte
	projectSeq  int
	published   map[string]int
	snapshots   map[string][]snapshot
	snapshotSeq int
	history     []historyEntry
	connections []string
	failures    map[string][]int
	requests    []string
}

// Project ids and credentials of the default fixture.
const (
	SalesProjectID = "proj-sales"
	SalesModelID   = "cube-sales"
	Connection     = "conn-dw"
)

// New starts a server holding SalesProject and registers its shutdown with t.
func New(t *testing.T) *TestServer {
	t.Helper()
	ts := &TestServer{
		Org:            "org",
		Username:       "analyst",
		Password:       "secret",
		Discovery:      DiscoveryResponse,
		Respond:        func(string, string) string { return QueryResult(nil, nil) },
		Native:         defaultNative,
		ExpressionType: "Decimal",
		Tables: map[string]map[string][]TableColumn{Connection: {
			"SALES_FACT": {{"amount", "Decimal"}, {"region", "String"}, {"attrs", "String"}},
		}},
		projects:    map[string][]byte{SalesProjectID: []byte(SalesProject)},
		published:   map[string]int{SalesProjectID: 1},
		snapshots:   map[string][]snapshot{},
		connections: []string{Connection},
		failures:    map[string][]int{},
	}
	ts.Server = httptest.NewServer(ts.routes())
	t.Cleanup(ts.Server.Close)
	return ts
}

func defaultNative(text string) string {
	native := `SELECT "region", SUM("amount") FROM "SALES_FACT" GROUP BY 1`
	if strings.Contains(text, "LIMIT 1") {
		native += " LIMIT 1"
	}
	return native
}

func (ts *TestServer) URL() string { return ts.Server.URL }

// AddConnection registers another connection group id.
func (ts *TestServer) AddConnection(id string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.connections = append(ts.connections, id)
}

// ExpireToken invalidates the issued token so the next call gets 401.
func (ts *TestServer) ExpireToken() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = "expired"
}

// FailNext makes the next requests to method and path answer with the given statuses, in order.
func (ts *TestServer) FailNext(method, path string, statuses ...int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	key := method + " " + path
	ts.failures[key] = append(ts.failures[key], statuses...)
}

// Project returns the stored document of a project.
func (ts *TestServer) Project(id string) []byte {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return slices.Clone(ts.projects[id])
}

// PublishCount returns how often a project was published.
func (ts *TestServer) PublishCount(id string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.published[id]
}

// SnapshotCount returns the number of live snapshots of a project.
func (ts *TestServer) SnapshotCount(id string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.snapshots[id])
}

// Requests returns "METHOD path" for every request served so far.
func (ts *TestServer) Requests() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return slices.Clone(ts.requests)
}

// Submitted returns the query texts submitted so far, oldest first.
func (ts *TestServer) Submitted() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	out := make([]string, len(ts.history))
	for i, h := range ts.history {
		out[len(ts.history)-1-i] = h.QueryText
	}
	return out
}

func (ts *TestServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(ts.record)
	r.Get("/{org}/auth", ts.handleAuth)

	r.Group(func(r chi.Router) {
		r.Use(ts.requireToken, ts.injectFailures)

		r.Route("/api/1.0/org/{org}/project", func(r chi.Router) {
			r.Post("/", ts.handleCreateProject)
			r.Route("/{project}", func(r chi.Router) {
				r.Get("/", ts.handleGetProject)
				r.Put("/", ts.handlePutProject)
				r.Post("/publish", ts.handlePublish)
				r.Get("/clone", ts.handleClone)
				r.Post("/snapshots", ts.handleCreateSnapshot)
				r.Get("/snapshots", ts.handleListSnapshots)
				r.Delete("/snapshots/{snapshot}", ts.handleDeleteSnapshot)
				r.Get("/snapshots/{snapshot}/restore", ts.handleRestoreSnapshot)
			})
		})

		r.Get("/projects/published/orgId/{org}", ts.handlePublished)
		r.Post("/xmla/{org}", ts.handleXMLA)
		r.Post("/query/orgId/{org}/submit", ts.handleSubmit)
		r.Get("/queries/orgId/{org}", ts.handleHistory)
		r.Get("/connection-groups/orgId/{org}", ts.handleConnections)
		r.Post("/data-sources/orgId/{org}/conn/{conn}/tables/cacheRefresh", ts.handleCacheRefresh)
		r.Get("/data-sources/orgId/{org}/conn/{conn}/table/{table}/info", ts.handleTableInfo)
		r.Post("/expression-evaluator/evaluate/orgId/{org}/conn/{conn}/table/{table}", ts.handleEvaluate)
	})
	return r
}

func (ts *TestServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.requests = append(ts.requests, r.Method+" "+r.URL.Path)
		ts.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (ts *TestServer) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		valid := ts.token != "" && r.Header.Get("Authorization") == "Bearer "+ts.token
		ts.mu.Unlock()
		if !valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (ts *TestServer) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		ts.mu.Lock()
		pending := ts.failures[key]
		status := 0
		if len(pending) > 0 {
			status, ts.failures[key] = pending[0], pending[1:]
		}
		ts.mu.Unlock()
		if status != 0 {
			http.Error(w, fmt.Sprintf("injected failure %d", status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"response": v})
}

func (ts *TestServer) handleAuth(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != ts.Username || pass != ts.Password {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
		return
	}
	ts.mu.Lock()
	ts.tokenSeq++
	ts.token = "token-" + strconv.Itoa(ts.tokenSeq)
	token := ts.token
	ts.mu.Unlock()
	_, _ = io.WriteString(w, token)
}

func (ts *TestServer) document(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	id := chi.URLParam(r, "project")
	doc, ok := ts.projects[id]
	if !ok {
		http.Error(w, "project "+id+" not found", http.StatusNotFound)
	}
	return id, doc, ok
}

func (ts *TestServer) handleGetProject(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, doc, ok := ts.document(w, r); ok {
		writeResponse(w, json.RawMessage(doc))
	}
}

func readJSON(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		http.Error(w, "body is not JSON", http.StatusBadRequest)
		return nil, false
	}
	return body, true
}

func (ts *TestServer) handlePutProject(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON(w, r)
	if !ok {
		return
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if id, _, ok := ts.document(w, r); ok {
		ts.projects[id] = body
		writeResponse(w, map[string]any{})
	}
}

func (ts *TestServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if id, _, ok := ts.document(w, r); ok {
		ts.published[id]++
		writeResponse(w, map[string]any{})
	}
}

func (ts *TestServer) handleClone(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	_, doc, ok := ts.document(w, r)
	if !ok {
		return
	}
	var copied map[string]any
	_ = json.Unmarshal(doc, &copied)
	delete(copied, "id")
	writeResponse(w, copied)
}

func (ts *TestServer) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON(w, r)
	if !ok {
		return
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.projectSeq++
	id := fmt.Sprintf("proj-%d", ts.projectSeq)
	ts.projects[id] = body
	writeResponse(w, map[string]string{"id": id})
}

func (ts *TestServer) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tag string `json:"tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	id, doc, ok := ts.document(w, r)
	if !ok {
		return
	}
	ts.snapshotSeq++
	snap := snapshot{ID: fmt.Sprintf("snap-%d", ts.snapshotSeq), Name: req.Tag, doc: slices.Clone(doc)}
	ts.snapshots[id] = append(ts.snapshots[id], snap)
	writeResponse(w, snap)
}

func (ts *TestServer) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if id, _, ok := ts.document(w, r); ok {
		writeResponse(w, append([]snapshot{}, ts.snapshots[id]...))
	}
}

func (ts *TestServer) findSnapshot(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	id, _, ok := ts.document(w, r)
	if !ok {
		return "", 0, false
	}
	sid := chi.URLParam(r, "snapshot")
	i := slices.IndexFunc(ts.snapshots[id], func(s snapshot) bool { return s.ID == sid })
	if i < 0 {
		http.Error(w, "snapshot "+sid+" not found", http.StatusNotFound)
		return "", 0, false
	}
	return id, i, true
}

func (ts *TestServer) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if id, i, ok := ts.findSnapshot(w, r); ok {
		ts.snapshots[id] = slices.Delete(ts.snapshots[id], i, i+1)
		writeResponse(w, map[string]any{})
	}
}

func (ts *TestServer) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if id, i, ok := ts.findSnapshot(w, r); ok {
		ts.projects[id] = slices.Clone(ts.snapshots[id][i].doc)
		writeResponse(w, map[string]any{})
	}
}

func (ts *TestServer) handlePublished(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	type cubeRef struct {
		ID string `json:"id"`
	}
	type published struct {
		Name        string    `json:"name"`
		PublishType string    `json:"publishType"`
		Cubes       []cubeRef `json:"cubes"`
	}
	ids := make([]string, 0, len(ts.projects))
	for id := range ts.projects {
		if ts.published[id] > 0 {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := []published{}
	for _, id := range ids {
		var doc struct {
			Name  string `json:"name"`
			Cubes struct {
				Cube []cubeRef `json:"cube"`
			} `json:"cubes"`
		}
		_ = json.Unmarshal(ts.projects[id], &doc)
		out = append(out, published{Name: doc.Name, PublishType: "normal_publish", Cubes: doc.Cubes.Cube})
	}
	writeResponse(w, out)
}

func (ts *TestServer) handleXMLA(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, ok := ts.Discovery(string(body))
	if !ok {
		http.Error(w, "unsupported discovery request", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = io.WriteString(w, resp)
}

func (ts *TestServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var env struct {
		Language string `json:"language"`
		Query    string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entry := historyEntry{QueryText: env.Query, TimelineEvents: []timelineEvent{{Type: "Planning"}}}
	if native := ts.Native(env.Query); native != "" {
		ev := timelineEvent{Type: "SubqueriesWall"}
		ev.Children = append(ev.Children, struct {
			QueryText string `json:"query_text"`
		}{native})
		entry.TimelineEvents = append(entry.TimelineEvents, ev)
	}

	ts.mu.Lock()
	ts.history = append([]historyEntry{entry}, ts.history...)
	ts.mu.Unlock()

	w.Header().Set("Content-Type", "application/xml")
	_, _ = io.WriteString(w, ts.Respond(env.Language, env.Query))
}

func (ts *TestServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		http.Error(w, "limit is required", http.StatusBadRequest)
		return
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	data := ts.history[:min(limit, len(ts.history))]
	writeResponse(w, map[string]any{"data": data})
}

func (ts *TestServer) handleConnections(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	values := make([]map[string]string, len(ts.connections))
	for i, id := range ts.connections {
		values[i] = map[string]string{"connectionId": id}
	}
	writeResponse(w, map[string]any{"results": map[string]any{"values": values}})
}

func (ts *TestServer) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, map[string]any{})
}

func (ts *TestServer) handleTableInfo(w http.ResponseWriter, r *http.Request) {
	conn, table := chi.URLParam(r, "conn"), chi.URLParam(r, "table")
	ts.mu.Lock()
	cols, ok := ts.Tables[conn][table]
	ts.mu.Unlock()
	if !ok {
		http.Error(w, fmt.Sprintf("table %s not found on %s", table, conn), http.StatusNotFound)
		return
	}
	out := make([]map[string]any, len(cols))
	for i, c := range cols {
		out[i] = map[string]any{"name": c.Name, "column-type": map[string]string{"data-type": c.DataType}}
	}
	writeResponse(w, map[string]any{"columns": out})
}

func (ts *TestServer) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	form, err := url.ParseQuery(string(body))
	if err != nil || form.Get("expression") == "" {
		http.Error(w, "expression is required", http.StatusBadRequest)
		return
	}
	writeResponse(w, map[string]string{"data-type": ts.ExpressionType})
}

// SetTable registers or replaces a warehouse table on a connection.
func (ts *TestServer) SetTable(conn, table string, cols ...TableColumn) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.Tables[conn] == nil {
		ts.Tables[conn] = map[string][]TableColumn{}
	}
	ts.Tables[conn][table] = cols
}
