package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rpggio/cubelink/internal/domain/query"
	"github.com/rpggio/cubelink/internal/domain/schema"
	"github.com/rpggio/cubelink/internal/remote"
	"github.com/stretchr/testify/mock"
)

// Discoverer is a mock for schema.Discoverer.
type Discoverer struct {
	mock.Mock
}

func (m *Discoverer) Discover(ctx context.Context, envelope []byte) ([]byte, error) {
	args := m.Called(ctx, envelope)
	if body, ok := args.Get(0).([]byte); ok {
		return body, args.Error(1)
	}
	return nil, args.Error(1)
}

// Submitter is a mock for query.Submitter.
type Submitter struct {
	mock.Mock
}

func (m *Submitter) SubmitQuery(ctx context.Context, envelope []byte) ([]byte, error) {
	args := m.Called(ctx, envelope)
	if body, ok := args.Get(0).([]byte); ok {
		return body, args.Error(1)
	}
	return nil, args.Error(1)
}

// History is a mock for explain.History.
type History struct {
	mock.Mock
}

func (m *History) RecentQueries(ctx context.Context, since time.Time, limit int) (json.RawMessage, error) {
	args := m.Called(ctx, since, limit)
	if body, ok := args.Get(0).(json.RawMessage); ok {
		return body, args.Error(1)
	}
	return nil, args.Error(1)
}

// QueryRunner is a mock for explain.QueryRunner.
type QueryRunner struct {
	mock.Mock
}

func (m *QueryRunner) Execute(ctx context.Context, project, text string, opts query.Options) (*query.Table, error) {
	args := m.Called(ctx, project, text, opts)
	if table, ok := args.Get(0).(*query.Table); ok {
		return table, args.Error(1)
	}
	return nil, args.Error(1)
}

// Store is a mock for project.Store.
type Store struct {
	mock.Mock
}

func (m *Store) GetProject(ctx context.Context) (json.RawMessage, error) {
	args := m.Called(ctx)
	if doc, ok := args.Get(0).(json.RawMessage); ok {
		return doc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Store) PutProject(ctx context.Context, doc []byte) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *Store) PublishProject(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *Store) CloneProject(ctx context.Context) (json.RawMessage, error) {
	args := m.Called(ctx)
	if doc, ok := args.Get(0).(json.RawMessage); ok {
		return doc, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Store) CreateProject(ctx context.Context, doc []byte) (string, error) {
	args := m.Called(ctx, doc)
	return args.String(0), args.Error(1)
}

func (m *Store) CreateSnapshot(ctx context.Context, tag string) (string, error) {
	args := m.Called(ctx, tag)
	return args.String(0), args.Error(1)
}

func (m *Store) ListSnapshots(ctx context.Context) ([]remote.Snapshot, error) {
	args := m.Called(ctx)
	if snaps, ok := args.Get(0).([]remote.Snapshot); ok {
		return snaps, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Store) DeleteSnapshot(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *Store) RestoreSnapshot(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// TableMetadata is a mock for project.TableMetadata.
type TableMetadata struct {
	mock.Mock
}

func (m *TableMetadata) RefreshTableCache(ctx context.Context, connectionID string) error {
	args := m.Called(ctx, connectionID)
	return args.Error(0)
}

func (m *TableMetadata) TableColumns(ctx context.Context, connectionID, table, database, schema string) ([]remote.TableColumn, error) {
	args := m.Called(ctx, connectionID, table, database, schema)
	if cols, ok := args.Get(0).([]remote.TableColumn); ok {
		return cols, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *TableMetadata) EvaluateExpression(ctx context.Context, at remote.ExpressionContext, expression string) (string, error) {
	args := m.Called(ctx, at, expression)
	return args.String(0), args.Error(1)
}

// Model is a project.Model with a fixed catalog. Refresh is mocked.
type Model struct {
	mock.Mock
	Cat  *schema.Catalog
	Name string
}

func (m *Model) Catalog() *schema.Catalog { return m.Cat }

func (m *Model) ModelName() string { return m.Name }

func (m *Model) Refresh(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
