package project

import (
	"context"
	"encoding/json"

	"github.com/rpggio/cubelink/internal/domain/schema"
	"github.com/rpggio/cubelink/internal/remote"
)

// Store reads and writes the remote project definition.
type Store interface {
	GetProject(ctx context.Context) (json.RawMessage, error)
	PutProject(ctx context.Context, doc []byte) error
	PublishProject(ctx context.Context) error
	CloneProject(ctx context.Context) (json.RawMessage, error)
	CreateProject(ctx context.Context, doc []byte) (string, error)
	CreateSnapshot(ctx context.Context, tag string) (string, error)
	ListSnapshots(ctx context.Context) ([]remote.Snapshot, error)
	DeleteSnapshot(ctx context.Context, id string) error
	RestoreSnapshot(ctx context.Context, id string) error
}

// TableMetadata reads live warehouse metadata through the server's connections.
type TableMetadata interface {
	RefreshTableCache(ctx context.Context, connectionID string) error
	TableColumns(ctx context.Context, connectionID, table, database, schema string) ([]remote.TableColumn, error)
	EvaluateExpression(ctx context.Context, at remote.ExpressionContext, expression string) (string, error)
}

// Model is the client state mutations validate against and refresh after a commit.
type Model interface {
	Catalog() *schema.Catalog
	ModelName() string
	Refresh(ctx context.Context) error
}
