// Package warehouse defines the contract for loading tables into and
// querying the warehouse behind a server connection.
package warehouse

import (
	"context"
	"fmt"

	"github.com/rpggio/cubelink/internal/domain/query"
)

// DefaultChunkSize is the number of rows inserted per transaction when LoadOptions leaves it unset.
const DefaultChunkSize = 10000

// IfExists selects what a load does when the target table already exists.
type IfExists string

const (
	IfExistsFail    IfExists = "fail"
	IfExistsReplace IfExists = "replace"
	IfExistsAppend  IfExists = "append"
)

// LoadOptions controls AddTable.
type LoadOptions struct {
	// ChunkSize is the rows per insert transaction. Nil means DefaultChunkSize.
	ChunkSize *int
	// IfExists defaults to IfExistsFail.
	IfExists IfExists
}

// Chunks returns a chunk size for LoadOptions.
func Chunks(n int) *int { return &n }

// Normalize fills defaults and rejects unknown modes and non-positive chunk sizes.
// A normalized ChunkSize is never nil.
func (o LoadOptions) Normalize() (LoadOptions, error) {
	switch {
	case o.ChunkSize == nil:
		o.ChunkSize = Chunks(DefaultChunkSize)
	case *o.ChunkSize <= 0:
		return o, fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidInput, *o.ChunkSize)
	}
	switch o.IfExists {
	case "":
		o.IfExists = IfExistsFail
	case IfExistsFail, IfExistsReplace, IfExistsAppend:
	default:
		return o, fmt.Errorf("%w: if-exists mode %q, valid modes are fail, replace and append", ErrInvalidInput, o.IfExists)
	}
	return o, nil
}

// Connector is a warehouse reachable both directly and through a server connection.
type Connector interface {
	// AddTable writes table under name, created from the table's column types.
	AddTable(ctx context.Context, name string, table *query.Table, opts LoadOptions) error
	// SubmitQuery runs SQL directly against the warehouse.
	SubmitQuery(ctx context.Context, sql string) (*query.Table, error)
	// ConnectionID is the server connection group id for this warehouse.
	ConnectionID() string
	Schema() string
	DatabaseName() string
	// FixTableName returns the name the warehouse stores a table under.
	FixTableName(name string) string
}
