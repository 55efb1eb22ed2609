package schema

import "errors"

var (
	// ErrSchemaParse indicates an unexpected or missing required field in a discovery response.
	ErrSchemaParse = errors.New("schema parse error")
	// ErrNotFound indicates a lookup of a name absent from the catalog.
	ErrNotFound = errors.New("not found")
	// ErrUnknownFeature indicates a feature name that is neither a level nor a measure.
	// It matches ErrNotFound.
	ErrUnknownFeature error = &notFoundKind{"unknown feature"}
	// ErrUnknownHierarchy indicates a hierarchy or level that does not exist or has the wrong kind.
	// It matches ErrNotFound.
	ErrUnknownHierarchy error = &notFoundKind{"unknown hierarchy"}
)

type notFoundKind struct {
	msg string
}

func (e *notFoundKind) Error() string { return e.msg }

func (e *notFoundKind) Is(target error) bool { return target == ErrNotFound }
