package warehouse

import "errors"

var (
	// ErrInvalidInput indicates load options or a table that cannot be written.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTableExists indicates a load in fail mode hit an existing table.
	ErrTableExists = errors.New("table already exists")
)
