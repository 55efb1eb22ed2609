package query

import "errors"

var (
	// ErrQuery indicates the server rejected or failed a query.
	ErrQuery = errors.New("query failed")
	// ErrInvalidInput indicates a malformed query request.
	ErrInvalidInput = errors.New("invalid input")
)
