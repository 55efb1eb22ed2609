package calc

import "errors"

// ErrInvalidInput indicates an argument no expression can be generated for.
var ErrInvalidInput = errors.New("invalid input")
