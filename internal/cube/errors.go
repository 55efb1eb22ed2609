package cube

import "errors"

// ErrNoWarehouse indicates a warehouse operation on a client without a connector.
var ErrNoWarehouse = errors.New("no warehouse connector set")
