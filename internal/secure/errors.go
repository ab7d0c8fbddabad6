package secure

import "errors"

// ErrDestroyed is returned when opening a buffer after Destroy.
var ErrDestroyed = errors.New("secure buffer destroyed")
