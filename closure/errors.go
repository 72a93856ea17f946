package closure

import "errors"

// ErrTooLarge is returned when a closure exceeds the WithMaxObjects bound.
var ErrTooLarge = errors.New("closure: too many reachable objects")
