package persistence

import "errors"

// ErrInvalidInput is returned for malformed write requests.
var ErrInvalidInput = errors.New("invalid input")
