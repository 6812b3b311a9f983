// CLAUDE:SUMMARY Sentinel errors for the sentinelle service: invalid input, not found.
package sentinelle

import "errors"

// ErrInvalidInput is returned when a request fails validation.
var ErrInvalidInput = errors.New("sentinelle: invalid input")

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("sentinelle: not found")
