package memutils

import "github.com/cockroachdb/errors"

// ErrNotPowerOfTwo is returned from CheckPow2 or other methods if the number being tested is not a power of two
var ErrNotPowerOfTwo = errors.New("number must be a power of two")

// ErrNegativeSize is returned when a byte count that must be non-negative is not
var ErrNegativeSize = errors.New("size must not be negative")
