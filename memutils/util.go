package memutils

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// Number is any integer type usable as a byte count or alignment
type Number interface {
	constraints.Integer
}

// CheckPow2 returns an error wrapping ErrNotPowerOfTwo if number is not zero or a power of two.
// Zero is accepted since an alignment of zero means "unaligned" throughout this module.
func CheckPow2[T Number](number T, name string) error {
	if number < 0 || number&(number-1) != 0 {
		return errors.Wrapf(ErrNotPowerOfTwo, "%s is %d", name, number)
	}
	return nil
}

// CheckNonNegative returns an error wrapping ErrNegativeSize if number is below zero
func CheckNonNegative[T Number](number T, name string) error {
	if number < 0 {
		return errors.Wrapf(ErrNegativeSize, "%s is %d", name, number)
	}
	return nil
}

// LeftPadding is the number of bytes that must be skipped from offset to reach the next
// multiple of alignment. An alignment of 0 never pads. Unlike AlignUp, alignment does not
// need to be a power of two.
func LeftPadding(offset, alignment int) int {
	if alignment <= 0 {
		return 0
	}
	return (alignment - offset%alignment) % alignment
}

// AlignUp rounds value up to the next multiple of alignment, which must be a power of two
func AlignUp(value int, alignment uint) int {
	if alignment == 0 {
		return value
	}
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}
