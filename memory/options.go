package memory

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/compute/memutils"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

const (
	// DefaultPageSize is the page size used when CreateOptions.PageSize is left at 0. It is
	// equal to 256Mb.
	DefaultPageSize int = 256 * 1024 * 1024
)

// CreateOptions contains the settings used to create a Memory
type CreateOptions struct {
	// MemoryTypeIndex is the index of the device memory type that every page will be
	// allocated from
	MemoryTypeIndex int
	// PropertyFlags are the property flags of the memory type at MemoryTypeIndex. Mapping is
	// only permitted when MemoryPropertyHostVisible is present.
	PropertyFlags core1_0.MemoryPropertyFlags

	// PageSize is the size in bytes of each new page. Resources larger than PageSize get a
	// page of their own sized to fit. Leave at 0 to use DefaultPageSize.
	PageSize int
	// MaxPageCount is the maximum number of pages that may exist at once, or 0 for no limit
	MaxPageCount int
	// FreeRegionLimit is the maximum number of free regions each page can track, or 0 for
	// no limit. Once reached, pages that would need another region are passed over when
	// allocating.
	FreeRegionLimit int

	// UseMutex makes every Memory method take a lock. Leave unset when the caller already
	// serializes access.
	UseMutex bool

	// MemoryCallbacks is an optional set of callbacks that will be executed when a page's
	// device memory is allocated or freed
	MemoryCallbacks *MemoryCallbackOptions
}

func (o CreateOptions) validate() error {
	if o.MemoryTypeIndex < 0 || o.MemoryTypeIndex >= common.MaxMemoryTypes {
		return errors.Wrapf(ErrInvalidArgument, "memory type index %d is out of range", o.MemoryTypeIndex)
	}
	for _, check := range []struct {
		value int
		name  string
	}{
		{o.PageSize, "page size"},
		{o.MaxPageCount, "max page count"},
		{o.FreeRegionLimit, "free region limit"},
	} {
		err := memutils.CheckNonNegative(check.value, check.name)
		if err != nil {
			return errors.Mark(err, ErrInvalidArgument)
		}
	}

	return nil
}
