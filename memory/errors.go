package memory

import "github.com/cockroachdb/errors"

var (
	// ErrAllocationUnsupported is returned when a resource cannot be placed in this Memory's
	// memory type, or when mapping is requested from memory that is not host visible
	ErrAllocationUnsupported = errors.New("allocation is not supported by this memory")
	// ErrOutOfDeviceMemory is returned when a new page cannot be created
	ErrOutOfDeviceMemory = errors.New("out of device memory")
	// ErrInvalidArgument is returned for malformed sizes, descriptors, or handles
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAlreadyMapped is returned when mapping a page that is already mapped
	ErrAlreadyMapped = errors.New("page is already mapped")
	// ErrNotMapped is returned when unmapping a page that the handle does not have mapped
	ErrNotMapped = errors.New("page is not mapped")
	// ErrHandleReleased is returned when using a buffer or image that has already been released
	ErrHandleReleased = errors.New("handle has already been released")
	// ErrUnreleasedAllocations is returned from Destroy while buffers or images are still live
	ErrUnreleasedAllocations = errors.New("some allocations were not released before the memory was destroyed")
	// ErrDestroyed is returned when using a Memory after Destroy has succeeded
	ErrDestroyed = errors.New("memory has been destroyed")
)
