package vulkan

import (
	"log/slog"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/compute/memory"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// FindMemoryTypeIndex returns the first memory type permitted by memoryTypeBits whose
// property flags include every flag in required. Vulkan orders memory types so that the
// first match is the best one.
func FindMemoryTypeIndex(
	memoryProperties *core1_0.PhysicalDeviceMemoryProperties,
	memoryTypeBits uint32,
	required core1_0.MemoryPropertyFlags,
) (int, error) {
	if memoryProperties == nil {
		return -1, errors.Wrap(memory.ErrInvalidArgument, "memory properties are required")
	}

	for typeIndex, memoryType := range memoryProperties.MemoryTypes {
		if memoryTypeBits&(1<<uint(typeIndex)) == 0 {
			continue
		}
		if memoryType.PropertyFlags&required != required {
			continue
		}

		return typeIndex, nil
	}

	return -1, errors.Wrapf(memory.ErrAllocationUnsupported, "no memory type has properties %s", required)
}

// NewMemory creates a memory.Memory whose pages come from the first memory type with the
// required properties. options.MemoryTypeIndex and options.PropertyFlags are overwritten.
func NewMemory(
	logger *slog.Logger,
	driver *Driver,
	memoryProperties *core1_0.PhysicalDeviceMemoryProperties,
	required core1_0.MemoryPropertyFlags,
	options memory.CreateOptions,
) (*memory.Memory, error) {
	typeIndex, err := FindMemoryTypeIndex(memoryProperties, math.MaxUint32, required)
	if err != nil {
		return nil, err
	}

	options.MemoryTypeIndex = typeIndex
	options.PropertyFlags = memoryProperties.MemoryTypes[typeIndex].PropertyFlags

	pageSize := options.PageSize
	if pageSize == 0 {
		pageSize = memory.DefaultPageSize
	}
	heapIndex := memoryProperties.MemoryTypes[typeIndex].HeapIndex
	if heapIndex < len(memoryProperties.MemoryHeaps) && memoryProperties.MemoryHeaps[heapIndex].Size < pageSize {
		options.PageSize = memoryProperties.MemoryHeaps[heapIndex].Size
	}

	return memory.New(logger, driver, options)
}
