package memory

//go:generate mockgen -source driver.go -destination ./mocks/mocks.go -package mocks

import (
	"unsafe"

	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// Driver creates the native objects that a Memory manages. memory/vulkan provides an
// implementation backed by a Vulkan device and memory/host provides one backed by
// ordinary Go memory.
type Driver interface {
	// CreateBuffer creates an unbound buffer of the provided size
	CreateBuffer(size int, usage core1_0.BufferUsageFlags) (NativeBuffer, common.VkResult, error)
	// CreateImage creates an unbound image matching the provided descriptor
	CreateImage(desc ImageDescriptor) (NativeImage, common.VkResult, error)
	// AllocateMemory allocates a block of device memory from the provided memory type
	AllocateMemory(memoryTypeIndex int, size int) (DeviceMemory, common.VkResult, error)
}

// DeviceMemory is a single block of native memory backing one page
type DeviceMemory interface {
	// Size is the size of the block in bytes
	Size() int
	// Map makes the byte range [offset, offset+size) visible to the host
	Map(offset, size int) (unsafe.Pointer, common.VkResult, error)
	Unmap()
	Free()
}

// Resource is a native object that consumes a region of device memory once bound
type Resource interface {
	// MemoryRequirements reports the size, alignment, and eligible memory types of the resource
	MemoryRequirements() core1_0.MemoryRequirements
	// Bind attaches the resource to memory at the provided offset
	Bind(deviceMemory DeviceMemory, offset int) (common.VkResult, error)
	Destroy()
}

// NativeBuffer is the driver's buffer object
type NativeBuffer interface {
	Resource
}

// NativeImage is the driver's image object
type NativeImage interface {
	Resource
}
