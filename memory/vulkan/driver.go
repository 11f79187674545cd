// Package vulkan implements memory.Driver on top of a vkngwrapper core1_0.Device, so that a
// memory.Memory can suballocate real Vulkan buffers and images.
package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/compute/memory"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
	"github.com/vkngwrapper/extensions/v2/ext_memory_priority"
)

// Options configures how a Driver creates Vulkan objects
type Options struct {
	// SharingMode is used for every buffer and image the Driver creates
	SharingMode core1_0.SharingMode

	// UseMemoryPriority attaches a MemoryPriorityAllocateInfo with Priority to every device
	// memory allocation. VK_EXT_memory_priority must be active on the device.
	UseMemoryPriority bool
	// Priority is the memory priority, between 0 and 1, used when UseMemoryPriority is set
	Priority float32
}

// Driver creates Vulkan buffers, images, and device memory for a memory.Memory
type Driver struct {
	device              core1_0.Device
	allocationCallbacks *driver.AllocationCallbacks
	options             Options
}

var _ memory.Driver = &Driver{}

// NewDriver creates a Driver for the provided device
//
// device - The device all objects will be created on
//
// allocationCallbacks - Host allocation callbacks passed to every create and destroy call. May be nil.
//
// options - Settings for the new Driver
func NewDriver(device core1_0.Device, allocationCallbacks *driver.AllocationCallbacks, options Options) (*Driver, error) {
	if device == nil {
		return nil, errors.Wrap(memory.ErrInvalidArgument, "a device is required to create a vulkan driver")
	}

	if options.UseMemoryPriority {
		if !device.IsDeviceExtensionActive(ext_memory_priority.ExtensionName) {
			return nil, errors.Wrapf(memory.ErrAllocationUnsupported, "memory priority was requested but %s is not active", ext_memory_priority.ExtensionName)
		}
		if options.Priority < 0 || options.Priority > 1 {
			return nil, errors.Wrapf(memory.ErrInvalidArgument, "memory priority must be between 0 and 1, but was %f", options.Priority)
		}
	}

	return &Driver{
		device:              device,
		allocationCallbacks: allocationCallbacks,
		options:             options,
	}, nil
}

func (d *Driver) CreateBuffer(size int, usage core1_0.BufferUsageFlags) (memory.NativeBuffer, common.VkResult, error) {
	buffer, res, err := d.device.CreateBuffer(d.allocationCallbacks, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: d.options.SharingMode,
	})
	if err != nil {
		return nil, res, err
	}

	return &Buffer{driver: d, buffer: buffer}, res, nil
}

func (d *Driver) CreateImage(desc memory.ImageDescriptor) (memory.NativeImage, common.VkResult, error) {
	createInfo, err := d.imageCreateInfo(desc)
	if err != nil {
		return nil, core1_0.VKErrorUnknown, err
	}

	image, res, err := d.device.CreateImage(d.allocationCallbacks, createInfo)
	if err != nil {
		return nil, res, err
	}

	return &Image{driver: d, image: image, format: createInfo.Format}, res, nil
}

func (d *Driver) imageCreateInfo(desc memory.ImageDescriptor) (core1_0.ImageCreateInfo, error) {
	err := desc.Validate()
	if err != nil {
		return core1_0.ImageCreateInfo{}, err
	}

	format, err := Format(desc.Channels, desc.DataType)
	if err != nil {
		return core1_0.ImageCreateInfo{}, err
	}

	imageType := core1_0.ImageType2D
	if desc.Depth > 1 {
		imageType = core1_0.ImageType3D
	}

	return core1_0.ImageCreateInfo{
		ImageType: imageType,
		Format:    format,
		Extent: core1_0.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  desc.Depth,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       core1_0.Samples1,
		Tiling:        desc.Tiling,
		Usage:         desc.Usage,
		SharingMode:   d.options.SharingMode,
		InitialLayout: core1_0.ImageLayoutUndefined,
	}, nil
}

func (d *Driver) AllocateMemory(memoryTypeIndex int, size int) (memory.DeviceMemory, common.VkResult, error) {
	var allocInfo core1_0.MemoryAllocateInfo
	allocInfo.MemoryTypeIndex = memoryTypeIndex
	allocInfo.AllocationSize = size

	if d.options.UseMemoryPriority {
		priorityInfo := ext_memory_priority.MemoryPriorityAllocateInfo{
			Priority: d.options.Priority,
		}
		priorityInfo.Next = allocInfo.Next
		allocInfo.Next = priorityInfo
	}

	vkMemory, res, err := d.device.AllocateMemory(d.allocationCallbacks, allocInfo)
	if err != nil {
		return nil, res, err
	}

	return &DeviceMemory{
		driver: d,
		memory: vkMemory,
		size:   size,
	}, res, nil
}

// DeviceMemory is a single Vulkan device memory allocation backing one page
type DeviceMemory struct {
	driver *Driver
	memory core1_0.DeviceMemory
	size   int
}

// Handle is the underlying Vulkan device memory
func (m *DeviceMemory) Handle() core1_0.DeviceMemory { return m.memory }

func (m *DeviceMemory) Size() int { return m.size }

func (m *DeviceMemory) Map(offset, size int) (unsafe.Pointer, common.VkResult, error) {
	return m.memory.Map(offset, size, 0)
}

func (m *DeviceMemory) Unmap() {
	m.memory.Unmap()
}

func (m *DeviceMemory) Free() {
	m.memory.Free(m.driver.allocationCallbacks)
}

func unwrapMemory(deviceMemory memory.DeviceMemory) (core1_0.DeviceMemory, error) {
	vkMemory, ok := deviceMemory.(*DeviceMemory)
	if !ok {
		return nil, errors.Wrapf(memory.ErrInvalidArgument, "attempted to bind to memory of type %T", deviceMemory)
	}
	return vkMemory.memory, nil
}

// Buffer is a Vulkan buffer created by a Driver
type Buffer struct {
	driver *Driver
	buffer core1_0.Buffer
}

// Handle is the underlying Vulkan buffer
func (b *Buffer) Handle() core1_0.Buffer { return b.buffer }

func (b *Buffer) MemoryRequirements() core1_0.MemoryRequirements {
	return *b.buffer.MemoryRequirements()
}

func (b *Buffer) Bind(deviceMemory memory.DeviceMemory, offset int) (common.VkResult, error) {
	vkMemory, err := unwrapMemory(deviceMemory)
	if err != nil {
		return core1_0.VKErrorUnknown, err
	}

	return b.buffer.BindBufferMemory(vkMemory, offset)
}

func (b *Buffer) Destroy() {
	b.buffer.Destroy(b.driver.allocationCallbacks)
}

// Image is a Vulkan image created by a Driver
type Image struct {
	driver *Driver
	image  core1_0.Image
	format core1_0.Format
}

// Handle is the underlying Vulkan image
func (i *Image) Handle() core1_0.Image { return i.image }

// Format is the format the image was created with
func (i *Image) Format() core1_0.Format { return i.format }

func (i *Image) MemoryRequirements() core1_0.MemoryRequirements {
	return *i.image.MemoryRequirements()
}

func (i *Image) Bind(deviceMemory memory.DeviceMemory, offset int) (common.VkResult, error) {
	vkMemory, err := unwrapMemory(deviceMemory)
	if err != nil {
		return core1_0.VKErrorUnknown, err
	}

	return i.image.BindImageMemory(vkMemory, offset)
}

func (i *Image) Destroy() {
	i.image.Destroy(i.driver.allocationCallbacks)
}
