// Package host implements memory.Driver on top of ordinary Go memory. Device memory is a
// byte slice and buffers and images are views into it, which makes the package useful for
// exercising a memory.Memory without a GPU and for replaying allocation traces.
package host

import (
	"math"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/compute/memory"
	"github.com/vkngwrapper/compute/memutils"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

const (
	// DefaultBufferAlignment is the alignment reported for buffers when Options.BufferAlignment is 0
	DefaultBufferAlignment = 16
	// DefaultImageAlignment is the alignment reported for images when Options.ImageAlignment is 0
	DefaultImageAlignment = 256
	// DefaultMaxAllocationSize is the largest device memory block allocated when
	// Options.MaxAllocationSize is 0
	DefaultMaxAllocationSize = 1 << 30
)

// Options configures the requirements a Driver reports and the memory it is willing to allocate
type Options struct {
	// BufferAlignment is the alignment, in bytes, reported for every buffer
	BufferAlignment int
	// ImageAlignment is the alignment, in bytes, reported for every image
	ImageAlignment int
	// RowPitchAlignment pads each image row to a multiple of this many bytes. 0 means rows
	// are tightly packed.
	RowPitchAlignment int
	// MemoryTypeBits is reported as the eligible memory types of every resource. 0 means all
	// memory types are eligible.
	MemoryTypeBits uint32
	// Budget is the number of bytes of device memory that may be live at once, or 0 for no limit
	Budget int
	// MaxAllocationSize is the largest single block of device memory AllocateMemory will create
	MaxAllocationSize int
}

// Driver is a memory.Driver backed by Go memory
type Driver struct {
	options Options

	mutex          sync.Mutex
	allocatedBytes int
	memoryCount    int
	bufferCount    int
	imageCount     int
}

var _ memory.Driver = &Driver{}

// NewDriver creates a Driver. Alignments must be powers of two.
func NewDriver(options Options) (*Driver, error) {
	if options.BufferAlignment == 0 {
		options.BufferAlignment = DefaultBufferAlignment
	}
	if options.ImageAlignment == 0 {
		options.ImageAlignment = DefaultImageAlignment
	}
	if options.MemoryTypeBits == 0 {
		options.MemoryTypeBits = math.MaxUint32
	}
	if options.MaxAllocationSize == 0 {
		options.MaxAllocationSize = DefaultMaxAllocationSize
	}

	for _, check := range []struct {
		value int
		name  string
	}{
		{options.BufferAlignment, "buffer alignment"},
		{options.ImageAlignment, "image alignment"},
		{options.RowPitchAlignment, "row pitch alignment"},
	} {
		err := memutils.CheckPow2(check.value, check.name)
		if err != nil {
			return nil, err
		}
	}

	err := memutils.CheckNonNegative(options.Budget, "budget")
	if err != nil {
		return nil, err
	}
	err = memutils.CheckNonNegative(options.MaxAllocationSize, "max allocation size")
	if err != nil {
		return nil, err
	}

	return &Driver{options: options}, nil
}

// AllocatedBytes is the number of bytes of device memory currently live
func (d *Driver) AllocatedBytes() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.allocatedBytes
}

// MemoryCount is the number of device memory blocks currently live
func (d *Driver) MemoryCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.memoryCount
}

// ResourceCount is the number of buffers and images that have been created and not destroyed
func (d *Driver) ResourceCount() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return d.bufferCount + d.imageCount
}

func (d *Driver) CreateBuffer(size int, usage core1_0.BufferUsageFlags) (memory.NativeBuffer, common.VkResult, error) {
	if size <= 0 {
		return nil, core1_0.VKErrorUnknown, errors.Newf("buffer size must be greater than zero, but was %d", size)
	}

	d.mutex.Lock()
	d.bufferCount++
	d.mutex.Unlock()

	return &Buffer{
		resource: resource{
			driver: d,
			requirements: core1_0.MemoryRequirements{
				Size:           size,
				Alignment:      d.options.BufferAlignment,
				MemoryTypeBits: d.options.MemoryTypeBits,
			},
		},
		Usage: usage,
	}, core1_0.VKSuccess, nil
}

func (d *Driver) CreateImage(desc memory.ImageDescriptor) (memory.NativeImage, common.VkResult, error) {
	err := desc.Validate()
	if err != nil {
		return nil, core1_0.VKErrorUnknown, err
	}

	rowPitch := desc.Width * desc.TexelSize()
	if d.options.RowPitchAlignment > 0 {
		rowPitch = memutils.AlignUp(rowPitch, uint(d.options.RowPitchAlignment))
	}

	d.mutex.Lock()
	d.imageCount++
	d.mutex.Unlock()

	return &Image{
		resource: resource{
			driver: d,
			requirements: core1_0.MemoryRequirements{
				Size:           rowPitch * desc.Height * desc.Depth,
				Alignment:      d.options.ImageAlignment,
				MemoryTypeBits: d.options.MemoryTypeBits,
			},
		},
		Descriptor: desc,
		RowPitch:   rowPitch,
	}, core1_0.VKSuccess, nil
}

func (d *Driver) AllocateMemory(memoryTypeIndex int, size int) (memory.DeviceMemory, common.VkResult, error) {
	if size <= 0 {
		return nil, core1_0.VKErrorUnknown, errors.Newf("memory size must be greater than zero, but was %d", size)
	}
	if memoryTypeIndex < 0 || memoryTypeIndex >= common.MaxMemoryTypes {
		return nil, core1_0.VKErrorUnknown, errors.Newf("memory type index %d is out of range", memoryTypeIndex)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()

	if size > d.options.MaxAllocationSize {
		return nil, core1_0.VKErrorOutOfDeviceMemory, errors.Wrapf(core1_0.VKErrorOutOfDeviceMemory.ToError(),
			"%d bytes is larger than the maximum allocation size of %d", size, d.options.MaxAllocationSize)
	}
	if d.options.Budget > 0 && size > d.options.Budget-d.allocatedBytes {
		return nil, core1_0.VKErrorOutOfDeviceMemory, core1_0.VKErrorOutOfDeviceMemory.ToError()
	}

	d.allocatedBytes += size
	d.memoryCount++

	return &DeviceMemory{
		driver:          d,
		memoryTypeIndex: memoryTypeIndex,
		data:            make([]byte, size),
	}, core1_0.VKSuccess, nil
}

// DeviceMemory is a block of Go memory standing in for device memory
type DeviceMemory struct {
	driver          *Driver
	memoryTypeIndex int
	data            []byte
	mapped          bool
	freed           bool
}

func (m *DeviceMemory) Size() int { return len(m.data) }

// MemoryTypeIndex is the memory type the block was allocated from
func (m *DeviceMemory) MemoryTypeIndex() int { return m.memoryTypeIndex }

// Bytes exposes the block's contents
func (m *DeviceMemory) Bytes() []byte { return m.data }

// Mapped returns true while the block is mapped
func (m *DeviceMemory) Mapped() bool { return m.mapped }

func (m *DeviceMemory) Map(offset, size int) (unsafe.Pointer, common.VkResult, error) {
	if m.freed {
		return nil, core1_0.VKErrorMemoryMapFailed, errors.New("attempted to map freed memory")
	}
	if m.mapped {
		return nil, core1_0.VKErrorMemoryMapFailed, errors.New("memory is already mapped")
	}
	if offset < 0 || size <= 0 || offset+size > len(m.data) {
		return nil, core1_0.VKErrorMemoryMapFailed, errors.Newf("range [%d, %d) is outside of memory of size %d", offset, offset+size, len(m.data))
	}

	m.mapped = true
	return unsafe.Pointer(&m.data[offset]), core1_0.VKSuccess, nil
}

func (m *DeviceMemory) Unmap() {
	if !m.mapped {
		panic("attempted to unmap memory that was not mapped")
	}
	m.mapped = false
}

func (m *DeviceMemory) Free() {
	if m.freed {
		panic("attempted to free memory twice")
	}

	m.freed = true
	m.mapped = false

	m.driver.mutex.Lock()
	defer m.driver.mutex.Unlock()

	m.driver.allocatedBytes -= len(m.data)
	m.driver.memoryCount--
	m.data = nil
}

type resource struct {
	driver       *Driver
	requirements core1_0.MemoryRequirements
	memory       *DeviceMemory
	offset       int
	destroyed    bool
}

func (r *resource) MemoryRequirements() core1_0.MemoryRequirements {
	return r.requirements
}

func (r *resource) Bind(deviceMemory memory.DeviceMemory, offset int) (common.VkResult, error) {
	hostMemory, ok := deviceMemory.(*DeviceMemory)
	if !ok {
		return core1_0.VKErrorUnknown, errors.Newf("attempted to bind to memory of type %T", deviceMemory)
	}
	if r.destroyed {
		return core1_0.VKErrorUnknown, errors.New("attempted to bind a destroyed resource")
	}
	if r.memory != nil {
		return core1_0.VKErrorUnknown, errors.New("resource is already bound")
	}
	if hostMemory.freed {
		return core1_0.VKErrorUnknown, errors.New("attempted to bind to freed memory")
	}
	if offset < 0 || offset > hostMemory.Size() || r.requirements.Size > hostMemory.Size()-offset {
		return core1_0.VKErrorUnknown, errors.Newf("binding %d bytes at offset %d overruns memory of size %d", r.requirements.Size, offset, hostMemory.Size())
	}
	if offset%r.requirements.Alignment != 0 {
		return core1_0.VKErrorUnknown, errors.Newf("offset %d does not satisfy alignment %d", offset, r.requirements.Alignment)
	}

	r.memory = hostMemory
	r.offset = offset
	return core1_0.VKSuccess, nil
}

// BoundOffset is the offset the resource was bound at, or -1 if it is not bound
func (r *resource) BoundOffset() int {
	if r.memory == nil {
		return -1
	}
	return r.offset
}

// Bytes is the region of device memory the resource is bound to, or nil if it is not bound
func (r *resource) Bytes() []byte {
	if r.memory == nil || r.memory.freed {
		return nil
	}
	return r.memory.data[r.offset : r.offset+r.requirements.Size]
}

// Destroyed returns true once the resource has been destroyed
func (r *resource) Destroyed() bool { return r.destroyed }

// Buffer is a host buffer
type Buffer struct {
	resource
	Usage core1_0.BufferUsageFlags
}

func (b *Buffer) Destroy() {
	if b.destroyed {
		panic("attempted to destroy a buffer twice")
	}
	b.destroyed = true

	b.driver.mutex.Lock()
	defer b.driver.mutex.Unlock()
	b.driver.bufferCount--
}

// Image is a host image with rows laid out RowPitch bytes apart
type Image struct {
	resource
	Descriptor memory.ImageDescriptor
	RowPitch   int
}

func (i *Image) Destroy() {
	if i.destroyed {
		panic("attempted to destroy an image twice")
	}
	i.destroyed = true

	i.driver.mutex.Lock()
	defer i.driver.mutex.Unlock()
	i.driver.imageCount--
}
