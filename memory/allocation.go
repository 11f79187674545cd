package memory

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

type allocationKind uint32

const (
	allocationKindBuffer allocationKind = iota
	allocationKindImage
)

var allocationKindMapping = map[allocationKind]string{
	allocationKindBuffer: "buffer",
	allocationKindImage:  "image",
}

func (k allocationKind) String() string {
	str, ok := allocationKindMapping[k]
	if !ok {
		return "unknown allocation"
	}

	return str
}

// allocation is the state shared by buffers and images: the region they hold and a
// reference to the Memory that must outlive them
type allocation struct {
	parent   *Memory
	id       uint64
	kind     allocationKind
	info     MemoryAllocationInfo
	name     string
	released bool
}

// Info returns the page region held by this handle
func (a *allocation) Info() MemoryAllocationInfo { return a.info }

// Offset is the offset of the handle's first byte within its page
func (a *allocation) Offset() int { return a.info.Offset }

// Size is the number of bytes the handle's resource requires
func (a *allocation) Size() int { return a.info.Size }

// Page is the index of the page holding the handle's resource
func (a *allocation) Page() int { return a.info.Page }

// Memory is the Memory that created this handle
func (a *allocation) Memory() *Memory { return a.parent }

// Released returns true once the handle has been released
func (a *allocation) Released() bool { return a.released }

// Name is an optional debug name that identifies the handle in logs and statistics
func (a *allocation) Name() string { return a.name }

// SetName sets the handle's debug name
func (a *allocation) SetName(name string) {
	if a.parent == nil {
		a.name = name
		return
	}

	a.parent.mutex.Lock()
	defer a.parent.mutex.Unlock()

	a.name = name
}

// Buffer is a native buffer bound to a region of one of a Memory's pages
type Buffer struct {
	allocation
	native NativeBuffer
	usage  core1_0.BufferUsageFlags
}

// Native returns the driver's buffer object
func (b *Buffer) Native() NativeBuffer { return b.native }

// Usage returns the usage flags the buffer was created with
func (b *Buffer) Usage() core1_0.BufferUsageFlags { return b.usage }

// Release returns the buffer's region to its page and destroys the native buffer. Using the
// buffer afterward is an error.
func (b *Buffer) Release() error {
	if b.parent == nil {
		return errors.Wrap(ErrInvalidArgument, "attempted to release a buffer that was not created by a memory")
	}
	return b.parent.ReleaseBuffer(b)
}

// Map maps the buffer's page region and returns a pointer to the buffer's first byte
func (b *Buffer) Map() (unsafe.Pointer, common.VkResult, error) {
	if b.parent == nil {
		return nil, core1_0.VKErrorUnknown, errors.Wrap(ErrInvalidArgument, "attempted to map a buffer that was not created by a memory")
	}
	return b.parent.MapBuffer(b)
}

// Unmap unmaps a buffer previously mapped with Map
func (b *Buffer) Unmap() error {
	if b.parent == nil {
		return errors.Wrap(ErrInvalidArgument, "attempted to unmap a buffer that was not created by a memory")
	}
	return b.parent.UnmapBuffer(b)
}

// Image is a native image bound to a region of one of a Memory's pages
type Image struct {
	allocation
	native     NativeImage
	descriptor ImageDescriptor
}

// Native returns the driver's image object
func (i *Image) Native() NativeImage { return i.native }

// Descriptor returns the descriptor the image was created from
func (i *Image) Descriptor() ImageDescriptor { return i.descriptor }

// Release returns the image's region to its page and destroys the native image. Using the
// image afterward is an error.
func (i *Image) Release() error {
	if i.parent == nil {
		return errors.Wrap(ErrInvalidArgument, "attempted to release an image that was not created by a memory")
	}
	return i.parent.ReleaseImage(i)
}

// Map maps the image's page region and returns a pointer to the image's first byte. This is
// only meaningful for images with linear tiling.
func (i *Image) Map() (unsafe.Pointer, common.VkResult, error) {
	if i.parent == nil {
		return nil, core1_0.VKErrorUnknown, errors.Wrap(ErrInvalidArgument, "attempted to map an image that was not created by a memory")
	}
	return i.parent.MapImage(i)
}

// Unmap unmaps an image previously mapped with Map
func (i *Image) Unmap() error {
	if i.parent == nil {
		return errors.Wrap(ErrInvalidArgument, "attempted to unmap an image that was not created by a memory")
	}
	return i.parent.UnmapImage(i)
}
