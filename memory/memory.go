package memory

import (
	"context"
	"log/slog"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/compute/memory/internal/utils"
	"github.com/vkngwrapper/compute/memutils"
	"github.com/vkngwrapper/compute/memutils/freespace"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// MemoryAllocationInfo describes the region of a page held by a Buffer or Image
type MemoryAllocationInfo = freespace.AllocationInfo

// Memory suballocates buffers and images out of a growable pool of fixed-size pages, all of
// them allocated from a single device memory type. Pages are searched first-fit in creation
// order; a new page is created only when no existing page can hold a resource.
//
// Buffers and images created by a Memory must be released before the Memory is destroyed.
type Memory struct {
	logger *slog.Logger
	driver Driver
	mutex  utils.OptionalMutex

	memoryTypeIndex int
	propertyFlags   core1_0.MemoryPropertyFlags
	pageSize        int
	maxPageCount    int
	freeRegionLimit int
	callbacks       memoryCallbacks

	pages            []page
	allocations      *swiss.Map[uint64, *allocation]
	nextAllocationID uint64
	destroyed        bool
}

// New creates a Memory with no pages. Pages are created on demand as buffers and images
// are created.
//
// logger - Receives debug and error output. May be nil.
//
// driver - Creates the native buffers, images, and device memory managed by the Memory
//
// options - Settings for the new Memory. The zero value allocates 256Mb pages from memory type 0.
func New(logger *slog.Logger, driver Driver, options CreateOptions) (*Memory, error) {
	if driver == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "a driver is required to create a memory")
	}

	err := options.validate()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = newNopLogger()
	}

	memory := &Memory{
		logger: logger,
		driver: driver,
		mutex: utils.OptionalMutex{
			UseMutex: options.UseMutex,
		},

		memoryTypeIndex: options.MemoryTypeIndex,
		propertyFlags:   options.PropertyFlags,
		pageSize:        options.PageSize,
		maxPageCount:    options.MaxPageCount,
		freeRegionLimit: options.FreeRegionLimit,

		allocations: swiss.NewMap[uint64, *allocation](42),
	}
	memory.callbacks = memoryCallbacks{
		options: options.MemoryCallbacks,
		memory:  memory,
	}

	if memory.pageSize == 0 {
		memory.pageSize = DefaultPageSize
	}

	return memory, nil
}

// PageSize is the size in bytes of newly-created pages
func (m *Memory) PageSize() int { return m.pageSize }

// MemoryTypeIndex is the device memory type that pages are allocated from
func (m *Memory) MemoryTypeIndex() int { return m.memoryTypeIndex }

// PropertyFlags are the property flags of this Memory's memory type
func (m *Memory) PropertyFlags() core1_0.MemoryPropertyFlags { return m.propertyFlags }

// PageCount is the number of pages currently in the pool
func (m *Memory) PageCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return len(m.pages)
}

// AllocationCount is the number of buffers and images that have been created and not yet
// released
func (m *Memory) AllocationCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.allocations.Count()
}

// CreateBuffer creates a buffer of the provided size and binds it to a region of one of this
// Memory's pages, creating a new page if none has room.
func (m *Memory) CreateBuffer(size int, usage core1_0.BufferUsageFlags) (buffer *Buffer, res common.VkResult, err error) {
	m.logger.Debug("Memory::CreateBuffer")

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.destroyed {
		return nil, core1_0.VKErrorUnknown, ErrDestroyed
	}
	if size <= 0 {
		return nil, core1_0.VKErrorUnknown, errors.Wrapf(ErrInvalidArgument, "buffer size must be greater than zero, but was %d", size)
	}

	native, res, err := m.driver.CreateBuffer(size, usage)
	if err != nil {
		return nil, res, err
	}
	defer func() {
		if err != nil {
			native.Destroy()
		}
	}()

	buffer = &Buffer{
		native: native,
		usage:  usage,
	}
	res, err = m.allocate(&buffer.allocation, native, allocationKindBuffer)
	if err != nil {
		return nil, res, err
	}

	return buffer, res, nil
}

// CreateImage creates an image matching the provided descriptor and binds it to a region of
// one of this Memory's pages, creating a new page if none has room.
func (m *Memory) CreateImage(desc ImageDescriptor) (image *Image, res common.VkResult, err error) {
	m.logger.Debug("Memory::CreateImage")

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.destroyed {
		return nil, core1_0.VKErrorUnknown, ErrDestroyed
	}

	err = desc.Validate()
	if err != nil {
		return nil, core1_0.VKErrorUnknown, err
	}

	native, res, err := m.driver.CreateImage(desc)
	if err != nil {
		return nil, res, err
	}
	defer func() {
		if err != nil {
			native.Destroy()
		}
	}()

	image = &Image{
		native:     native,
		descriptor: desc,
	}
	res, err = m.allocate(&image.allocation, native, allocationKindImage)
	if err != nil {
		return nil, res, err
	}

	return image, res, nil
}

// allocate finds room for the resource, binds it, and commits the region to the handle's
// allocation. Nothing is committed unless every step succeeds.
func (m *Memory) allocate(alloc *allocation, resource Resource, kind allocationKind) (common.VkResult, error) {
	requirements := resource.MemoryRequirements()

	if requirements.MemoryTypeBits&(1<<uint32(m.memoryTypeIndex)) == 0 {
		return core1_0.VKErrorFeatureNotPresent, errors.Wrapf(ErrAllocationUnsupported,
			"%s requires memory type bits %#x, which do not include memory type %d",
			kind, requirements.MemoryTypeBits, m.memoryTypeIndex)
	}
	if requirements.Size <= 0 {
		return core1_0.VKErrorUnknown, errors.Wrapf(ErrInvalidArgument, "%s reported a memory requirement of %d bytes", kind, requirements.Size)
	}
	err := memutils.CheckPow2(requirements.Alignment, "alignment")
	if err != nil {
		return core1_0.VKErrorUnknown, errors.Mark(err, ErrInvalidArgument)
	}

	pageIndex, request, res, err := m.getSuitableMemoryPage(requirements)
	if err != nil {
		return res, err
	}

	page := m.pageAt(pageIndex)
	res, err = resource.Bind(page.memory, request.Offset)
	if err != nil {
		return res, errors.Wrapf(err, "failed to bind %s to page %d at offset %d", kind, pageIndex, request.Offset)
	}

	err = page.freeSpace.CommitAllocation(request)
	if err != nil {
		// The request was produced under the same lock, so it cannot be stale
		panic(errors.Wrap(err, "page changed between probing and committing an allocation"))
	}

	m.nextAllocationID++
	alloc.parent = m
	alloc.id = m.nextAllocationID
	alloc.kind = kind
	alloc.info = request.AllocationInfo(pageIndex)
	m.allocations.Put(alloc.id, alloc)

	m.logger.LogAttrs(context.Background(), slog.LevelDebug, "Memory::allocate",
		slog.String("kind", kind.String()),
		slog.Int("page", pageIndex),
		slog.Int("offset", alloc.info.Offset),
		slog.Int("size", alloc.info.Size),
		slog.Int("leftPadding", alloc.info.LeftPadding),
	)

	return core1_0.VKSuccess, nil
}

// ReleaseBuffer returns the buffer's region to its page and destroys the native buffer
func (m *Memory) ReleaseBuffer(buffer *Buffer) error {
	m.logger.Debug("Memory::ReleaseBuffer")

	if buffer == nil {
		return errors.Wrap(ErrInvalidArgument, "attempted to release a nil buffer")
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.release(&buffer.allocation, buffer.native)
}

// ReleaseImage returns the image's region to its page and destroys the native image
func (m *Memory) ReleaseImage(image *Image) error {
	m.logger.Debug("Memory::ReleaseImage")

	if image == nil {
		return errors.Wrap(ErrInvalidArgument, "attempted to release a nil image")
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.release(&image.allocation, image.native)
}

func (m *Memory) release(alloc *allocation, resource Resource) error {
	err := m.checkOwnership(alloc)
	if err != nil {
		return err
	}

	page := m.pageAt(alloc.info.Page)
	if page.mapped && page.mappedBy == alloc.id {
		m.logger.Debug("Memory::release unmapping page before release")
		page.unmap()
	}

	// A failed reservation only matters when the region cannot merge into a neighbor, in
	// which case Release panics
	page.freeSpace.ReserveManagerSpace()

	err = page.freeSpace.Release(alloc.info)
	if err != nil {
		panic(errors.Wrapf(err, "live %s could not be released from page %d", alloc.kind, alloc.info.Page))
	}

	m.allocations.Delete(alloc.id)
	alloc.released = true
	resource.Destroy()

	return nil
}

func (m *Memory) checkOwnership(alloc *allocation) error {
	if alloc.parent != m {
		return errors.Wrapf(ErrInvalidArgument, "%s was not created by this memory", alloc.kind)
	}
	if alloc.released {
		return errors.Wrapf(ErrHandleReleased, "%s %d", alloc.kind, alloc.id)
	}

	return nil
}

// FreeEmptyPages frees pages at the end of the pool that hold no allocations and returns the
// number of pages freed. Pages before the last live page are kept so that page indices held
// by live handles remain valid.
func (m *Memory) FreeEmptyPages() int {
	m.logger.Debug("Memory::FreeEmptyPages")

	m.mutex.Lock()
	defer m.mutex.Unlock()

	freed := 0
	for len(m.pages) > 0 {
		last := &m.pages[len(m.pages)-1]
		if !last.freeSpace.IsEmpty() || last.mapped {
			break
		}

		m.freePage(len(m.pages) - 1)
		m.pages = m.pages[:len(m.pages)-1]
		freed++
	}

	return freed
}

// Destroy frees every page. It fails, logging each unreleased allocation, if any buffer or
// image created by this Memory has not been released.
func (m *Memory) Destroy() error {
	m.logger.Debug("Memory::Destroy")

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.destroyed {
		return ErrDestroyed
	}

	if m.allocations.Count() > 0 {
		for _, alloc := range m.sortedAllocations() {
			m.logUnreleasedMemory(alloc)
		}

		return errors.Wrapf(ErrUnreleasedAllocations, "%d allocations remain", m.allocations.Count())
	}

	for i := len(m.pages) - 1; i >= 0; i-- {
		page := &m.pages[i]
		if page.mapped {
			page.unmap()
		}
		m.freePage(i)
		m.pages = m.pages[:i]
	}

	m.pages = nil
	m.destroyed = true
	return nil
}

func (m *Memory) logUnreleasedMemory(alloc *allocation) {
	name := alloc.name
	if name == "" {
		name = "empty"
	}

	m.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unreleased allocation",
		slog.String("kind", alloc.kind.String()),
		slog.Int("page", alloc.info.Page),
		slog.Int("offset", alloc.info.Offset),
		slog.Int("size", alloc.info.Size),
		slog.String("name", name),
	)
}

// sortedAllocations lists live allocations ordered by page and offset
func (m *Memory) sortedAllocations() []*allocation {
	allocs := make([]*allocation, 0, m.allocations.Count())
	m.allocations.Iter(func(id uint64, alloc *allocation) (stop bool) {
		allocs = append(allocs, alloc)
		return false
	})

	sort.Slice(allocs, func(i, j int) bool {
		if allocs[i].info.Page != allocs[j].info.Page {
			return allocs[i].info.Page < allocs[j].info.Page
		}
		return allocs[i].info.Offset < allocs[j].info.Offset
	})

	return allocs
}

// Validate performs internal consistency checks on every page and every live allocation
func (m *Memory) Validate() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	counts := make([]int, len(m.pages))
	for i := range m.pages {
		page := &m.pages[i]
		if page.memory == nil {
			return errors.Newf("page %d has no device memory", i)
		}
		if page.memory.Size() != page.freeSpace.Size() {
			return errors.Newf("page %d has %d bytes of device memory but tracks %d bytes", i, page.memory.Size(), page.freeSpace.Size())
		}

		err := page.freeSpace.Validate()
		if err != nil {
			return errors.Wrapf(err, "page %d", i)
		}
	}

	var err error
	m.allocations.Iter(func(id uint64, alloc *allocation) (stop bool) {
		if alloc.id != id || alloc.parent != m || alloc.released {
			err = errors.Newf("allocation %d is registered but is not a live allocation of this memory", id)
			return true
		}
		if alloc.info.Page < 0 || alloc.info.Page >= len(m.pages) {
			err = errors.Newf("allocation %d refers to page %d, but there are %d pages", id, alloc.info.Page, len(m.pages))
			return true
		}
		if alloc.info.Start() < 0 || alloc.info.End() > m.pages[alloc.info.Page].freeSpace.Size() {
			err = errors.Newf("allocation %d region [%d, %d) is outside of page %d", id, alloc.info.Start(), alloc.info.End(), alloc.info.Page)
			return true
		}

		counts[alloc.info.Page]++
		return false
	})
	if err != nil {
		return err
	}

	for i, count := range counts {
		if count != m.pages[i].freeSpace.AllocationCount() {
			return errors.Newf("page %d has %d registered allocations but tracks %d", i, count, m.pages[i].freeSpace.AllocationCount())
		}
	}

	return nil
}
