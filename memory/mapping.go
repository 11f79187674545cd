package memory

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// IsPageMappable returns true if this Memory's memory type is host visible and the page at
// the provided index exists and is not currently mapped
func (m *Memory) IsPageMappable(pageIndex int) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.propertyFlags&core1_0.MemoryPropertyHostVisible == 0 {
		return false
	}
	if pageIndex < 0 || pageIndex >= len(m.pages) {
		return false
	}

	return !m.pages[pageIndex].mapped
}

// MapBuffer maps the buffer's page region and returns a pointer to the buffer's first byte.
// Only one handle per page may be mapped at a time.
func (m *Memory) MapBuffer(buffer *Buffer) (unsafe.Pointer, common.VkResult, error) {
	m.logger.Debug("Memory::MapBuffer")

	if buffer == nil {
		return nil, core1_0.VKErrorUnknown, errors.Wrap(ErrInvalidArgument, "attempted to map a nil buffer")
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.mapAllocation(&buffer.allocation)
}

// UnmapBuffer unmaps a buffer previously mapped with MapBuffer
func (m *Memory) UnmapBuffer(buffer *Buffer) error {
	m.logger.Debug("Memory::UnmapBuffer")

	if buffer == nil {
		return errors.Wrap(ErrInvalidArgument, "attempted to unmap a nil buffer")
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.unmapAllocation(&buffer.allocation)
}

// MapImage maps the image's page region and returns a pointer to the image's first byte.
// Only one handle per page may be mapped at a time.
func (m *Memory) MapImage(image *Image) (unsafe.Pointer, common.VkResult, error) {
	m.logger.Debug("Memory::MapImage")

	if image == nil {
		return nil, core1_0.VKErrorUnknown, errors.Wrap(ErrInvalidArgument, "attempted to map a nil image")
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.mapAllocation(&image.allocation)
}

// UnmapImage unmaps an image previously mapped with MapImage
func (m *Memory) UnmapImage(image *Image) error {
	m.logger.Debug("Memory::UnmapImage")

	if image == nil {
		return errors.Wrap(ErrInvalidArgument, "attempted to unmap a nil image")
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.unmapAllocation(&image.allocation)
}

func (m *Memory) mapAllocation(alloc *allocation) (unsafe.Pointer, common.VkResult, error) {
	err := m.checkOwnership(alloc)
	if err != nil {
		return nil, core1_0.VKErrorUnknown, err
	}

	if m.propertyFlags&core1_0.MemoryPropertyHostVisible == 0 {
		return nil, core1_0.VKErrorMemoryMapFailed, errors.Wrapf(ErrAllocationUnsupported,
			"memory type %d is not host visible", m.memoryTypeIndex)
	}

	page := m.pageAt(alloc.info.Page)
	if page.mapped {
		return nil, core1_0.VKErrorMemoryMapFailed, errors.Wrapf(ErrAlreadyMapped, "page %d", alloc.info.Page)
	}

	data, res, err := page.memory.Map(alloc.info.Start(), alloc.info.ConsumedSize())
	if err != nil {
		return nil, res, errors.Wrapf(err, "failed to map page %d", alloc.info.Page)
	}

	page.mapped = true
	page.mappedBy = alloc.id
	page.mappedData = data

	return unsafe.Add(data, alloc.info.LeftPadding), core1_0.VKSuccess, nil
}

func (m *Memory) unmapAllocation(alloc *allocation) error {
	err := m.checkOwnership(alloc)
	if err != nil {
		return err
	}

	page := m.pageAt(alloc.info.Page)
	if !page.mapped {
		return errors.Wrapf(ErrNotMapped, "page %d", alloc.info.Page)
	}
	if page.mappedBy != alloc.id {
		return errors.Wrapf(ErrNotMapped, "page %d is mapped by a different handle", alloc.info.Page)
	}

	page.unmap()
	return nil
}
