package memory

import (
	"fmt"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/compute/memutils/freespace"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// page pairs one block of device memory with the free space manager that suballocates it
// and its mapping state
type page struct {
	memory    DeviceMemory
	freeSpace *freespace.Manager

	mapped     bool
	mappedBy   uint64
	mappedData unsafe.Pointer
}

func (p *page) unmap() {
	p.memory.Unmap()
	p.mapped = false
	p.mappedBy = 0
	p.mappedData = nil
}

func (m *Memory) pageAt(index int) *page {
	if index < 0 || index >= len(m.pages) {
		panic(fmt.Sprintf("page index %d is out of range for a memory with %d pages", index, len(m.pages)))
	}

	return &m.pages[index]
}

// getSuitableMemoryPage returns the first page, in creation order, with room for the provided
// requirements, along with an uncommitted request for that room. When no page has room, a new
// page of max(pageSize, requirements.Size) bytes is added to the pool.
func (m *Memory) getSuitableMemoryPage(requirements core1_0.MemoryRequirements) (int, freespace.Request, common.VkResult, error) {
	for pageIndex := range m.pages {
		manager := m.pages[pageIndex].freeSpace

		if !manager.ReserveManagerSpace() {
			continue
		}

		success, request, err := manager.TryAllocate(requirements.Size, requirements.Alignment)
		if err != nil {
			return -1, freespace.Request{}, core1_0.VKErrorUnknown, errors.Mark(err, ErrInvalidArgument)
		}

		if success {
			return pageIndex, request, core1_0.VKSuccess, nil
		}
	}

	pageIndex, res, err := m.growPool(max(m.pageSize, requirements.Size))
	if err != nil {
		return -1, freespace.Request{}, res, err
	}

	manager := m.pages[pageIndex].freeSpace
	success, request, err := manager.TryAllocate(requirements.Size, requirements.Alignment)
	if err != nil {
		return -1, freespace.Request{}, core1_0.VKErrorUnknown, errors.Mark(err, ErrInvalidArgument)
	}
	if !success {
		panic(fmt.Sprintf("a new page of %d bytes could not hold an allocation of %d bytes", manager.Size(), requirements.Size))
	}

	return pageIndex, request, core1_0.VKSuccess, nil
}

// growPool allocates device memory for a new page and appends it to the pool. This is the
// only place the pool grows.
func (m *Memory) growPool(size int) (int, common.VkResult, error) {
	m.logger.Debug("Memory::growPool")

	if m.maxPageCount > 0 && len(m.pages) >= m.maxPageCount {
		return -1, core1_0.VKErrorOutOfDeviceMemory, errors.Wrapf(ErrOutOfDeviceMemory,
			"memory already has the maximum of %d pages", m.maxPageCount)
	}

	deviceMemory, res, err := m.driver.AllocateMemory(m.memoryTypeIndex, size)
	if err != nil {
		if res == core1_0.VKErrorOutOfDeviceMemory || res == core1_0.VKErrorOutOfHostMemory {
			err = errors.Mark(err, ErrOutOfDeviceMemory)
		}
		return -1, res, errors.Wrapf(err, "failed to allocate a page of %d bytes from memory type %d", size, m.memoryTypeIndex)
	}

	m.pages = append(m.pages, page{
		memory:    deviceMemory,
		freeSpace: freespace.NewManager(size, m.freeRegionLimit),
	})
	pageIndex := len(m.pages) - 1
	m.callbacks.allocated(pageIndex)

	return pageIndex, core1_0.VKSuccess, nil
}

func (m *Memory) freePage(index int) {
	p := m.pageAt(index)
	if p.memory == nil {
		panic(fmt.Sprintf("attempting to free page %d, but it did not have a backing device memory", index))
	}

	m.callbacks.freeing(index)
	p.memory.Free()
	p.memory = nil
}
