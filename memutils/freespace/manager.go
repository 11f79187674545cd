package freespace

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/compute/memutils"
	"golang.org/x/exp/slices"
)

// GrowthChunk is the number of free region slots added to a Manager's backing storage
// each time ReserveManagerSpace runs out of room
const GrowthChunk = 512

var (
	// ErrInvalidSize is returned when an allocation of zero or negative size is requested
	ErrInvalidSize = errors.New("allocation size must be greater than zero")
	// ErrStaleRequest is returned from CommitAllocation when the Manager was modified after the
	// request was produced
	ErrStaleRequest = errors.New("allocation request no longer matches the free list")
	// ErrInvalidRelease is returned from Release when the region being released is not a
	// valid occupied region of the page
	ErrInvalidRelease = errors.New("released region is not an occupied region of the page")
)

// Manager tracks the free byte ranges of a single page with a first-fit strategy. Free ranges
// are kept as two parallel slices of offsets and sizes, sorted by offset, with no two ranges
// touching. Occupied space is whatever the free ranges do not cover.
//
// Manager is not safe for concurrent use.
type Manager struct {
	size        int
	regionLimit int

	offsets []int
	sizes   []int

	sumFreeSize     int
	allocationCount int
	allocationBytes int
}

// NewManager creates a Manager for a page of the provided size in bytes, with the entire page
// free. regionLimit caps the number of free regions the Manager is able to track; 0 means
// no cap.
func NewManager(size int, regionLimit int) *Manager {
	if size <= 0 {
		panic(fmt.Sprintf("attempted to create a free space manager for a page of size %d", size))
	}

	capacity := GrowthChunk
	if regionLimit > 0 && regionLimit < capacity {
		capacity = regionLimit
	}

	m := &Manager{
		size:        size,
		regionLimit: regionLimit,
		offsets:     make([]int, 1, capacity),
		sizes:       make([]int, 1, capacity),
		sumFreeSize: size,
	}
	m.sizes[0] = size

	return m
}

// Size is the size in bytes of the page being managed
func (m *Manager) Size() int { return m.size }

// SumFreeSize is the total number of free bytes in the page
func (m *Manager) SumFreeSize() int { return m.sumFreeSize }

// FreeRegionsCount is the number of distinct free regions in the page
func (m *Manager) FreeRegionsCount() int { return len(m.offsets) }

// AllocationCount is the number of committed allocations that have not been released
func (m *Manager) AllocationCount() int { return m.allocationCount }

// IsEmpty returns true if the page has no live allocations
func (m *Manager) IsEmpty() bool { return m.allocationCount == 0 }

// TryAllocate looks for the first free region, in ascending offset order, that can hold size
// bytes after padding its start up to a multiple of alignment. An alignment of 0 means no
// padding. The Manager is not modified: a successful search must be followed by
// CommitAllocation to take effect.
func (m *Manager) TryAllocate(size, alignment int) (bool, Request, error) {
	if size <= 0 {
		return false, Request{}, errors.Wrapf(ErrInvalidSize, "requested %d bytes", size)
	}
	err := memutils.CheckNonNegative(alignment, "alignment")
	if err != nil {
		return false, Request{}, err
	}
	if size > m.sumFreeSize {
		return false, Request{}, nil
	}

	for i, offset := range m.offsets {
		padding := memutils.LeftPadding(offset, alignment)
		// Written as a subtraction so that sizes near math.MaxInt cannot wrap
		if padding <= m.sizes[i] && size <= m.sizes[i]-padding {
			return true, Request{
				Offset:      offset + padding,
				Size:        size,
				LeftPadding: padding,

				regionIndex:  i,
				regionOffset: offset,
				regionSize:   m.sizes[i],
			}, nil
		}
	}

	return false, Request{}, nil
}

// CommitAllocation consumes the region chosen by a TryAllocate search. The chosen free region
// shrinks from its low end and is removed once nothing is left of it. CommitAllocation never
// grows the Manager's backing storage.
func (m *Manager) CommitAllocation(req Request) error {
	index := req.regionIndex
	if index < 0 || index >= len(m.offsets) ||
		m.offsets[index] != req.regionOffset ||
		m.sizes[index] != req.regionSize ||
		req.Offset-req.LeftPadding != req.regionOffset {
		return errors.Wrapf(ErrStaleRequest, "request for %d bytes at offset %d", req.Size, req.Offset)
	}

	if req.Size <= 0 || req.LeftPadding < 0 ||
		req.LeftPadding > m.sizes[index] || req.Size > m.sizes[index]-req.LeftPadding {
		return errors.Wrapf(ErrStaleRequest, "request for %d bytes at offset %d does not fit its region", req.Size, req.Offset)
	}
	consumed := req.Size + req.LeftPadding

	m.offsets[index] += consumed
	m.sizes[index] -= consumed

	if m.sizes[index] == 0 {
		m.offsets = slices.Delete(m.offsets, index, index+1)
		m.sizes = slices.Delete(m.sizes, index, index+1)
	}

	m.sumFreeSize -= consumed
	m.allocationCount++
	m.allocationBytes += req.Size

	memutils.DebugValidate(m)
	return nil
}

// Allocate is AllocateAligned with no alignment requirement
func (m *Manager) Allocate(size int) (bool, AllocationInfo, error) {
	return m.AllocateAligned(size, 0)
}

// AllocateAligned reserves backing storage, searches for a region, and commits it. It returns
// false without modifying the Manager when no region is large enough or the backing storage
// cannot be reserved. The returned AllocationInfo has a Page of 0; callers managing several
// pages are expected to set it.
func (m *Manager) AllocateAligned(size, alignment int) (bool, AllocationInfo, error) {
	if !m.ReserveManagerSpace() {
		return false, AllocationInfo{}, nil
	}

	success, req, err := m.TryAllocate(size, alignment)
	if err != nil || !success {
		return false, AllocationInfo{}, err
	}

	err = m.CommitAllocation(req)
	if err != nil {
		return false, AllocationInfo{}, err
	}

	return true, req.AllocationInfo(0), nil
}

// ReserveManagerSpace guarantees that the Manager has room to insert one more free region. The
// backing storage grows by GrowthChunk slots at a time, up to the region limit. It returns false,
// leaving the Manager unchanged, if the storage cannot grow.
func (m *Manager) ReserveManagerSpace() bool {
	count := len(m.offsets)
	if count < cap(m.offsets) && count < cap(m.sizes) {
		return true
	}

	if m.regionLimit > 0 && count+1 > m.regionLimit {
		return false
	}

	newCapacity := count + GrowthChunk
	if m.regionLimit > 0 && newCapacity > m.regionLimit {
		newCapacity = m.regionLimit
	}

	offsets := make([]int, count, newCapacity)
	sizes := make([]int, count, newCapacity)
	copy(offsets, m.offsets)
	copy(sizes, m.sizes)
	m.offsets = offsets
	m.sizes = sizes

	return true
}

// Release returns an allocation's region, including its left padding, to the free list. The
// region is merged into whichever neighboring free regions it touches; if it touches neither,
// a new free region is inserted in sorted position, which requires a prior successful call to
// ReserveManagerSpace.
//
// Release returns an error without modifying the Manager if the region falls outside the page
// or overlaps a region that is already free.
func (m *Manager) Release(info AllocationInfo) error {
	if info.Size <= 0 || info.LeftPadding < 0 {
		return errors.Wrapf(ErrInvalidRelease, "allocation of %d bytes with %d bytes of padding", info.Size, info.LeftPadding)
	}
	// Bounds are checked before Start and End are computed, since either can wrap
	if info.Offset < info.LeftPadding || info.Offset > m.size || info.Size > m.size-info.Offset {
		return errors.Wrapf(ErrInvalidRelease, "allocation of %d bytes at offset %d with %d bytes of padding is outside of a page of size %d",
			info.Size, info.Offset, info.LeftPadding, m.size)
	}

	start := info.Start()
	end := info.End()

	index, found := slices.BinarySearch(m.offsets, start)
	if found {
		return errors.Wrapf(ErrInvalidRelease, "region [%d, %d) begins at a free region", start, end)
	}

	prev := index - 1
	count := len(m.offsets)

	if prev >= 0 && m.offsets[prev]+m.sizes[prev] > start {
		return errors.Wrapf(ErrInvalidRelease, "region [%d, %d) overlaps free region [%d, %d)", start, end, m.offsets[prev], m.offsets[prev]+m.sizes[prev])
	}
	if index < count && m.offsets[index] < end {
		return errors.Wrapf(ErrInvalidRelease, "region [%d, %d) overlaps free region [%d, %d)", start, end, m.offsets[index], m.offsets[index]+m.sizes[index])
	}

	length := end - start
	mergePrev := prev >= 0 && m.offsets[prev]+m.sizes[prev] == start
	mergeNext := index < count && m.offsets[index] == end

	switch {
	case mergePrev && mergeNext:
		m.sizes[prev] += length + m.sizes[index]
		m.offsets = slices.Delete(m.offsets, index, index+1)
		m.sizes = slices.Delete(m.sizes, index, index+1)
	case mergePrev:
		m.sizes[prev] += length
	case mergeNext:
		m.offsets[index] = start
		m.sizes[index] += length
	default:
		if count >= cap(m.offsets) || count >= cap(m.sizes) {
			panic("free space manager released a region without reserved capacity")
		}
		m.offsets = slices.Insert(m.offsets, index, start)
		m.sizes = slices.Insert(m.sizes, index, length)
	}

	m.sumFreeSize += length
	m.allocationCount--
	m.allocationBytes -= info.Size

	memutils.DebugValidate(m)
	return nil
}

// FreeRegions returns a copy of the free list in ascending offset order
func (m *Manager) FreeRegions() []Region {
	regions := make([]Region, len(m.offsets))
	for i := range m.offsets {
		regions[i] = Region{Offset: m.offsets[i], Size: m.sizes[i]}
	}
	return regions
}

// VisitFreeRegions calls the provided callback for each free region in ascending offset
// order, stopping at the first error
func (m *Manager) VisitFreeRegions(visit func(offset, size int) error) error {
	for i := range m.offsets {
		err := visit(m.offsets[i], m.sizes[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// VisitAllRegions calls the provided callback for every free region and every occupied span
// between them, in ascending offset order. Adjacent allocations are reported as a single
// occupied span, since the Manager does not track allocation boundaries.
func (m *Manager) VisitAllRegions(visit func(offset, size int, free bool) error) error {
	cursor := 0
	for i := range m.offsets {
		if m.offsets[i] > cursor {
			err := visit(cursor, m.offsets[i]-cursor, false)
			if err != nil {
				return err
			}
		}

		err := visit(m.offsets[i], m.sizes[i], true)
		if err != nil {
			return err
		}
		cursor = m.offsets[i] + m.sizes[i]
	}

	if cursor < m.size {
		return visit(cursor, m.size-cursor, false)
	}
	return nil
}

// Validate performs internal consistency checks on the free list
func (m *Manager) Validate() error {
	if len(m.offsets) != len(m.sizes) {
		return errors.Newf("free list has %d offsets but %d sizes", len(m.offsets), len(m.sizes))
	}

	sum := 0
	for i := range m.offsets {
		if m.sizes[i] <= 0 {
			return errors.Newf("free region %d has size %d", i, m.sizes[i])
		}
		if m.offsets[i] < 0 {
			return errors.Newf("free region %d has negative offset %d", i, m.offsets[i])
		}
		if i > 0 && m.offsets[i-1]+m.sizes[i-1] >= m.offsets[i] {
			return errors.Newf("free region %d at [%d, %d) overlaps or touches free region %d at [%d, %d)",
				i-1, m.offsets[i-1], m.offsets[i-1]+m.sizes[i-1], i, m.offsets[i], m.offsets[i]+m.sizes[i])
		}
		sum += m.sizes[i]
	}

	if count := len(m.offsets); count > 0 && m.offsets[count-1]+m.sizes[count-1] > m.size {
		return errors.Newf("last free region ends at %d, past the end of a page of size %d", m.offsets[count-1]+m.sizes[count-1], m.size)
	}

	if sum != m.sumFreeSize {
		return errors.Newf("free regions add up to %d bytes, but the sum of free bytes is %d", sum, m.sumFreeSize)
	}

	if m.allocationCount < 0 || m.allocationBytes < 0 {
		return errors.Newf("allocation count %d and allocation bytes %d must not be negative", m.allocationCount, m.allocationBytes)
	}

	if m.allocationBytes > m.size-m.sumFreeSize {
		return errors.Newf("%d bytes are allocated, but only %d bytes are occupied", m.allocationBytes, m.size-m.sumFreeSize)
	}

	if m.allocationCount == 0 && m.sumFreeSize != m.size {
		return errors.Newf("page has no allocations, but only %d of %d bytes are free", m.sumFreeSize, m.size)
	}

	return nil
}
