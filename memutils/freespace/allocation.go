package freespace

// AllocationInfo describes one committed allocation within a page. The page region it
// consumes is [Offset-LeftPadding, Offset+Size).
type AllocationInfo struct {
	// Offset is the aligned start of the allocation, in bytes from the start of the page
	Offset int
	// Size is the number of bytes that were requested. It does not include LeftPadding.
	Size int
	// LeftPadding is the number of bytes skipped before Offset to satisfy alignment. They are
	// owned by the allocation and returned with it.
	LeftPadding int
	// Page is the index of the page within the owning memory object
	Page int
}

// Start is the first byte of the page region consumed by the allocation, including padding
func (i AllocationInfo) Start() int { return i.Offset - i.LeftPadding }

// End is one past the last byte of the allocation
func (i AllocationInfo) End() int { return i.Offset + i.Size }

// ConsumedSize is the number of page bytes consumed by the allocation, including padding
func (i AllocationInfo) ConsumedSize() int { return i.Size + i.LeftPadding }

// Request is the result of a successful TryAllocate search. It can be committed with
// CommitAllocation as long as the Manager has not been modified in the meantime.
type Request struct {
	Offset      int
	Size        int
	LeftPadding int

	regionIndex  int
	regionOffset int
	regionSize   int
}

// AllocationInfo converts the request into the AllocationInfo it will describe once committed
func (r Request) AllocationInfo(page int) AllocationInfo {
	return AllocationInfo{
		Offset:      r.Offset,
		Size:        r.Size,
		LeftPadding: r.LeftPadding,
		Page:        page,
	}
}

// Region is a contiguous byte range within a page
type Region struct {
	Offset int
	Size   int
}

// End is one past the last byte of the region
func (r Region) End() int { return r.Offset + r.Size }
