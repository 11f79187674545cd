package memory

// PageEvent describes a page whose device memory was just allocated or is about to be freed
type PageEvent struct {
	Memory          *Memory
	// Page is the page's index within Memory. Pages are only freed from the end of the pool,
	// so the index of a freed page is always the last one.
	Page            int
	MemoryTypeIndex int
	DeviceMemory    DeviceMemory
	Size            int
}

// PageCallback observes a PageEvent. UserData is MemoryCallbackOptions.UserData.
type PageCallback func(event PageEvent, userData any)

// MemoryCallbackOptions lets consumers track the device memory backing a Memory's pages, for
// example to keep a running total against a heap budget. Either callback may be nil.
type MemoryCallbackOptions struct {
	// Allocate runs after a page's device memory has been allocated and the page added to the pool
	Allocate PageCallback
	// Free runs before a page's device memory is freed
	Free     PageCallback
	UserData any
}

type memoryCallbacks struct {
	options *MemoryCallbackOptions
	memory  *Memory
}

func (c *memoryCallbacks) pageEvent(pageIndex int) PageEvent {
	p := c.memory.pageAt(pageIndex)
	return PageEvent{
		Memory:          c.memory,
		Page:            pageIndex,
		MemoryTypeIndex: c.memory.memoryTypeIndex,
		DeviceMemory:    p.memory,
		Size:            p.freeSpace.Size(),
	}
}

func (c *memoryCallbacks) allocated(pageIndex int) {
	if c.options == nil || c.options.Allocate == nil {
		return
	}
	c.options.Allocate(c.pageEvent(pageIndex), c.options.UserData)
}

func (c *memoryCallbacks) freeing(pageIndex int) {
	if c.options == nil || c.options.Free == nil {
		return
	}
	c.options.Free(c.pageEvent(pageIndex), c.options.UserData)
}
