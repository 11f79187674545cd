package memory

import (
	"strconv"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/compute/memutils"
)

// AddStatistics adds this Memory's pages and allocations to the provided statistics
func (m *Memory) AddStatistics(stats *memutils.Statistics) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i := range m.pages {
		m.pages[i].freeSpace.AddStatistics(stats)
	}
}

// AddDetailedStatistics adds this Memory's pages, free regions, and allocations to the
// provided statistics
func (m *Memory) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.addDetailedStatistics(stats)
}

func (m *Memory) addDetailedStatistics(stats *memutils.DetailedStatistics) {
	for i := range m.pages {
		m.pages[i].freeSpace.AddDetailedStatistics(stats)
	}

	m.allocations.Iter(func(id uint64, alloc *allocation) (stop bool) {
		stats.AddAllocation(alloc.info.Size)
		return false
	})
}

// BuildStatsString returns a json document describing this Memory. When detailed is true,
// every page is listed along with its free regions and live allocations.
func (m *Memory) BuildStatsString(detailed bool) string {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	m.addDetailedStatistics(&stats)

	writer := jwriter.NewWriter()
	objState := writer.Object()

	objState.Name("MemoryTypeIndex").Int(m.memoryTypeIndex)
	objState.Name("PropertyFlags").String(m.propertyFlags.String())
	objState.Name("PageSize").Int(m.pageSize)

	totalObj := objState.Name("Total").Object()
	stats.PrintJson(&totalObj)
	totalObj.End()

	if detailed {
		m.printDetailedMap(&objState)
	}

	objState.End()
	return string(writer.Bytes())
}

func (m *Memory) printDetailedMap(json *jwriter.ObjectState) {
	pagesObj := json.Name("Pages").Object()
	defer pagesObj.End()

	allocs := m.sortedAllocations()
	next := 0

	for pageIndex := range m.pages {
		page := &m.pages[pageIndex]

		pageObj := pagesObj.Name(strconv.Itoa(pageIndex)).Object()
		pageObj.Name("Mapped").Bool(page.mapped)
		page.freeSpace.BlockJsonData(&pageObj)

		allocArray := pageObj.Name("Suballocations").Array()
		for ; next < len(allocs) && allocs[next].info.Page == pageIndex; next++ {
			allocObj := allocArray.Object()
			allocs[next].printParameters(&allocObj)
			allocObj.End()
		}
		allocArray.End()

		pageObj.End()
	}
}

func (a *allocation) printParameters(json *jwriter.ObjectState) {
	json.Name("Type").String(a.kind.String())
	json.Name("Offset").Int(a.info.Offset)
	json.Name("Size").Int(a.info.Size)
	json.Name("LeftPadding").Int(a.info.LeftPadding)

	if a.name != "" {
		json.Name("Name").String(a.name)
	}
}
