package freespace

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/compute/memutils"
)

// AddStatistics adds this page to the provided statistics
func (m *Manager) AddStatistics(stats *memutils.Statistics) {
	stats.PageCount++
	stats.PageBytes += m.size
	stats.AllocationCount += m.allocationCount
	stats.AllocationBytes += m.allocationBytes
}

// AddDetailedStatistics adds this page and its free regions to the provided statistics.
// The Manager does not know the size of individual allocations, so the caller is
// responsible for calling AddAllocation for each allocation made from this page.
func (m *Manager) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.PageCount++
	stats.PageBytes += m.size

	for _, size := range m.sizes {
		stats.AddUnusedRange(size)
	}
}

// BlockJsonData populates a json object with information about this page and its free regions
func (m *Manager) BlockJsonData(json *jwriter.ObjectState) {
	json.Name("TotalBytes").Int(m.size)
	json.Name("UnusedBytes").Int(m.sumFreeSize)
	json.Name("Allocations").Int(m.allocationCount)
	json.Name("UnusedRanges").Int(len(m.offsets))

	regions := json.Name("FreeRegions").Array()
	defer regions.End()

	for i := range m.offsets {
		region := regions.Object()
		region.Name("Offset").Int(m.offsets[i])
		region.Name("Size").Int(m.sizes[i])
		region.End()
	}
}
