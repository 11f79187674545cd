package memutils_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/compute/memutils"
)

func TestCheckPow2(t *testing.T) {
	require.NoError(t, memutils.CheckPow2(0, "zero"))
	require.NoError(t, memutils.CheckPow2(1, "one"))
	require.NoError(t, memutils.CheckPow2(uint(4096), "page"))

	err := memutils.CheckPow2(24, "alignment")
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrNotPowerOfTwo))
	require.Contains(t, err.Error(), "alignment is 24")

	require.Error(t, memutils.CheckPow2(-8, "negative"))
}

func TestCheckNonNegative(t *testing.T) {
	require.NoError(t, memutils.CheckNonNegative(0, "zero"))
	require.NoError(t, memutils.CheckNonNegative(4096, "page size"))

	err := memutils.CheckNonNegative(-1, "budget")
	require.True(t, errors.Is(err, memutils.ErrNegativeSize))
	require.Contains(t, err.Error(), "budget is -1")
}

func TestLeftPadding(t *testing.T) {
	testCases := map[string]struct {
		Offset    int
		Alignment int
		Expected  int
	}{
		"NoAlignment":      {Offset: 10, Alignment: 0, Expected: 0},
		"AlreadyAligned":   {Offset: 16, Alignment: 8, Expected: 0},
		"ZeroOffset":       {Offset: 0, Alignment: 256, Expected: 0},
		"Unaligned":        {Offset: 10, Alignment: 8, Expected: 6},
		"OneByteShort":     {Offset: 255, Alignment: 256, Expected: 1},
		"NonPowerOfTwo":    {Offset: 7, Alignment: 3, Expected: 2},
		"AlignmentOfOne":   {Offset: 13, Alignment: 1, Expected: 0},
		"OffsetBelowAlign": {Offset: 3, Alignment: 64, Expected: 61},
	}

	for testName, testCase := range testCases {
		t.Run(testName, func(t *testing.T) {
			require.Equal(t, testCase.Expected, memutils.LeftPadding(testCase.Offset, testCase.Alignment))
		})
	}
}

func TestAlign(t *testing.T) {
	require.Equal(t, 16, memutils.AlignUp(10, 8))
	require.Equal(t, 16, memutils.AlignUp(16, 8))
	require.Equal(t, 10, memutils.AlignUp(10, 0))
}

func TestDetailedStatistics(t *testing.T) {
	var stats memutils.DetailedStatistics
	stats.Clear()
	stats.PageCount = 1
	stats.PageBytes = 1024
	stats.AddAllocation(256)
	stats.AddAllocation(128)
	stats.AddUnusedRange(640)

	var other memutils.DetailedStatistics
	other.Clear()
	other.PageCount = 1
	other.PageBytes = 2048
	other.AddAllocation(2048)

	stats.AddDetailedStatistics(&other)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			PageCount:       2,
			PageBytes:       3072,
			AllocationCount: 3,
			AllocationBytes: 2432,
		},
		UnusedRangeCount:   1,
		AllocationSizeMin:  128,
		AllocationSizeMax:  2048,
		UnusedRangeSizeMin: 640,
		UnusedRangeSizeMax: 640,
	}, stats)
	require.Equal(t, 640, stats.UnusedBytes())
}
