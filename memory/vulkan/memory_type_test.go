package vulkan_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/compute/memory"
	"github.com/vkngwrapper/compute/memory/vulkan"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/mocks"
	"go.uber.org/mock/gomock"
)

var discreteMemoryProperties = &core1_0.PhysicalDeviceMemoryProperties{
	MemoryTypes: []core1_0.MemoryType{
		{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
		{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 1},
		{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent | core1_0.MemoryPropertyHostCached, HeapIndex: 1},
		{PropertyFlags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 2},
	},
	MemoryHeaps: []core1_0.MemoryHeap{
		{Size: 1 << 30, Flags: core1_0.MemoryHeapDeviceLocal},
		{Size: 1 << 30},
		{Size: 1 << 20, Flags: core1_0.MemoryHeapDeviceLocal},
	},
}

func TestFindMemoryTypeIndex(t *testing.T) {
	testCases := map[string]struct {
		typeBits      uint32
		required      core1_0.MemoryPropertyFlags
		expectedIndex int
	}{
		"DeviceLocal": {
			typeBits:      0xffffffff,
			required:      core1_0.MemoryPropertyDeviceLocal,
			expectedIndex: 0,
		},
		"HostVisible": {
			typeBits:      0xffffffff,
			required:      core1_0.MemoryPropertyHostVisible,
			expectedIndex: 1,
		},
		"HostCached": {
			typeBits:      0xffffffff,
			required:      core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCached,
			expectedIndex: 2,
		},
		"DeviceLocalHostVisible": {
			typeBits:      0xffffffff,
			required:      core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible,
			expectedIndex: 3,
		},
		"MaskedTypeBits": {
			typeBits:      0b1000,
			required:      core1_0.MemoryPropertyDeviceLocal,
			expectedIndex: 3,
		},
		"NoRequirements": {
			typeBits:      0b0100,
			expectedIndex: 2,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			index, err := vulkan.FindMemoryTypeIndex(discreteMemoryProperties, testCase.typeBits, testCase.required)
			require.NoError(t, err)
			require.Equal(t, testCase.expectedIndex, index)
		})
	}
}

func TestFindMemoryTypeIndexNoMatch(t *testing.T) {
	_, err := vulkan.FindMemoryTypeIndex(discreteMemoryProperties, 0b0011, core1_0.MemoryPropertyDeviceLocal|core1_0.MemoryPropertyHostVisible)
	require.True(t, errors.Is(err, memory.ErrAllocationUnsupported))

	_, err = vulkan.FindMemoryTypeIndex(nil, 0xffffffff, 0)
	require.True(t, errors.Is(err, memory.ErrInvalidArgument))
}

func TestNewMemory(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, _, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	driver, err := vulkan.NewDriver(device, nil, vulkan.Options{})
	require.NoError(t, err)

	mem, err := vulkan.NewMemory(nil, driver, discreteMemoryProperties, core1_0.MemoryPropertyHostCached, memory.CreateOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, mem.MemoryTypeIndex())
	require.Equal(t, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent|core1_0.MemoryPropertyHostCached, mem.PropertyFlags())
	require.Equal(t, memory.DefaultPageSize, mem.PageSize())
	require.NoError(t, mem.Destroy())

	// The device local host visible heap is smaller than a default page
	mem, err = vulkan.NewMemory(nil, driver, discreteMemoryProperties, core1_0.MemoryPropertyDeviceLocal|core1_0.MemoryPropertyHostVisible, memory.CreateOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, mem.MemoryTypeIndex())
	require.Equal(t, 1<<20, mem.PageSize())
	require.NoError(t, mem.Destroy())
}
