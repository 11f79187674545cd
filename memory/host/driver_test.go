package host_test

import (
	"math"
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/compute/memory"
	"github.com/vkngwrapper/compute/memory/host"
	"github.com/vkngwrapper/compute/memutils"
	"github.com/vkngwrapper/core/v2/core1_0"
)

func TestNewDriverDefaults(t *testing.T) {
	driver, err := host.NewDriver(host.Options{})
	require.NoError(t, err)

	buffer, res, err := driver.CreateBuffer(100, core1_0.BufferUsageStorageBuffer)
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)

	requirements := buffer.MemoryRequirements()
	require.Equal(t, 100, requirements.Size)
	require.Equal(t, host.DefaultBufferAlignment, requirements.Alignment)
	require.Equal(t, ^uint32(0), requirements.MemoryTypeBits)
	require.Equal(t, 1, driver.ResourceCount())

	buffer.Destroy()
	require.Equal(t, 0, driver.ResourceCount())
}

func TestNewDriverInvalidOptions(t *testing.T) {
	_, err := host.NewDriver(host.Options{BufferAlignment: 12})
	require.True(t, errors.Is(err, memutils.ErrNotPowerOfTwo))

	_, err = host.NewDriver(host.Options{RowPitchAlignment: 3})
	require.True(t, errors.Is(err, memutils.ErrNotPowerOfTwo))

	_, err = host.NewDriver(host.Options{Budget: -1})
	require.True(t, errors.Is(err, memutils.ErrNegativeSize))

	_, err = host.NewDriver(host.Options{MaxAllocationSize: -1})
	require.True(t, errors.Is(err, memutils.ErrNegativeSize))
}

func TestImageRowPitch(t *testing.T) {
	driver, err := host.NewDriver(host.Options{RowPitchAlignment: 64})
	require.NoError(t, err)

	desc := memory.ImageDescriptor{
		Width:    10,
		Height:   4,
		Depth:    1,
		Channels: 3,
		DataType: memory.ImageDataFloat32,
	}

	native, _, err := driver.CreateImage(desc)
	require.NoError(t, err)

	image := native.(*host.Image)
	require.Equal(t, 128, image.RowPitch)
	require.Equal(t, 512, image.MemoryRequirements().Size)
	require.Equal(t, host.DefaultImageAlignment, image.MemoryRequirements().Alignment)

	_, res, err := driver.CreateImage(memory.ImageDescriptor{Width: 1, Height: 1, Depth: 1, Channels: 5, DataType: memory.ImageDataUInt8})
	require.Equal(t, core1_0.VKErrorUnknown, res)
	require.True(t, errors.Is(err, memory.ErrInvalidArgument))
}

func TestAllocateMemoryBudget(t *testing.T) {
	driver, err := host.NewDriver(host.Options{Budget: 2048})
	require.NoError(t, err)

	first, _, err := driver.AllocateMemory(0, 1024)
	require.NoError(t, err)
	_, _, err = driver.AllocateMemory(1, 1024)
	require.NoError(t, err)
	require.Equal(t, 2048, driver.AllocatedBytes())
	require.Equal(t, 2, driver.MemoryCount())

	_, res, err := driver.AllocateMemory(0, 1)
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorOutOfDeviceMemory, res)

	first.Free()
	require.Equal(t, 1024, driver.AllocatedBytes())
	require.Equal(t, 1, driver.MemoryCount())

	_, _, err = driver.AllocateMemory(0, 1024)
	require.NoError(t, err)

	require.Panics(t, first.Free)
}

func TestAllocateMemoryHugeSize(t *testing.T) {
	driver, err := host.NewDriver(host.Options{Budget: 4096, MaxAllocationSize: 2048})
	require.NoError(t, err)

	_, _, err = driver.AllocateMemory(0, 1024)
	require.NoError(t, err)

	_, res, err := driver.AllocateMemory(0, 2049)
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorOutOfDeviceMemory, res)

	unlimited, err := host.NewDriver(host.Options{Budget: 4096, MaxAllocationSize: math.MaxInt})
	require.NoError(t, err)
	_, _, err = unlimited.AllocateMemory(0, 1024)
	require.NoError(t, err)

	_, res, err = unlimited.AllocateMemory(0, math.MaxInt-512)
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorOutOfDeviceMemory, res)
	require.Equal(t, 1024, unlimited.AllocatedBytes())
	require.Equal(t, 1, unlimited.MemoryCount())
}

func TestAllocateMemoryInvalid(t *testing.T) {
	driver, err := host.NewDriver(host.Options{})
	require.NoError(t, err)

	_, _, err = driver.AllocateMemory(0, 0)
	require.Error(t, err)
	_, _, err = driver.AllocateMemory(-1, 16)
	require.Error(t, err)
	_, _, err = driver.AllocateMemory(32, 16)
	require.Error(t, err)
	require.Equal(t, 0, driver.MemoryCount())
}

func TestBindValidation(t *testing.T) {
	driver, err := host.NewDriver(host.Options{BufferAlignment: 64})
	require.NoError(t, err)

	deviceMemory, _, err := driver.AllocateMemory(0, 256)
	require.NoError(t, err)

	testCases := map[string]struct {
		size    int
		offset  int
		success bool
	}{
		"Start":      {size: 128, offset: 0, success: true},
		"Aligned":    {size: 64, offset: 192, success: true},
		"Misaligned": {size: 64, offset: 32},
		"Overrun":    {size: 128, offset: 192},
		"Negative":   {size: 16, offset: -64},
		"Overflow":   {size: math.MaxInt - 32, offset: 64},
		"PastEnd":    {size: 16, offset: math.MaxInt - 63},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			buffer, _, err := driver.CreateBuffer(testCase.size, core1_0.BufferUsageStorageBuffer)
			require.NoError(t, err)
			defer buffer.Destroy()

			res, err := buffer.Bind(deviceMemory, testCase.offset)
			if testCase.success {
				require.NoError(t, err)
				require.Equal(t, core1_0.VKSuccess, res)
				require.Equal(t, testCase.offset, buffer.(*host.Buffer).BoundOffset())
				require.Len(t, buffer.(*host.Buffer).Bytes(), testCase.size)
			} else {
				require.Error(t, err)
				require.Equal(t, -1, buffer.(*host.Buffer).BoundOffset())
			}
		})
	}
}

func TestBindTwice(t *testing.T) {
	driver, err := host.NewDriver(host.Options{})
	require.NoError(t, err)

	deviceMemory, _, err := driver.AllocateMemory(0, 256)
	require.NoError(t, err)
	buffer, _, err := driver.CreateBuffer(16, core1_0.BufferUsageStorageBuffer)
	require.NoError(t, err)

	_, err = buffer.Bind(deviceMemory, 0)
	require.NoError(t, err)
	_, err = buffer.Bind(deviceMemory, 16)
	require.Error(t, err)

	buffer.Destroy()
	require.True(t, buffer.(*host.Buffer).Destroyed())
	require.Panics(t, buffer.Destroy)
}

func TestMapUnmap(t *testing.T) {
	driver, err := host.NewDriver(host.Options{})
	require.NoError(t, err)

	native, _, err := driver.AllocateMemory(0, 64)
	require.NoError(t, err)
	deviceMemory := native.(*host.DeviceMemory)

	_, res, err := deviceMemory.Map(32, 64)
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorMemoryMapFailed, res)

	ptr, _, err := deviceMemory.Map(16, 16)
	require.NoError(t, err)
	require.True(t, deviceMemory.Mapped())

	data := unsafe.Slice((*byte)(ptr), 16)
	data[0] = 0xAB
	require.Equal(t, byte(0xAB), deviceMemory.Bytes()[16])

	_, _, err = deviceMemory.Map(0, 16)
	require.Error(t, err)

	deviceMemory.Unmap()
	require.False(t, deviceMemory.Mapped())
	require.Panics(t, deviceMemory.Unmap)

	deviceMemory.Free()
	_, _, err = deviceMemory.Map(0, 16)
	require.Error(t, err)
}
