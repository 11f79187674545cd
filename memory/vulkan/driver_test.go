package vulkan_test

import (
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/compute/memory"
	"github.com/vkngwrapper/compute/memory/vulkan"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/mocks"
	"github.com/vkngwrapper/extensions/v2/ext_memory_priority"
	"go.uber.org/mock/gomock"
)

func TestBufferLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, _, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	driver, err := vulkan.NewDriver(device, nil, vulkan.Options{SharingMode: core1_0.SharingModeExclusive})
	require.NoError(t, err)

	mem, err := memory.New(nil, driver, memory.CreateOptions{
		MemoryTypeIndex: 1,
		PropertyFlags:   core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
		PageSize:        4096,
	})
	require.NoError(t, err)

	mockBuffer := mocks.NewMockBuffer(ctrl)
	deviceMemory := mocks.EasyMockDeviceMemory(ctrl)
	data := make([]byte, 4096)

	gomock.InOrder(
		device.EXPECT().CreateBuffer(gomock.Any(), core1_0.BufferCreateInfo{
			Size:        1000,
			Usage:       core1_0.BufferUsageStorageBuffer,
			SharingMode: core1_0.SharingModeExclusive,
		}).Return(mockBuffer, core1_0.VKSuccess, nil),
		mockBuffer.EXPECT().MemoryRequirements().Return(&core1_0.MemoryRequirements{
			Size:           1024,
			Alignment:      256,
			MemoryTypeBits: 0b11,
		}),
		device.EXPECT().AllocateMemory(gomock.Any(), core1_0.MemoryAllocateInfo{
			MemoryTypeIndex: 1,
			AllocationSize:  4096,
		}).Return(deviceMemory, core1_0.VKSuccess, nil),
		mockBuffer.EXPECT().BindBufferMemory(deviceMemory, 0).Return(core1_0.VKSuccess, nil),
		deviceMemory.EXPECT().Map(0, 1024, core1_0.MemoryMapFlags(0)).Return(unsafe.Pointer(&data[0]), core1_0.VKSuccess, nil),
		deviceMemory.EXPECT().Unmap(),
		mockBuffer.EXPECT().Destroy(nil),
		deviceMemory.EXPECT().Free(nil),
	)

	buffer, _, err := mem.CreateBuffer(1000, core1_0.BufferUsageStorageBuffer)
	require.NoError(t, err)
	require.Same(t, mockBuffer, buffer.Native().(*vulkan.Buffer).Handle())

	ptr, _, err := buffer.Map()
	require.NoError(t, err)
	require.Equal(t, unsafe.Pointer(&data[0]), ptr)

	require.NoError(t, buffer.Release())
	require.Equal(t, 1, mem.FreeEmptyPages())
	require.NoError(t, mem.Destroy())
}

func TestCreateImage(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, _, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	driver, err := vulkan.NewDriver(device, nil, vulkan.Options{})
	require.NoError(t, err)

	mockImage := mocks.NewMockImage(ctrl)
	device.EXPECT().CreateImage(gomock.Any(), core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Format:    core1_0.FormatR8G8B8A8UnsignedNormalized,
		Extent: core1_0.Extent3D{
			Width:  512,
			Height: 256,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       core1_0.Samples1,
		Tiling:        core1_0.ImageTilingOptimal,
		Usage:         core1_0.ImageUsageStorage | core1_0.ImageUsageTransferSrc,
		SharingMode:   core1_0.SharingModeExclusive,
		InitialLayout: core1_0.ImageLayoutUndefined,
	}).Return(mockImage, core1_0.VKSuccess, nil)
	mockImage.EXPECT().Destroy(nil)

	native, res, err := driver.CreateImage(memory.ImageDescriptor{
		Width:    512,
		Height:   256,
		Depth:    1,
		Channels: 4,
		DataType: memory.ImageDataUNorm8,
		Usage:    core1_0.ImageUsageStorage | core1_0.ImageUsageTransferSrc,
		Tiling:   core1_0.ImageTilingOptimal,
	})
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)

	image := native.(*vulkan.Image)
	require.Same(t, mockImage, image.Handle())
	require.Equal(t, core1_0.FormatR8G8B8A8UnsignedNormalized, image.Format())
	image.Destroy()
}

func TestCreateImageInvalidDescriptor(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, _, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	driver, err := vulkan.NewDriver(device, nil, vulkan.Options{})
	require.NoError(t, err)

	_, _, err = driver.CreateImage(memory.ImageDescriptor{
		Width:    16,
		Height:   16,
		Depth:    1,
		Channels: 4,
	})
	require.True(t, errors.Is(err, memory.ErrInvalidArgument))
}

func TestMemoryPriority(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, _, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{ext_memory_priority.ExtensionName})

	_, err := vulkan.NewDriver(device, nil, vulkan.Options{UseMemoryPriority: true, Priority: 2})
	require.True(t, errors.Is(err, memory.ErrInvalidArgument))

	driver, err := vulkan.NewDriver(device, nil, vulkan.Options{UseMemoryPriority: true, Priority: 0.75})
	require.NoError(t, err)

	deviceMemory := mocks.EasyMockDeviceMemory(ctrl)
	device.EXPECT().AllocateMemory(gomock.Any(), core1_0.MemoryAllocateInfo{
		MemoryTypeIndex: 2,
		AllocationSize:  2048,
		NextOptions: common.NextOptions{
			Next: ext_memory_priority.MemoryPriorityAllocateInfo{
				Priority: 0.75,
			},
		},
	}).Return(deviceMemory, core1_0.VKSuccess, nil)
	deviceMemory.EXPECT().Free(nil)

	allocated, _, err := driver.AllocateMemory(2, 2048)
	require.NoError(t, err)
	require.Equal(t, 2048, allocated.Size())
	require.Same(t, deviceMemory, allocated.(*vulkan.DeviceMemory).Handle())
	allocated.Free()
}

func TestMemoryPriorityUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, _, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	_, err := vulkan.NewDriver(device, nil, vulkan.Options{UseMemoryPriority: true, Priority: 0.5})
	require.True(t, errors.Is(err, memory.ErrAllocationUnsupported))
}

func TestAllocateMemoryFailurePassesThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, _, device := mocks.MockRig1_0(ctrl, common.Vulkan1_0, []string{}, []string{})

	driver, err := vulkan.NewDriver(device, nil, vulkan.Options{})
	require.NoError(t, err)

	device.EXPECT().AllocateMemory(gomock.Any(), gomock.Any()).Return(nil, core1_0.VKErrorOutOfDeviceMemory, core1_0.VKErrorOutOfDeviceMemory.ToError())

	_, res, err := driver.AllocateMemory(0, 1024)
	require.Error(t, err)
	require.Equal(t, core1_0.VKErrorOutOfDeviceMemory, res)
}

func TestFormat(t *testing.T) {
	format, err := vulkan.Format(1, memory.ImageDataFloat32)
	require.NoError(t, err)
	require.Equal(t, core1_0.FormatR32SignedFloat, format)

	format, err = vulkan.Format(2, memory.ImageDataUInt16)
	require.NoError(t, err)
	require.Equal(t, core1_0.FormatR16G16UnsignedInt, format)

	_, err = vulkan.Format(5, memory.ImageDataFloat32)
	require.True(t, errors.Is(err, memory.ErrAllocationUnsupported))

	_, err = vulkan.Format(4, memory.ImageDataUnknown)
	require.True(t, errors.Is(err, memory.ErrAllocationUnsupported))
}
