package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/compute/memory"
	"github.com/vkngwrapper/core/v2/core1_0"
)

type formatKey struct {
	channels int
	dataType memory.ImageDataType
}

var formats = map[formatKey]core1_0.Format{
	{1, memory.ImageDataUNorm8}: core1_0.FormatR8UnsignedNormalized,
	{2, memory.ImageDataUNorm8}: core1_0.FormatR8G8UnsignedNormalized,
	{3, memory.ImageDataUNorm8}: core1_0.FormatR8G8B8UnsignedNormalized,
	{4, memory.ImageDataUNorm8}: core1_0.FormatR8G8B8A8UnsignedNormalized,

	{1, memory.ImageDataUInt8}: core1_0.FormatR8UnsignedInt,
	{2, memory.ImageDataUInt8}: core1_0.FormatR8G8UnsignedInt,
	{3, memory.ImageDataUInt8}: core1_0.FormatR8G8B8UnsignedInt,
	{4, memory.ImageDataUInt8}: core1_0.FormatR8G8B8A8UnsignedInt,

	{1, memory.ImageDataSInt8}: core1_0.FormatR8SignedInt,
	{2, memory.ImageDataSInt8}: core1_0.FormatR8G8SignedInt,
	{3, memory.ImageDataSInt8}: core1_0.FormatR8G8B8SignedInt,
	{4, memory.ImageDataSInt8}: core1_0.FormatR8G8B8A8SignedInt,

	{1, memory.ImageDataUInt16}: core1_0.FormatR16UnsignedInt,
	{2, memory.ImageDataUInt16}: core1_0.FormatR16G16UnsignedInt,
	{3, memory.ImageDataUInt16}: core1_0.FormatR16G16B16UnsignedInt,
	{4, memory.ImageDataUInt16}: core1_0.FormatR16G16B16A16UnsignedInt,

	{1, memory.ImageDataSInt16}: core1_0.FormatR16SignedInt,
	{2, memory.ImageDataSInt16}: core1_0.FormatR16G16SignedInt,
	{3, memory.ImageDataSInt16}: core1_0.FormatR16G16B16SignedInt,
	{4, memory.ImageDataSInt16}: core1_0.FormatR16G16B16A16SignedInt,

	{1, memory.ImageDataFloat16}: core1_0.FormatR16SignedFloat,
	{2, memory.ImageDataFloat16}: core1_0.FormatR16G16SignedFloat,
	{3, memory.ImageDataFloat16}: core1_0.FormatR16G16B16SignedFloat,
	{4, memory.ImageDataFloat16}: core1_0.FormatR16G16B16A16SignedFloat,

	{1, memory.ImageDataUInt32}: core1_0.FormatR32UnsignedInt,
	{2, memory.ImageDataUInt32}: core1_0.FormatR32G32UnsignedInt,
	{3, memory.ImageDataUInt32}: core1_0.FormatR32G32B32UnsignedInt,
	{4, memory.ImageDataUInt32}: core1_0.FormatR32G32B32A32UnsignedInt,

	{1, memory.ImageDataSInt32}: core1_0.FormatR32SignedInt,
	{2, memory.ImageDataSInt32}: core1_0.FormatR32G32SignedInt,
	{3, memory.ImageDataSInt32}: core1_0.FormatR32G32B32SignedInt,
	{4, memory.ImageDataSInt32}: core1_0.FormatR32G32B32A32SignedInt,

	{1, memory.ImageDataFloat32}: core1_0.FormatR32SignedFloat,
	{2, memory.ImageDataFloat32}: core1_0.FormatR32G32SignedFloat,
	{3, memory.ImageDataFloat32}: core1_0.FormatR32G32B32SignedFloat,
	{4, memory.ImageDataFloat32}: core1_0.FormatR32G32B32A32SignedFloat,
}

// Format returns the Vulkan format with the provided number of channels of the provided type
func Format(channels int, dataType memory.ImageDataType) (core1_0.Format, error) {
	format, ok := formats[formatKey{channels, dataType}]
	if !ok {
		return 0, errors.Wrapf(memory.ErrAllocationUnsupported, "no format has %d channels of %s", channels, dataType)
	}

	return format, nil
}
