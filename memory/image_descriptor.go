package memory

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// ImageDataType is the numeric type of each channel of an image
type ImageDataType int32

const (
	ImageDataUnknown ImageDataType = iota
	// ImageDataUNorm8 is an unsigned 8-bit integer read as a float in [0, 1]
	ImageDataUNorm8
	ImageDataUInt8
	ImageDataSInt8
	ImageDataUInt16
	ImageDataSInt16
	ImageDataFloat16
	ImageDataUInt32
	ImageDataSInt32
	ImageDataFloat32
)

var imageDataTypeMapping = map[ImageDataType]string{
	ImageDataUnknown: "ImageDataUnknown",
	ImageDataUNorm8:  "ImageDataUNorm8",
	ImageDataUInt8:   "ImageDataUInt8",
	ImageDataSInt8:   "ImageDataSInt8",
	ImageDataUInt16:  "ImageDataUInt16",
	ImageDataSInt16:  "ImageDataSInt16",
	ImageDataFloat16: "ImageDataFloat16",
	ImageDataUInt32:  "ImageDataUInt32",
	ImageDataSInt32:  "ImageDataSInt32",
	ImageDataFloat32: "ImageDataFloat32",
}

func (t ImageDataType) String() string {
	str, ok := imageDataTypeMapping[t]
	if !ok {
		return "unknown ImageDataType"
	}

	return str
}

// BytesPerChannel is the size in bytes of a single channel of this type, or 0 for
// ImageDataUnknown
func (t ImageDataType) BytesPerChannel() int {
	switch t {
	case ImageDataUNorm8, ImageDataUInt8, ImageDataSInt8:
		return 1
	case ImageDataUInt16, ImageDataSInt16, ImageDataFloat16:
		return 2
	case ImageDataUInt32, ImageDataSInt32, ImageDataFloat32:
		return 4
	}

	return 0
}

// ImageDescriptor describes an image to be created by Memory.CreateImage. A Depth of 1
// describes a 2D image.
type ImageDescriptor struct {
	Width    int
	Height   int
	Depth    int
	Channels int
	DataType ImageDataType

	Usage  core1_0.ImageUsageFlags
	Tiling core1_0.ImageTiling
}

// Validate returns an error wrapping ErrInvalidArgument if the descriptor cannot describe
// an image
func (d ImageDescriptor) Validate() error {
	if d.Width <= 0 || d.Height <= 0 || d.Depth <= 0 {
		return errors.Wrapf(ErrInvalidArgument, "image extent %dx%dx%d must be non-zero", d.Width, d.Height, d.Depth)
	}
	if d.Channels < 1 || d.Channels > 4 {
		return errors.Wrapf(ErrInvalidArgument, "image must have between 1 and 4 channels, but had %d", d.Channels)
	}
	if d.DataType.BytesPerChannel() == 0 {
		return errors.Wrapf(ErrInvalidArgument, "image data type %s is not supported", d.DataType)
	}

	return nil
}

// TexelSize is the size in bytes of a single texel
func (d ImageDescriptor) TexelSize() int {
	return d.Channels * d.DataType.BytesPerChannel()
}

// PackedSize is the size in bytes of the image's texels laid out with no row padding
func (d ImageDescriptor) PackedSize() int {
	return d.Width * d.Height * d.Depth * d.TexelSize()
}
