package main

import (
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/compute/memory"
	"github.com/vkngwrapper/core/v2/core1_0"
	"gopkg.in/yaml.v3"
)

// Trace is a recorded sequence of allocator operations along with the pool they run against
type Trace struct {
	PageSize        int  `yaml:"pageSize"`
	MemoryTypeIndex int  `yaml:"memoryTypeIndex"`
	HostVisible     bool `yaml:"hostVisible"`
	Budget          int  `yaml:"budget"`
	MaxPageCount    int  `yaml:"maxPageCount"`
	FreeRegionLimit int  `yaml:"freeRegionLimit"`

	BufferAlignment int `yaml:"bufferAlignment"`
	ImageAlignment  int `yaml:"imageAlignment"`

	Ops []Op `yaml:"ops"`
}

// Op is a single step of a Trace
type Op struct {
	Op   string `yaml:"op"`
	Name string `yaml:"name"`

	// buffer
	Size  int      `yaml:"size"`
	Usage []string `yaml:"usage"`

	// image
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	Depth    int    `yaml:"depth"`
	Channels int    `yaml:"channels"`
	DataType string `yaml:"dataType"`

	// map
	Fill *byte `yaml:"fill"`

	// ExpectError marks an operation that is supposed to fail
	ExpectError bool `yaml:"expectError"`
}

const (
	opBuffer    = "buffer"
	opImage     = "image"
	opRelease   = "release"
	opMap       = "map"
	opUnmap     = "unmap"
	opFreeEmpty = "freeEmpty"
)

var bufferUsages = map[string]core1_0.BufferUsageFlags{
	"storage":      core1_0.BufferUsageStorageBuffer,
	"uniform":      core1_0.BufferUsageUniformBuffer,
	"transfer-src": core1_0.BufferUsageTransferSrc,
	"transfer-dst": core1_0.BufferUsageTransferDst,
}

var imageUsages = map[string]core1_0.ImageUsageFlags{
	"storage":      core1_0.ImageUsageStorage,
	"sampled":      core1_0.ImageUsageSampled,
	"transfer-src": core1_0.ImageUsageTransferSrc,
	"transfer-dst": core1_0.ImageUsageTransferDst,
}

var dataTypes = map[string]memory.ImageDataType{
	"unorm8":  memory.ImageDataUNorm8,
	"uint8":   memory.ImageDataUInt8,
	"sint8":   memory.ImageDataSInt8,
	"uint16":  memory.ImageDataUInt16,
	"sint16":  memory.ImageDataSInt16,
	"float16": memory.ImageDataFloat16,
	"uint32":  memory.ImageDataUInt32,
	"sint32":  memory.ImageDataSInt32,
	"float32": memory.ImageDataFloat32,
}

func loadTrace(path string) (*Trace, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open trace")
	}
	defer file.Close()

	var trace Trace
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	err = decoder.Decode(&trace)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse trace %s", path)
	}

	return &trace, trace.validate()
}

func (t *Trace) validate() error {
	for index, op := range t.Ops {
		switch op.Op {
		case opBuffer, opImage, opRelease, opMap, opUnmap:
			if op.Name == "" {
				return errors.Newf("op %d (%s) has no name", index, op.Op)
			}
		case opFreeEmpty:
		default:
			return errors.Newf("op %d has unknown type %q", index, op.Op)
		}
	}

	return nil
}

func (o Op) bufferUsage() (core1_0.BufferUsageFlags, error) {
	var usage core1_0.BufferUsageFlags
	for _, name := range o.Usage {
		flag, ok := bufferUsages[name]
		if !ok {
			return 0, errors.Newf("unknown buffer usage %q, expected one of %s", name, keys(bufferUsages))
		}
		usage |= flag
	}

	if usage == 0 {
		usage = core1_0.BufferUsageStorageBuffer
	}
	return usage, nil
}

func (o Op) imageDescriptor() (memory.ImageDescriptor, error) {
	desc := memory.ImageDescriptor{
		Width:    o.Width,
		Height:   o.Height,
		Depth:    o.Depth,
		Channels: o.Channels,
		Tiling:   core1_0.ImageTilingOptimal,
	}
	if desc.Depth == 0 {
		desc.Depth = 1
	}

	dataType := o.DataType
	if dataType == "" {
		dataType = "unorm8"
	}
	var ok bool
	desc.DataType, ok = dataTypes[dataType]
	if !ok {
		return desc, errors.Newf("unknown image data type %q, expected one of %s", o.DataType, keys(dataTypes))
	}

	for _, name := range o.Usage {
		flag, ok := imageUsages[name]
		if !ok {
			return desc, errors.Newf("unknown image usage %q, expected one of %s", name, keys(imageUsages))
		}
		desc.Usage |= flag
	}
	if desc.Usage == 0 {
		desc.Usage = core1_0.ImageUsageStorage
	}

	return desc, nil
}

func keys[T any](m map[string]T) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
