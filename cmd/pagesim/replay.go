package main

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/compute/memory"
	"github.com/vkngwrapper/compute/memory/host"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

type resource interface {
	Info() memory.MemoryAllocationInfo
	Map() (unsafe.Pointer, common.VkResult, error)
	Unmap() error
	Release() error
}

type replayer struct {
	logger    *slog.Logger
	mem       *memory.Memory
	resources map[string]resource
}

func replay(logger *slog.Logger, trace *Trace, options rootOptions, out io.Writer) (err error) {
	driver, err := host.NewDriver(host.Options{
		BufferAlignment: trace.BufferAlignment,
		ImageAlignment:  trace.ImageAlignment,
		Budget:          trace.Budget,
	})
	if err != nil {
		return err
	}

	var propertyFlags core1_0.MemoryPropertyFlags
	if trace.HostVisible {
		propertyFlags = core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent
	}

	mem, err := memory.New(logger, driver, memory.CreateOptions{
		MemoryTypeIndex: trace.MemoryTypeIndex,
		PropertyFlags:   propertyFlags,
		PageSize:        trace.PageSize,
		MaxPageCount:    trace.MaxPageCount,
		FreeRegionLimit: trace.FreeRegionLimit,
		UseMutex:        options.useMutex,
	})
	if err != nil {
		return err
	}

	r := &replayer{
		logger:    logger,
		mem:       mem,
		resources: make(map[string]resource),
	}
	defer func() {
		closeErr := r.close()
		if err == nil {
			err = closeErr
		}
	}()

	for index, op := range trace.Ops {
		opErr := r.apply(op)
		if op.ExpectError {
			if opErr == nil {
				return errors.Newf("op %d (%s %s) succeeded but was expected to fail", index, op.Op, op.Name)
			}
			logger.Info("expected failure", slog.Int("op", index), slog.String("error", opErr.Error()))
			continue
		}
		if opErr != nil {
			return errors.Wrapf(opErr, "op %d (%s %s)", index, op.Op, op.Name)
		}
	}

	err = mem.Validate()
	if err != nil {
		return errors.Wrap(err, "memory failed validation after replay")
	}

	_, err = fmt.Fprintln(out, mem.BuildStatsString(options.detailed))
	return err
}

func (r *replayer) apply(op Op) error {
	switch op.Op {
	case opBuffer:
		return r.createBuffer(op)
	case opImage:
		return r.createImage(op)
	case opRelease:
		res, err := r.lookup(op.Name)
		if err != nil {
			return err
		}
		delete(r.resources, op.Name)
		return res.Release()
	case opMap:
		return r.mapResource(op)
	case opUnmap:
		res, err := r.lookup(op.Name)
		if err != nil {
			return err
		}
		return res.Unmap()
	case opFreeEmpty:
		freed := r.mem.FreeEmptyPages()
		r.logger.Info("freed empty pages", slog.Int("count", freed))
		return nil
	}

	return errors.Newf("unknown op type %q", op.Op)
}

func (r *replayer) lookup(name string) (resource, error) {
	res, ok := r.resources[name]
	if !ok {
		return nil, errors.Newf("no live resource is named %q", name)
	}
	return res, nil
}

func (r *replayer) createBuffer(op Op) error {
	if _, exists := r.resources[op.Name]; exists {
		return errors.Newf("a resource named %q already exists", op.Name)
	}

	usage, err := op.bufferUsage()
	if err != nil {
		return err
	}

	buffer, _, err := r.mem.CreateBuffer(op.Size, usage)
	if err != nil {
		return err
	}
	buffer.SetName(op.Name)

	r.resources[op.Name] = buffer
	return nil
}

func (r *replayer) createImage(op Op) error {
	if _, exists := r.resources[op.Name]; exists {
		return errors.Newf("a resource named %q already exists", op.Name)
	}

	desc, err := op.imageDescriptor()
	if err != nil {
		return err
	}

	image, _, err := r.mem.CreateImage(desc)
	if err != nil {
		return err
	}
	image.SetName(op.Name)

	r.resources[op.Name] = image
	return nil
}

func (r *replayer) mapResource(op Op) error {
	res, err := r.lookup(op.Name)
	if err != nil {
		return err
	}

	ptr, _, err := res.Map()
	if err != nil {
		return err
	}

	if op.Fill != nil {
		data := unsafe.Slice((*byte)(ptr), res.Info().Size)
		for i := range data {
			data[i] = *op.Fill
		}
	}

	return nil
}

// close releases whatever the trace left live, in name order, and destroys the memory
func (r *replayer) close() error {
	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) > 0 {
		r.logger.Info("releasing resources left live by the trace", slog.Int("count", len(names)))
	}

	for _, name := range names {
		err := r.resources[name].Release()
		if err != nil {
			return errors.Wrapf(err, "failed to release %q", name)
		}
		delete(r.resources, name)
	}

	return r.mem.Destroy()
}
