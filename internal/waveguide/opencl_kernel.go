//go:build opencl

package waveguide

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
)

const waveguideKernelSource = `
#define FLAG_INSIDE 1u
#define FAULT_INF 1
#define FAULT_NAN 2
#define FAULT_OUTSIDE_MESH 4
#define FAULT_SUSPICIOUS_BOUNDARY 8

__kernel void waveguide_step(
    __global const float* previous,
    __global const float* current,
    __global float* next,
    __global const uint* flags,
    __global const int* first_face,
    __global const int* face_material,
    __global float* face_state,
    __global const float* coeff_b,
    __global const float* coeff_a,
    const int order,
    const int materials,
    const int dim_x,
    const int dim_y,
    const int size,
    const float courant_sq,
    const float half_courant,
    __global volatile int* fault)
{
    int idx = get_global_id(0);
    if (idx >= size) {
        return;
    }
    uint f = flags[idx];
    if ((f & FLAG_INSIDE) == 0u) {
        return;
    }
    int plane = dim_x * dim_y;
    int strides[6] = {-1, 1, -dim_x, dim_x, -plane, plane};
    uint mask = (f >> 1) & 0x3fu;
    float c = current[idx];
    float pm = previous[idx];

    float present = 0.0f;
    int faces = 0;
    for (int d = 0; d < 6; ++d) {
        if (mask & (1u << d)) {
            faces++;
            continue;
        }
        int n = idx + strides[d];
        if (n < 0 || n >= size || (flags[n] & FLAG_INSIDE) == 0u) {
            atomic_or(fault, FAULT_OUTSIDE_MESH);
            return;
        }
        present += current[n];
    }

    float result;
    if (faces == 0) {
        result = (2.0f - 6.0f * courant_sq) * c + courant_sq * present - pm;
    } else {
        int first = first_face[idx];
        float sum_b0 = 0.0f;
        float sum_s1 = 0.0f;
        for (int k = 0; k < faces; ++k) {
            int m = face_material[first + k];
            if (m < 0 || m >= materials) {
                atomic_or(fault, FAULT_SUSPICIOUS_BOUNDARY);
                return;
            }
            sum_b0 += coeff_b[m * (order + 1)];
            if (order > 0) {
                sum_s1 += face_state[(first + k) * order];
            }
        }
        result = ((2.0f - (6.0f - faces) * courant_sq) * c +
                  courant_sq * present +
                  (half_courant * sum_b0 - 1.0f) * pm -
                  half_courant * sum_s1) /
                 (1.0f + half_courant * sum_b0);

        float x = result - pm;
        for (int k = 0; k < faces && order > 0; ++k) {
            int base = face_material[first + k] * (order + 1);
            __global float* s = face_state + (first + k) * order;
            float g = coeff_b[base] * x + s[0];
            for (int j = 0; j < order; ++j) {
                float carry = (j + 1 < order) ? s[j + 1] : 0.0f;
                s[j] = coeff_b[base + j + 1] * x - coeff_a[base + j + 1] * g + carry;
            }
        }
    }

    if (isnan(result)) {
        atomic_or(fault, FAULT_NAN);
    } else if (isinf(result)) {
        atomic_or(fault, FAULT_INF);
    }
    next[idx] = result;
}
`

// OpenCLKernel runs the node update on an OpenCL device. The device keeps one
// buffer per Field slot; the host copy of the current buffer is uploaded
// after source injection and the freshly computed buffer is read back.
type OpenCLKernel struct {
	prog       *program
	context    *cl.Context
	queue      *cl.CommandQueue
	program    *cl.Program
	kernel     *cl.Kernel
	slots      [3]*cl.MemObject
	flagsBuf   *cl.MemObject
	firstBuf   *cl.MemObject
	faceBuf    *cl.MemObject
	stateBuf   *cl.MemObject
	coeffBBuf  *cl.MemObject
	coeffABuf  *cl.MemObject
	faultBuf   *cl.MemObject
	deviceName string
	coldStart  bool
}

func selectDevice() (*cl.Device, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms; install OpenCL drivers and verify with `clinfo`"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	if len(platforms) == 0 {
		return nil, errors.New("no OpenCL platforms available; ensure a vendor driver is installed and detected by `clinfo`")
	}
	for _, kind := range []cl.DeviceType{cl.DeviceTypeGPU, cl.DeviceTypeCPU} {
		for _, p := range platforms {
			devices, derr := p.GetDevices(kind)
			if derr != nil && derr != cl.ErrDeviceNotFound {
				continue
			}
			if len(devices) > 0 {
				return devices[0], nil
			}
		}
	}
	return nil, errors.New("no suitable OpenCL devices found")
}

func newOpenCLKernel(p *program) (Kernel, error) {
	device, err := selectDevice()
	if err != nil {
		return nil, err
	}
	k := &OpenCLKernel{prog: p, deviceName: device.Name(), coldStart: true}
	if err := k.init(device); err != nil {
		k.Close()
		return nil, err
	}
	waveDebug("opencl kernel on %s: %d nodes, %d faces", k.deviceName, p.size, len(p.faceMat))
	return k, nil
}

func (k *OpenCLKernel) init(device *cl.Device) error {
	var err error
	if k.context, err = cl.CreateContext([]*cl.Device{device}); err != nil {
		return fmt.Errorf("creating OpenCL context: %w", err)
	}
	if k.queue, err = k.context.CreateCommandQueue(device, 0); err != nil {
		return fmt.Errorf("creating OpenCL command queue: %w", err)
	}
	if k.program, err = k.context.CreateProgramWithSource([]string{waveguideKernelSource}); err != nil {
		return fmt.Errorf("creating OpenCL program: %w", err)
	}
	if err := k.program.BuildProgram([]*cl.Device{device}, ""); err != nil {
		if buildErr, ok := err.(cl.BuildError); ok {
			return fmt.Errorf("building OpenCL program: %s", string(buildErr))
		}
		return fmt.Errorf("building OpenCL program: %w", err)
	}
	if k.kernel, err = k.program.CreateKernel("waveguide_step"); err != nil {
		return fmt.Errorf("creating OpenCL kernel: %w", err)
	}

	p := k.prog
	floatSize := int(unsafe.Sizeof(float32(0)))
	intSize := int(unsafe.Sizeof(int32(0)))
	for i := range k.slots {
		if k.slots[i], err = k.buffer(cl.MemReadWrite, p.size*floatSize); err != nil {
			return fmt.Errorf("allocating pressure buffer %d: %w", i, err)
		}
	}
	if k.flagsBuf, err = k.upload(unsafe.Pointer(unsafe.SliceData(p.flags)), len(p.flags)*intSize); err != nil {
		return fmt.Errorf("uploading node flags: %w", err)
	}
	if k.firstBuf, err = k.upload(unsafe.Pointer(unsafe.SliceData(p.firstFace)), len(p.firstFace)*intSize); err != nil {
		return fmt.Errorf("uploading face offsets: %w", err)
	}
	if k.faceBuf, err = k.upload(unsafe.Pointer(unsafe.SliceData(p.faceMat)), len(p.faceMat)*intSize); err != nil {
		return fmt.Errorf("uploading face materials: %w", err)
	}
	if k.coeffBBuf, err = k.upload(unsafe.Pointer(unsafe.SliceData(p.coeffB)), len(p.coeffB)*floatSize); err != nil {
		return fmt.Errorf("uploading numerators: %w", err)
	}
	if k.coeffABuf, err = k.upload(unsafe.Pointer(unsafe.SliceData(p.coeffA)), len(p.coeffA)*floatSize); err != nil {
		return fmt.Errorf("uploading denominators: %w", err)
	}
	if k.stateBuf, err = k.buffer(cl.MemReadWrite, len(p.state)*floatSize); err != nil {
		return fmt.Errorf("allocating filter state: %w", err)
	}
	if k.faultBuf, err = k.buffer(cl.MemReadWrite, intSize); err != nil {
		return fmt.Errorf("allocating fault flag: %w", err)
	}
	if err := k.Reset(); err != nil {
		return err
	}

	if err := k.kernel.SetArgs(
		k.slots[rolePrevious],
		k.slots[roleCurrent],
		k.slots[roleNext],
		k.flagsBuf,
		k.firstBuf,
		k.faceBuf,
		k.stateBuf,
		k.coeffBBuf,
		k.coeffABuf,
		int32(p.order),
		int32(p.materials),
		int32(p.dim.X),
		int32(p.dim.Y),
		int32(p.size),
		courantSquared,
		halfCourant,
		k.faultBuf,
	); err != nil {
		return fmt.Errorf("setting kernel arguments: %w", err)
	}
	return nil
}

// buffer allocates a device buffer; empty sizes get a one-word allocation so
// that every kernel argument is bound.
func (k *OpenCLKernel) buffer(flags cl.MemFlag, size int) (*cl.MemObject, error) {
	return k.context.CreateEmptyBuffer(flags, max(size, 4))
}

func (k *OpenCLKernel) upload(ptr unsafe.Pointer, size int) (*cl.MemObject, error) {
	buf, err := k.buffer(cl.MemReadOnly, size)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return buf, nil
	}
	if _, err := k.queue.EnqueueWriteBuffer(buf, true, 0, size, ptr, nil); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

func (k *OpenCLKernel) writeInt(buf *cl.MemObject, v int32) error {
	_, err := k.queue.EnqueueWriteBuffer(buf, true, 0, int(unsafe.Sizeof(v)), unsafe.Pointer(&v), nil)
	return err
}

// Reset clears the device filter memory and forces a full upload on the next
// step.
func (k *OpenCLKernel) Reset() error {
	k.coldStart = true
	if len(k.prog.state) == 0 {
		return nil
	}
	zero := make([]float32, len(k.prog.state))
	if _, err := k.queue.EnqueueWriteBufferFloat32(k.stateBuf, true, 0, zero, nil); err != nil {
		return fmt.Errorf("clearing filter state: %w", err)
	}
	return nil
}

// Step uploads the current field, runs the kernel and reads back next.
func (k *OpenCLKernel) Step(f *Field) (Fault, error) {
	if f.Size() != k.prog.size {
		return 0, fmt.Errorf("field has %d nodes, kernel expects %d", f.Size(), k.prog.size)
	}
	prev, curr, next := k.slots[f.slot(rolePrevious)], k.slots[f.slot(roleCurrent)], k.slots[f.slot(roleNext)]
	if k.coldStart {
		if _, err := k.queue.EnqueueWriteBufferFloat32(prev, false, 0, f.Previous(), nil); err != nil {
			return 0, fmt.Errorf("writing previous buffer: %w", err)
		}
		if _, err := k.queue.EnqueueWriteBufferFloat32(next, false, 0, f.Next(), nil); err != nil {
			return 0, fmt.Errorf("writing next buffer: %w", err)
		}
		k.coldStart = false
	}
	if _, err := k.queue.EnqueueWriteBufferFloat32(curr, false, 0, f.Current(), nil); err != nil {
		return 0, fmt.Errorf("writing current buffer: %w", err)
	}
	if err := k.writeInt(k.faultBuf, 0); err != nil {
		return 0, fmt.Errorf("clearing fault flag: %w", err)
	}
	if err := k.kernel.SetArgBuffer(0, prev); err != nil {
		return 0, fmt.Errorf("binding previous buffer: %w", err)
	}
	if err := k.kernel.SetArgBuffer(1, curr); err != nil {
		return 0, fmt.Errorf("binding current buffer: %w", err)
	}
	if err := k.kernel.SetArgBuffer(2, next); err != nil {
		return 0, fmt.Errorf("binding next buffer: %w", err)
	}
	if _, err := k.queue.EnqueueNDRangeKernel(k.kernel, nil, []int{k.prog.size}, nil, nil); err != nil {
		return 0, fmt.Errorf("enqueueing kernel: %w", err)
	}
	if _, err := k.queue.EnqueueReadBufferFloat32(next, true, 0, f.Next(), nil); err != nil {
		return 0, fmt.Errorf("reading next buffer: %w", err)
	}
	var fault int32
	if _, err := k.queue.EnqueueReadBuffer(k.faultBuf, true, 0, int(unsafe.Sizeof(fault)), unsafe.Pointer(&fault), nil); err != nil {
		return 0, fmt.Errorf("reading fault flag: %w", err)
	}
	return Fault(fault), nil
}

// Name returns the device name.
func (k *OpenCLKernel) Name() string { return "opencl: " + k.deviceName }

// Close releases every device object.
func (k *OpenCLKernel) Close() error {
	for _, b := range []**cl.MemObject{
		&k.slots[0], &k.slots[1], &k.slots[2],
		&k.flagsBuf, &k.firstBuf, &k.faceBuf, &k.stateBuf,
		&k.coeffBBuf, &k.coeffABuf, &k.faultBuf,
	} {
		if *b != nil {
			(*b).Release()
			*b = nil
		}
	}
	if k.kernel != nil {
		k.kernel.Release()
		k.kernel = nil
	}
	if k.program != nil {
		k.program.Release()
		k.program = nil
	}
	if k.queue != nil {
		k.queue.Release()
		k.queue = nil
	}
	if k.context != nil {
		k.context.Release()
		k.context = nil
	}
	return nil
}
