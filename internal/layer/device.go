package layer

import (
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"
)

// Device manages the hardware resources for neural network operations.
type Device interface {
	Describe() string
}

// CPUDevice handles computations on the host CPU.
type CPUDevice struct{}

// Describe reports the processor model, core count and the SIMD level the
// gonum kernels can use.
func (d *CPUDevice) Describe() string {
	simd := "none"
	switch {
	case cpuid.CPU.Supports(cpuid.AVX512F):
		simd = "avx512"
	case cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3):
		simd = "avx2"
	case cpuid.CPU.Supports(cpuid.SSE4):
		simd = "sse4"
	case cpuid.CPU.Supports(cpuid.ASIMD):
		simd = "neon"
	}
	brand := cpuid.CPU.BrandName
	if brand == "" {
		brand = runtime.GOARCH
	}
	return fmt.Sprintf("%s (%d cores, %d threads, simd=%s)", brand, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, simd)
}

// GetDefaultDevice returns the best available device for the current
// platform. Only the CPU is supported.
func GetDefaultDevice() Device {
	return &CPUDevice{}
}
