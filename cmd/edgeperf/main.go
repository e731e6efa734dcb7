package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime"

	"github.com/sbl8/edgenet/core"
	"github.com/sbl8/edgenet/kernels"
	edgenet_runtime "github.com/sbl8/edgenet/runtime"
)

var (
	testType = flag.String("test", "all", "Test type: all, mac, conv")
	size     = flag.Int("size", 1024, "MAC vector length")
	extent   = flag.Int("extent", 32, "Height and width of the convolution input")
	channels = flag.Int("channels", 16, "Input and output channels of the convolution")
	iter     = flag.Int("iter", 1000, "Number of iterations")
	trace    = flag.Bool("trace", false, "Log the running mean after every iteration")
)

func main() {
	flag.Parse()

	fmt.Printf("edgenet Kernel Performance Tool\n")
	fmt.Printf("===============================\n")
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("CPUs: %d\n", runtime.NumCPU())
	fmt.Printf("Iterations: %d\n", *iter)
	fmt.Printf("\n")

	if *iter < 1 || *size < 1 || *extent < 1 || *channels < 1 {
		log.Fatalf("sizes and iterations must be positive")
	}

	switch *testType {
	case "all":
		runMACTests()
		runConvTests()
	case "mac":
		runMACTests()
	case "conv":
		runConvTests()
	default:
		fmt.Printf("Unknown test type: %s\n", *testType)
		os.Exit(1)
	}
}

// measure runs fn iter times and returns the running mean duration in
// microseconds.
func measure(name string, fn func()) edgenet_runtime.RunningMean {
	var mean edgenet_runtime.RunningMean
	for i := 0; i < *iter; i++ {
		if *trace {
			edgenet_runtime.Measure(name, fn, &mean)
			continue
		}
		start := edgenet_runtime.Tick()
		fn()
		mean.Add(float64(edgenet_runtime.Tick().Sub(start).Nanoseconds()) / 1e3)
	}
	return mean
}

func report(name string, mean edgenet_runtime.RunningMean, ops int) {
	fmt.Printf("%-24s %10.3f us  (%.2f Mmac/s)\n", name+":", mean.Mean, float64(ops)/mean.Mean)
}

func runMACTests() {
	fmt.Printf("MAC Performance (%d elements)\n", *size)
	fmt.Printf("-----------------------------\n")

	qin, qw := randomInts[int8](*size), randomInts[int8](*size)
	uin := randomInts[uint8](*size)
	fin, fw := randomFloats(*size), randomFloats(*size)

	var qsum int32
	var fsum float32
	report("int8 x int8", measure("mac_int8", func() {
		qsum = kernels.MacsOnRange(*size, qin, qw, int32(0), 1, 1)
	}), *size)
	report("uint8 x int8", measure("mac_uint8", func() {
		qsum = kernels.MacsOnRange(*size, uin, qw, int32(0), 1, 1)
	}), *size)
	report("float32", measure("mac_float32", func() {
		fsum = kernels.MacsOnRange(*size, fin, fw, float32(0), 1, 1)
	}), *size)

	// a weight stride the width of a channel block, as in a 1x1 convolution
	n := *size / 4
	report("int8 strided", measure("mac_int8_strided", func() {
		qsum = kernels.MacsOnRange(n, qin, qw, int32(0), 1, 4)
	}), n)

	_, _ = qsum, fsum
	fmt.Printf("\n")
}

func runConvTests() {
	in := core.Shape{Height: *extent, Width: *extent, Channels: *channels}
	fmt.Printf("Convolution Performance (%v, 3x3)\n", in)
	fmt.Printf("---------------------------------------\n")

	cfg := kernels.ConvConfig{
		In:         kernels.Port{Shape: in},
		Out:        kernels.Port{Shape: in},
		Window:     kernels.Window{KernelH: 3, KernelW: 3, PadY: 1, PadX: 1},
		Activation: kernels.Rectifier,
	}
	macs := in.Size() * 9 * in.Channels

	fconv, err := kernels.NewConv[float32, float32, float32, float32](cfg,
		randomFloats(in.Channels*9*in.Channels), make([]float32, in.Channels))
	if err != nil {
		log.Fatalf("float conv: %v", err)
	}
	fin, fout := randomFloats(in.Size()), make([]float32, in.Size())
	report("conv float32", measure("conv_float32", func() { fconv.Propagate(fin, fout) }), macs)

	qcfg := cfg
	qcfg.Rescaling = kernels.Rescaling{Mode: kernels.ScaleSingleShift, Shift: make([]uint8, in.Channels)}
	for i := range qcfg.Rescaling.Shift {
		qcfg.Rescaling.Shift[i] = 7
	}
	qconv, err := kernels.NewConv[uint8, uint8, int8, int32](qcfg,
		randomInts[int8](in.Channels*9*in.Channels), make([]int32, in.Channels))
	if err != nil {
		log.Fatalf("quantized conv: %v", err)
	}
	qin, qout := randomInts[uint8](in.Size()), make([]uint8, in.Size())
	report("conv uint8/int8", measure("conv_uint8", func() { qconv.Propagate(qin, qout) }), macs)

	dw, err := kernels.NewDepthwise[uint8, uint8, int8, int32](qcfg,
		randomInts[int8](9*in.Channels), make([]int32, in.Channels))
	if err != nil {
		log.Fatalf("depthwise conv: %v", err)
	}
	report("depthwise uint8/int8", measure("depthwise_uint8", func() { dw.Propagate(qin, qout) }), in.Size()*9)

	fmt.Printf("\n")
}

func randomInts[T int8 | uint8](n int) []T {
	out := make([]T, n)
	for i := range out {
		out[i] = T(rand.Intn(256))
	}
	return out
}

func randomFloats(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = rand.Float32()*2 - 1
	}
	return out
}
