// Package edgenet is an inference engine for quantized convolutional
// networks on memory-constrained targets.
//
// A network is described in JSON and its trained parameters are shipped as a
// protobuf-encoded bundle. The compiler places every activation tensor in a
// single arena, reusing the bytes of tensors that are no longer read, and
// binds each layer to a kernel specialized for its storage types. The
// runtime then executes the kernels in order over that arena without
// allocating.
//
// # Architecture Overview
//
//   - core: element types, memory descriptors with wrap-around and typed
//     views over byte memory
//   - kernels: convolution, depthwise convolution, fully connected, pooling,
//     element-wise, concatenation, resize, scaling and argmax, with
//     saturation and the rescaling variants of quantized arithmetic
//   - model: network descriptions and parameter bundles
//   - compiler: shape and type inference, memory planning, kernel binding
//   - runtime: arena, engine and running-mean benchmarks
//   - dump: HWC and CHW text dumps of activation tensors
//   - cmd: command-line tools (edgec, edgerun, edgeperf)
//
// # Basic Usage
//
//	prog, _, err := compiler.CompileFiles("net.json", "net.params", compiler.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	opts := runtime.DefaultOptions()
//	engine, err := runtime.NewEngine(prog, &opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := runtime.WriteInput(engine, image); err != nil {
//	    log.Fatal(err)
//	}
//	if err := engine.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	scores, err := runtime.ReadOutput[int8](engine)
package edgenet
