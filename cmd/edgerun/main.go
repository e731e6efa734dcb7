package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"github.com/sbl8/edgenet/compiler"
	"github.com/sbl8/edgenet/core"
	"github.com/sbl8/edgenet/dump"
	edgenet_runtime "github.com/sbl8/edgenet/runtime"
)

func main() {
	var (
		params  = flag.String("params", "", "Parameter bundle of the network")
		input   = flag.String("input", "", "Raw little-endian input tensor (default stdin)")
		output  = flag.String("o", "", "Write the output dump to this file (default stdout)")
		format  = flag.String("format", "hwc", "Output dump layout: hwc or chw")
		workers = flag.Int("workers", runtime.NumCPU(), "Number of worker goroutines")
		repeat  = flag.Int("repeat", 1, "Number of inferences to run")
		bench   = flag.Bool("bench", false, "Log running mean timings of every layer")
		verbose = flag.Bool("verbose", false, "Enable verbose output")
		version = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *version {
		fmt.Println("edgerun - edgenet inference runner v1.0.0")
		fmt.Printf("Built with Go %s\n", runtime.Version())
		return
	}

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <network.json>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	dumpFormat, err := dump.ParseFormat(*format)
	if err != nil {
		log.Fatalf("invalid -format: %v", err)
	}
	if *repeat < 1 {
		log.Fatalf("invalid -repeat %d", *repeat)
	}

	copts := compiler.DefaultOptions()
	copts.Logger = logger
	prog, plan, err := compiler.CompileFiles(args[0], *params, copts)
	if err != nil {
		log.Fatalf("failed to compile network: %v", err)
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "Compiled %s: %d steps, %d bytes of memory, peak live %d bytes\n",
			prog.Name, len(prog.Steps), prog.MemoryBytes, plan.Peak())
	}

	opts := edgenet_runtime.Options{
		Workers:     *workers,
		EnableStats: *verbose,
		Benchmark:   *bench,
		Logger:      logger,
	}
	engine, err := edgenet_runtime.NewEngine(prog, &opts)
	if err != nil {
		log.Fatalf("failed to create engine: %v", err)
	}

	var in io.Reader = os.Stdin
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatalf("failed to open input: %v", err)
		}
		defer f.Close()
		in = f
	}
	if err := feed(engine, bufio.NewReader(in)); err != nil {
		log.Fatalf("failed to read input: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	for i := 0; i < *repeat; i++ {
		if err := engine.Run(ctx); err != nil {
			log.Fatalf("inference failed: %v", err)
		}
	}

	var out io.Writer = os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("failed to create output: %v", err)
		}
		defer f.Close()
		out = f
	}
	if err := emit(engine, out, dumpFormat); err != nil {
		log.Fatalf("failed to write output: %v", err)
	}

	if *verbose {
		stats := engine.Stats()
		fmt.Fprintf(os.Stderr, "Ran %d inferences, average latency %v\n", stats.TotalExecutions, stats.AverageLatency)
		for kind, n := range stats.KernelExecutions {
			fmt.Fprintf(os.Stderr, "  %-10v %d\n", kind, n)
		}
	}
}

// feed decodes the input tensor in the storage type of the input port.
func feed(e *edgenet_runtime.Engine, r io.Reader) error {
	switch t := e.Program().Input.Type; t {
	case core.Float32:
		return feedTyped[float32](e, r)
	case core.Int8:
		return feedTyped[int8](e, r)
	case core.Uint8:
		return feedTyped[uint8](e, r)
	default:
		return fmt.Errorf("unsupported input type %v", t)
	}
}

func feedTyped[T core.Element](e *edgenet_runtime.Engine, r io.Reader) error {
	data := make([]T, e.Program().Input.Shape.Size())
	if err := core.ReadBuffer(r, data); err != nil {
		return err
	}
	return edgenet_runtime.WriteInput(e, data)
}

// emit dumps the output tensor in the storage type of the output port.
func emit(e *edgenet_runtime.Engine, w io.Writer, f dump.Format) error {
	switch t := e.Program().Output.Type; t {
	case core.Float32:
		return emitTyped[float32](e, w, f)
	case core.Int8:
		return emitTyped[int8](e, w, f)
	case core.Uint8:
		return emitTyped[uint8](e, w, f)
	case core.Int32:
		return emitTyped[int32](e, w, f)
	default:
		return fmt.Errorf("unsupported output type %v", t)
	}
}

func emitTyped[T core.Element](e *edgenet_runtime.Engine, w io.Writer, f dump.Format) error {
	data, err := edgenet_runtime.ReadOutput[T](e)
	if err != nil {
		return err
	}
	s := e.Program().Output.Shape
	return dump.Write(w, data, s, core.At(0, s.Channels, s.Positions()), f)
}
