// Package runtime executes planned networks on the host CPU.
//
// Key components:
//   - Program: the ordered kernel calls of one network plus its ports
//   - Arena: the single aligned memory block all activations live in
//   - Engine: runs a Program, optionally splitting each step's rows
//     across goroutines, and keeps execution statistics
//   - RunningMean, Benchmark: per-step wall-clock timing
//
// Steps run strictly in program order. A step finishes before the next one
// starts, so a buffer region is only written once every step reading it has
// completed.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	goruntime "runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sbl8/edgenet/core"
	"github.com/sbl8/edgenet/kernels"
)

// Port names an activation buffer the caller reads or writes.
type Port struct {
	Name    string
	Type    core.DataType
	Shape   core.Shape
	Mapping core.Mapping
}

// Step is one kernel call of a Program.
type Step struct {
	Name   string
	Kernel kernels.Kernel
	// Serial forces the rows of the step to run in order on one goroutine.
	// It is set when the step writes memory it also reads.
	Serial bool
}

// Program is a fully specialized network ready for execution.
type Program struct {
	Name        string
	MemoryBytes int
	Steps       []Step
	Input       Port
	Output      Port
}

// Validate checks that the program can be bound to an arena.
func (p *Program) Validate() error {
	if p.MemoryBytes <= 0 {
		return fmt.Errorf("program %q has no memory", p.Name)
	}
	for i, s := range p.Steps {
		if s.Kernel == nil {
			return fmt.Errorf("step %d (%s) has no kernel", i, s.Name)
		}
	}
	for _, port := range []Port{p.Input, p.Output} {
		if port.Type == core.Invalid {
			return fmt.Errorf("port %q has no data type", port.Name)
		}
		if err := port.Mapping.Validate(); err != nil {
			return fmt.Errorf("port %q: %w", port.Name, err)
		}
		size := port.Type.Size()
		if port.Mapping.Extent(port.Shape.Positions(), port.Shape.Channels)*size > p.MemoryBytes {
			return fmt.Errorf("port %q exceeds program memory of %d bytes", port.Name, p.MemoryBytes)
		}
	}
	return nil
}

// Options configures engine behavior
type Options struct {
	// Workers bounds the goroutines a step's rows are split across.
	Workers     int
	EnableStats bool
	// Benchmark logs a running mean of every step's duration.
	Benchmark bool
	Logger    *slog.Logger
}

// DefaultOptions provides sensible runtime defaults
func DefaultOptions() Options {
	return Options{
		Workers:     goruntime.NumCPU(),
		EnableStats: true,
		Logger:      slog.Default(),
	}
}

// ExecutionStats tracks runtime performance metrics
type ExecutionStats struct {
	TotalExecutions  int64
	AverageLatency   time.Duration
	KernelExecutions map[kernels.Kind]int64
	ArenaBytes       int
}

// Engine runs one Program over its own Arena. Run must not be called
// concurrently with itself or with WriteInput and ReadOutput.
type Engine struct {
	prog    *Program
	arena   *Arena
	opts    Options
	log     *slog.Logger
	timings []RunningMean
	latency RunningMean
	stats   ExecutionStats
	mu      sync.RWMutex
}

// NewEngine binds prog to a freshly allocated arena.
func NewEngine(prog *Program, opts *Options) (*Engine, error) {
	if prog == nil {
		return nil, errors.New("program cannot be nil")
	}
	if err := prog.Validate(); err != nil {
		return nil, err
	}

	engineOpts := DefaultOptions()
	if opts != nil {
		engineOpts = *opts
		if opts.Workers <= 0 {
			engineOpts.Workers = 1
		}
		if opts.Logger == nil {
			engineOpts.Logger = slog.Default()
		}
	}

	regions := append(portRegions(prog.Input), portRegions(prog.Output)...)
	arena, err := NewArena(prog.MemoryBytes, dedupe(regions)...)
	if err != nil {
		return nil, fmt.Errorf("arena for %q: %w", prog.Name, err)
	}

	e := &Engine{
		prog:    prog,
		arena:   arena,
		opts:    engineOpts,
		log:     engineOpts.Logger.With("program", prog.Name),
		timings: make([]RunningMean, len(prog.Steps)),
		stats: ExecutionStats{
			KernelExecutions: make(map[kernels.Kind]int64),
			ArenaBytes:       arena.TotalSize(),
		},
	}
	e.log.Debug("engine ready", "steps", len(prog.Steps), "arena_bytes", arena.TotalSize(), "workers", engineOpts.Workers)
	return e, nil
}

// dedupe drops regions whose name is already taken, which happens when the
// input is also the output.
func dedupe(regions []ArenaRegion) []ArenaRegion {
	seen := make(map[string]bool, len(regions))
	out := regions[:0]
	for _, r := range regions {
		if !seen[r.Name] {
			seen[r.Name] = true
			out = append(out, r)
		}
	}
	return out
}

// Program returns the program the engine runs.
func (e *Engine) Program() *Program {
	return e.prog
}

// Arena returns the engine's memory.
func (e *Engine) Arena() *Arena {
	return e.arena
}

// Run executes every step once. The context is checked between steps; a
// step that has started always runs to completion.
func (e *Engine) Run(ctx context.Context) error {
	start := time.Now()
	mem := e.arena.Buffer()

	for i, step := range e.prog.Steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("before step %d (%s): %w", i, step.Name, err)
		}

		t0 := Tick()
		if err := e.runStep(ctx, mem, step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Name, err)
		}
		if e.opts.Benchmark {
			benchmark(e.log, step.Name, t0, Tick(), &e.timings[i])
		}
		if e.opts.EnableStats {
			e.updateKernelStats(step.Kernel.Kind())
		}
	}

	e.updateExecutionStats(start)
	return nil
}

func (e *Engine) runStep(ctx context.Context, mem []byte, step Step) error {
	rows := step.Kernel.Rows()
	workers := min(e.opts.Workers, rows)
	if step.Serial || workers <= 1 {
		step.Kernel.RunRows(mem, 0, rows)
		return nil
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	chunk := (rows + workers - 1) / workers
	for y0 := 0; y0 < rows; y0 += chunk {
		y1 := min(y0+chunk, rows)
		g.Go(func() error {
			step.Kernel.RunRows(mem, y0, y1)
			return nil
		})
	}
	return g.Wait()
}

// updateKernelStats safely updates kernel execution statistics
func (e *Engine) updateKernelStats(kind kernels.Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.KernelExecutions[kind]++
}

// updateExecutionStats updates total executions and average latency
func (e *Engine) updateExecutionStats(start time.Time) {
	if !e.opts.EnableStats {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.latency.Add(float64(time.Since(start)))
	e.stats.TotalExecutions = int64(e.latency.Count)
	e.stats.AverageLatency = time.Duration(e.latency.Mean)
}

// Stats returns current execution statistics
func (e *Engine) Stats() ExecutionStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	// Return a copy to avoid races
	stats := e.stats
	stats.KernelExecutions = make(map[kernels.Kind]int64, len(e.stats.KernelExecutions))
	for k, v := range e.stats.KernelExecutions {
		stats.KernelExecutions[k] = v
	}
	return stats
}

// Timings returns the running mean duration of every step, in program
// order. All means are zero unless Options.Benchmark is set.
func (e *Engine) Timings() []RunningMean {
	return append([]RunningMean(nil), e.timings...)
}

// WriteInput copies a dense HWC tensor into the input buffer.
func WriteInput[T core.Element](e *Engine, data []T) error {
	return writePort(e.arena, e.prog.Input, data)
}

// ReadOutput copies the output buffer out as a dense HWC tensor.
func ReadOutput[T core.Element](e *Engine) ([]T, error) {
	return readPort[T](e.arena, e.prog.Output)
}

func checkPort[T core.Element](p Port, n int) error {
	if got := core.TypeOf[T](); got != p.Type {
		return fmt.Errorf("port %q holds %v, not %v", p.Name, p.Type, got)
	}
	if n != p.Shape.Size() {
		return fmt.Errorf("port %q holds %d elements of shape %v, got %d", p.Name, p.Shape.Size(), p.Shape, n)
	}
	return nil
}

// contiguous reports whether the port stores its positions back to back
// without wrapping, so it can be copied as one byte range.
func contiguous(p Port) bool {
	return !p.Mapping.Wraps() && p.Mapping.Stride == p.Shape.Channels
}

func writePort[T core.Element](a *Arena, p Port, data []T) error {
	if err := checkPort[T](p, len(data)); err != nil {
		return err
	}
	if contiguous(p) {
		return a.WriteAt(p.Mapping.ContOffset*core.SizeOf[T](), core.Bytes(data))
	}
	mem := core.View[T](a.Buffer())
	ch := p.Shape.Channels
	for pos := 0; pos < p.Shape.Positions(); pos++ {
		copy(mem[p.Mapping.Index(pos):][:ch], data[pos*ch:])
	}
	return nil
}

func readPort[T core.Element](a *Arena, p Port) ([]T, error) {
	if err := checkPort[T](p, p.Shape.Size()); err != nil {
		return nil, err
	}
	if contiguous(p) {
		b, err := a.ReadAt(p.Mapping.ContOffset*core.SizeOf[T](), p.Shape.Size()*core.SizeOf[T]())
		if err != nil {
			return nil, err
		}
		return append([]T(nil), core.View[T](b)...), nil
	}
	mem := core.View[T](a.Buffer())
	ch := p.Shape.Channels
	out := make([]T, p.Shape.Size())
	for pos := 0; pos < p.Shape.Positions(); pos++ {
		copy(out[pos*ch:], mem[p.Mapping.Index(pos):][:ch])
	}
	return out, nil
}
