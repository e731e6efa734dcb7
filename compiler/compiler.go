// Package compiler specializes a network description into a runnable
// program.
//
// Compilation pipeline:
//  1. Validate the description and order its layers topologically
//  2. Infer the shape and storage type of every tensor
//  3. Plan memory: place all tensors in one arena, reusing the bytes of
//     tensors that are no longer read
//  4. Check parameters and instantiate one typed kernel per layer
//
// Storage types follow the network precision:
//   - float32: float32 activations, weights and accumulators
//   - int8: int8 or uint8 activations (per-layer unsigned flag), int8
//     weights and int32 accumulators
//
// Argmax layers always produce int32 indices. Pool, concat and resize
// layers keep the storage type of their input.
package compiler

import (
	"fmt"
	"log/slog"

	"github.com/sbl8/edgenet/model"
	"github.com/sbl8/edgenet/runtime"
)

// Options configures the compilation process
type Options struct {
	// ReuseInput lets the planner overwrite the network input once it is
	// no longer read. A program compiled this way must be given fresh
	// input before every run.
	ReuseInput bool
	Logger     *slog.Logger
}

// DefaultOptions provides sensible compilation defaults
func DefaultOptions() Options {
	return Options{Logger: slog.Default()}
}

// Compile plans memory for net and binds params to typed kernels.
func Compile(net *model.Network, params *model.Params, opts Options) (*runtime.Program, *Plan, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	plan, tensors, order, err := planNetwork(net, opts)
	if err != nil {
		return nil, nil, err
	}
	if params == nil {
		params = &model.Params{}
	}
	if params.Network != "" && params.Network != net.Name {
		opts.Logger.Warn("parameter bundle was written for another network", "network", net.Name, "params", params.Network)
	}

	prog := &runtime.Program{
		Name:        net.Name,
		MemoryBytes: plan.MemoryBytes,
		Steps:       make([]runtime.Step, 0, len(order)),
	}
	for _, idx := range order {
		l := &net.Layers[idx]
		step, err := buildStep(net, l, params, plan, tensors)
		if err != nil {
			return nil, nil, fmt.Errorf("layer %q: %w", l.Name, err)
		}
		prog.Steps = append(prog.Steps, step)
	}
	prog.Input = port(plan, net.Input.Name)
	prog.Output = port(plan, net.OutputLayer())

	opts.Logger.Debug("compiled network", "network", net.Name, "steps", len(prog.Steps),
		"memory_bytes", plan.MemoryBytes, "peak_bytes", plan.Peak())
	return prog, plan, nil
}

// PlanMemory runs the pipeline up to memory planning.
func PlanMemory(net *model.Network, opts Options) (*Plan, error) {
	plan, _, _, err := planNetwork(net, opts)
	return plan, err
}

// CompileFiles loads a JSON description and a parameter bundle and compiles
// them.
func CompileFiles(networkPath, paramsPath string, opts Options) (*runtime.Program, *Plan, error) {
	net, err := model.LoadNetwork(networkPath)
	if err != nil {
		return nil, nil, err
	}
	var params *model.Params
	if paramsPath != "" {
		if params, err = model.LoadParams(paramsPath); err != nil {
			return nil, nil, err
		}
	}
	return Compile(net, params, opts)
}

func planNetwork(net *model.Network, opts Options) (*Plan, map[string]*tensor, []int, error) {
	if err := net.Validate(); err != nil {
		return nil, nil, nil, err
	}
	order, err := net.Order()
	if err != nil {
		return nil, nil, nil, err
	}
	tensors, err := inferTensors(net, order)
	if err != nil {
		return nil, nil, nil, err
	}
	// the output is read by the caller after the last step
	tensors[net.OutputLayer()].lastUse = len(order)

	steps := make([]string, len(order))
	ordered := make([]*tensor, 0, len(order)+1)
	ordered = append(ordered, tensors[net.Input.Name])
	for i, idx := range order {
		steps[i] = net.Layers[idx].Name
		ordered = append(ordered, tensors[steps[i]])
	}

	plan, err := planMemory(net.Name, steps, ordered, !opts.ReuseInput)
	if err != nil {
		return nil, nil, nil, err
	}
	return plan, tensors, order, nil
}

func port(plan *Plan, name string) runtime.Port {
	b, _ := plan.Buffer(name)
	return runtime.Port{Name: b.Name, Type: b.Type, Shape: b.Shape, Mapping: b.Mapping}
}
