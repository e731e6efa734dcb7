// Package model defines the network description and parameter bundle the
// compiler turns into a runnable program.
//
// Key data structures:
//   - Network: the layers of one CNN, their connections and hyperparameters,
//     read from JSON
//   - Params: weights, biases and output rescaling per layer, in a compact
//     protobuf wire encoding
//
// Layers are identified by name. Every layer produces exactly one activation
// tensor, also known by the layer's name; the network input is a tensor of
// its own. A description is immutable once validated.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sbl8/edgenet/core"
	"github.com/sbl8/edgenet/kernels"
)

// ErrInvalid is wrapped by every validation error of a network description.
var ErrInvalid = errors.New("invalid network")

// Precisions accepted in Network.Precision.
const (
	Float32 = "float32"
	Int8    = "int8"
)

// Tensor is the network input.
type Tensor struct {
	Name     string `json:"name"`
	Height   int    `json:"height"`
	Width    int    `json:"width"`
	Channels int    `json:"channels"`
	// Unsigned selects uint8 over int8 storage in quantized networks.
	Unsigned bool `json:"unsigned,omitempty"`
}

// Shape returns the tensor extent.
func (t Tensor) Shape() core.Shape {
	return core.Shape{Height: t.Height, Width: t.Width, Channels: t.Channels}
}

// Layer is one node of the network.
type Layer struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Inputs []string `json:"inputs"`

	// Outputs is the number of output channels of conv and fc layers.
	Outputs int `json:"outputs,omitempty"`
	// Kernel, Stride and Padding are {y, x} pairs of windowed layers.
	Kernel  [2]int `json:"kernel,omitempty"`
	Stride  [2]int `json:"stride,omitempty"`
	Padding [2]int `json:"padding,omitempty"`

	Pool       string `json:"pool,omitempty"`
	Op         string `json:"op,omitempty"`
	Activation string `json:"activation,omitempty"`
	Unsigned   bool   `json:"unsigned,omitempty"`

	// Height and Width are the target extent of resize layers.
	Height int `json:"height,omitempty"`
	Width  int `json:"width,omitempty"`

	// Memory pins the output descriptor instead of letting the planner
	// place it. Units are elements of the output type.
	Memory *core.Mapping `json:"memory,omitempty"`
}

// Kind returns the kernel kind named by Type.
func (l *Layer) Kind() (kernels.Kind, error) {
	return kernels.ParseKind(l.Type)
}

// Window returns the sliding-window geometry of the layer.
func (l *Layer) Window() kernels.Window {
	return kernels.Window{
		KernelH: l.Kernel[0], KernelW: l.Kernel[1],
		StrideY: l.Stride[0], StrideX: l.Stride[1],
		PadY: l.Padding[0], PadX: l.Padding[1],
	}
}

// Network is a complete description.
type Network struct {
	Name      string  `json:"name"`
	Precision string  `json:"precision"`
	Bits      int     `json:"bits,omitempty"`
	Input     Tensor  `json:"input"`
	Layers    []Layer `json:"layers"`
	// Output names the layer whose tensor is the network result. It
	// defaults to the last layer.
	Output string `json:"output,omitempty"`
}

// ParseNetwork decodes a JSON description and validates it.
func ParseNetwork(r io.Reader) (*Network, error) {
	var n Network
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&n); err != nil {
		return nil, fmt.Errorf("failed to decode network: %w", err)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

// LoadNetwork reads and validates the description at path.
func LoadNetwork(path string) (*Network, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open network file: %w", err)
	}
	defer file.Close()
	return ParseNetwork(file)
}

// Save writes the description as indented JSON.
func (n *Network) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create network file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(n); err != nil {
		return fmt.Errorf("failed to encode network: %w", err)
	}
	return nil
}

// OutputLayer returns the name of the result layer.
func (n *Network) OutputLayer() string {
	if n.Output != "" || len(n.Layers) == 0 {
		return n.Output
	}
	return n.Layers[len(n.Layers)-1].Name
}

// Layer returns the layer with the given name.
func (n *Network) Layer(name string) (*Layer, bool) {
	for i := range n.Layers {
		if n.Layers[i].Name == name {
			return &n.Layers[i], true
		}
	}
	return nil, false
}

// Validate checks names, references, per-type hyperparameters and the
// absence of cycles.
func (n *Network) Validate() error {
	if n.Name == "" {
		return fmt.Errorf("%w: network has no name", ErrInvalid)
	}
	if n.Precision != Float32 && n.Precision != Int8 {
		return fmt.Errorf("%w: precision %q", ErrInvalid, n.Precision)
	}
	maxBits := 32
	if n.Precision == Int8 {
		maxBits = 8
	}
	if n.Bits < 0 || n.Bits > maxBits {
		return fmt.Errorf("%w: %d bits for %s precision", ErrInvalid, n.Bits, n.Precision)
	}
	if n.Input.Name == "" {
		return fmt.Errorf("%w: input has no name", ErrInvalid)
	}
	if s := n.Input.Shape(); s.Height <= 0 || s.Width <= 0 || s.Channels <= 0 {
		return fmt.Errorf("%w: input shape %v", ErrInvalid, s)
	}
	if len(n.Layers) == 0 {
		return fmt.Errorf("%w: network has no layers", ErrInvalid)
	}

	names := map[string]bool{n.Input.Name: true}
	for i := range n.Layers {
		l := &n.Layers[i]
		if l.Name == "" {
			return fmt.Errorf("%w: layer %d has no name", ErrInvalid, i)
		}
		if names[l.Name] {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalid, l.Name)
		}
		names[l.Name] = true
	}

	for i := range n.Layers {
		if err := n.validateLayer(&n.Layers[i], names); err != nil {
			return err
		}
	}

	if out := n.OutputLayer(); out == n.Input.Name {
		return fmt.Errorf("%w: output is the network input", ErrInvalid)
	} else if _, ok := n.Layer(out); !ok {
		return fmt.Errorf("%w: unknown output %q", ErrInvalid, out)
	}

	_, err := n.Order()
	return err
}

func (n *Network) validateLayer(l *Layer, names map[string]bool) error {
	kind, err := l.Kind()
	if err != nil {
		return fmt.Errorf("%w: layer %q: %w", ErrInvalid, l.Name, err)
	}
	if len(l.Inputs) == 0 {
		return fmt.Errorf("%w: layer %q has no inputs", ErrInvalid, l.Name)
	}
	for _, in := range l.Inputs {
		if !names[in] {
			return fmt.Errorf("%w: layer %q reads unknown tensor %q", ErrInvalid, l.Name, in)
		}
	}
	if _, err := kernels.ParseActivation(l.Activation); err != nil {
		return fmt.Errorf("%w: layer %q: %w", ErrInvalid, l.Name, err)
	}

	multi := kind == kernels.KindElemWise || kind == kernels.KindConcat
	if !multi && len(l.Inputs) != 1 {
		return fmt.Errorf("%w: %v layer %q takes one input, has %d", ErrInvalid, kind, l.Name, len(l.Inputs))
	}

	switch kind {
	case kernels.KindConv, kernels.KindFC:
		if l.Outputs <= 0 {
			return fmt.Errorf("%w: layer %q has %d outputs", ErrInvalid, l.Name, l.Outputs)
		}
	case kernels.KindPool:
		if _, err := kernels.ParsePooling(l.Pool); err != nil {
			return fmt.Errorf("%w: layer %q: %w", ErrInvalid, l.Name, err)
		}
	case kernels.KindElemWise:
		if _, err := kernels.ParseElemWiseOp(l.Op); err != nil {
			return fmt.Errorf("%w: layer %q: %w", ErrInvalid, l.Name, err)
		}
	case kernels.KindResize:
		if l.Height <= 0 || l.Width <= 0 {
			return fmt.Errorf("%w: resize layer %q needs a target extent", ErrInvalid, l.Name)
		}
	}

	switch kind {
	case kernels.KindConv, kernels.KindDepthwise, kernels.KindPool:
		if l.Kernel[0] <= 0 || l.Kernel[1] <= 0 {
			return fmt.Errorf("%w: layer %q kernel %v", ErrInvalid, l.Name, l.Kernel)
		}
		if l.Stride[0] < 0 || l.Stride[1] < 0 || l.Padding[0] < 0 || l.Padding[1] < 0 {
			return fmt.Errorf("%w: layer %q stride %v padding %v", ErrInvalid, l.Name, l.Stride, l.Padding)
		}
	}

	if l.Memory != nil {
		if err := l.Memory.Validate(); err != nil {
			return fmt.Errorf("%w: layer %q memory: %w", ErrInvalid, l.Name, err)
		}
	}
	return nil
}

// Order returns layer indices in an order where every layer follows the
// layers it reads. The order is deterministic for a given description.
func (n *Network) Order() ([]int, error) {
	index := make(map[string]int, len(n.Layers))
	for i, l := range n.Layers {
		index[l.Name] = i
	}

	// Build dependency graph
	adj := make([][]int, len(n.Layers))
	inDegree := make([]int, len(n.Layers))
	for i, l := range n.Layers {
		for _, in := range l.Inputs {
			if dep, ok := index[in]; ok {
				adj[dep] = append(adj[dep], i)
				inDegree[i]++
			}
		}
	}

	// Kahn's algorithm
	queue := make([]int, 0, len(n.Layers))
	for i, d := range inDegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]int, 0, len(n.Layers))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, next := range adj[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(n.Layers) {
		for i, d := range inDegree {
			if d > 0 {
				return nil, fmt.Errorf("%w: layer %q is part of a cycle", ErrInvalid, n.Layers[i].Name)
			}
		}
	}
	return order, nil
}
