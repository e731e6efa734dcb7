package compiler

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/sbl8/edgenet/core"
)

// Buffer is the placement of one tensor in program memory. Offset and Size
// are in bytes; Mapping is in elements of Type.
type Buffer struct {
	Name    string        `json:"name"`
	Type    core.DataType `json:"type"`
	Shape   core.Shape    `json:"shape"`
	Mapping core.Mapping  `json:"mapping"`
	Offset  int           `json:"offset"`
	Size    int           `json:"size"`
	// First and Last bound the steps during which the buffer holds data.
	First  int  `json:"first"`
	Last   int  `json:"last"`
	Pinned bool `json:"pinned,omitempty"`
}

// End returns the first byte past the buffer.
func (b *Buffer) End() int { return b.Offset + b.Size }

func (b *Buffer) live(step int) bool { return b.First <= step && step <= b.Last }

func (b *Buffer) overlaps(o *Buffer) bool {
	return b.First <= o.Last && o.First <= b.Last && b.Offset < o.End() && o.Offset < b.End()
}

// Plan is the memory layout of a compiled network.
type Plan struct {
	Network     string   `json:"network"`
	MemoryBytes int      `json:"memory_bytes"`
	Steps       []string `json:"steps"`
	Buffers     []Buffer `json:"buffers"`
}

// Buffer returns the placement of the named tensor.
func (p *Plan) Buffer(name string) (*Buffer, bool) {
	for i := range p.Buffers {
		if p.Buffers[i].Name == name {
			return &p.Buffers[i], true
		}
	}
	return nil, false
}

// Peak returns the largest number of bytes live during any one step.
func (p *Plan) Peak() int {
	peak := 0
	for step := range p.Steps {
		live := 0
		for i := range p.Buffers {
			if p.Buffers[i].live(step) {
				live += p.Buffers[i].Size
			}
		}
		peak = max(peak, live)
	}
	return peak
}

// Write prints the plan as a table ordered by offset.
func (p *Plan) Write(w io.Writer) error {
	bufs := append([]Buffer(nil), p.Buffers...)
	sort.SliceStable(bufs, func(i, j int) bool { return bufs[i].Offset < bufs[j].Offset })

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "network %s: %d bytes, peak live %d bytes, %d steps\n", p.Network, p.MemoryBytes, p.Peak(), len(p.Steps))
	fmt.Fprintln(tw, "BUFFER\tTYPE\tSHAPE\tOFFSET\tSIZE\tSTEPS\tMAPPING")
	for _, b := range bufs {
		pin := ""
		if b.Pinned {
			pin = " pinned"
		}
		fmt.Fprintf(tw, "%s\t%v\t%v\t%d\t%d\t%d-%d\t%v%s\n", b.Name, b.Type, b.Shape, b.Offset, b.Size, b.First, b.Last, b.Mapping, pin)
	}
	return tw.Flush()
}

// planMemory places every tensor so that no two buffers that are live during
// a common step share bytes. Buffers are placed largest first, then longest
// lived first, each at the lowest cache-line aligned offset clear of the
// buffers already placed. Pinned buffers keep their descriptor and are
// placed before all others.
func planMemory(name string, steps []string, tensors []*tensor, keepInput bool) (*Plan, error) {
	last := len(steps)
	bufs := make([]Buffer, len(tensors))
	for i, t := range tensors {
		b := &bufs[i]
		*b = Buffer{
			Name:  t.name,
			Type:  t.typ,
			Shape: t.shape,
			First: max(t.producer, 0),
			Last:  t.lastUse,
		}
		if t.producer < 0 && keepInput {
			b.Last = last
		}
		if t.pinned != nil {
			if err := pin(b, *t.pinned); err != nil {
				return nil, err
			}
			continue
		}
		b.Size = int(core.AlignedSize(uintptr(t.shape.Size() * t.typ.Size())))
	}

	rank := make([]int, 0, len(bufs))
	for i := range bufs {
		if !bufs[i].Pinned {
			rank = append(rank, i)
		}
	}
	sort.SliceStable(rank, func(i, j int) bool {
		a, b := &bufs[rank[i]], &bufs[rank[j]]
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		return a.Last-a.First > b.Last-b.First
	})

	placed := make([]*Buffer, 0, len(bufs))
	for i := range bufs {
		if bufs[i].Pinned {
			placed = append(placed, &bufs[i])
		}
	}
	for _, i := range rank {
		b := &bufs[i]
		guide := make([]*Buffer, 0, len(placed))
		for _, p := range placed {
			if b.First <= p.Last && p.First <= b.Last {
				guide = append(guide, p)
			}
		}
		sort.Slice(guide, func(x, y int) bool { return guide[x].Offset < guide[y].Offset })

		offset := 0
		for _, p := range guide {
			if offset+b.Size <= p.Offset {
				break
			}
			offset = max(offset, core.AlignSize(p.End(), core.CacheLineSize))
		}
		b.Offset = offset
		elem := b.Type.Size()
		b.Mapping = core.At(offset/elem, b.Shape.Channels, b.Shape.Positions())
		placed = append(placed, b)
	}

	memory := 0
	for i := range bufs {
		memory = max(memory, bufs[i].End())
	}
	return &Plan{
		Network:     name,
		MemoryBytes: int(core.AlignedSize(uintptr(memory))),
		Steps:       steps,
		Buffers:     bufs,
	}, nil
}

// pin places b at the byte range its descriptor touches.
func pin(b *Buffer, m core.Mapping) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("pinned memory of %q: %w", b.Name, err)
	}
	if m.Stride < b.Shape.Channels {
		return fmt.Errorf("pinned memory of %q: stride %d below %d channels", b.Name, m.Stride, b.Shape.Channels)
	}
	lo := m.ContOffset
	if m.Wraps() {
		lo = min(lo, m.WrapOffset)
	}
	hi := m.Extent(b.Shape.Positions(), b.Shape.Channels)

	elem := b.Type.Size()
	b.Mapping = m
	b.Offset = lo * elem
	b.Size = (hi - lo) * elem
	b.Pinned = true
	return nil
}

// sharesMemory reports whether a step writing out reads any of ins from bytes
// it also writes.
func sharesMemory(out *Buffer, ins []*Buffer) bool {
	for _, in := range ins {
		if out.Offset < in.End() && in.Offset < out.End() {
			return true
		}
	}
	return false
}
