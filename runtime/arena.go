package runtime

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sbl8/edgenet/core"
)

// ArenaRegion is a named byte range inside the Arena.
type ArenaRegion struct {
	Name   string
	Offset int
	Size   int
}

// End returns the first byte past the region.
func (r ArenaRegion) End() int { return r.Offset + r.Size }

func (r ArenaRegion) String() string {
	return fmt.Sprintf("%s[%d:%d]", r.Name, r.Offset, r.End())
}

// Arena owns the single cache-aligned memory block every activation buffer
// of a program lives in. Regions only describe the block; kernels address it
// through their own mapping descriptors.
type Arena struct {
	buffer  []byte
	regions map[string]ArenaRegion
}

// Name of the region covering the whole block.
const ActivationsRegion = "activations"

// NewArena allocates a block of size bytes, rounded up to a cache line, and
// records the given regions. Regions may overlap but must fit the block.
func NewArena(size int, regions ...ArenaRegion) (*Arena, error) {
	if size <= 0 {
		return nil, errors.New("cannot create zero-size arena")
	}
	total := int(core.AlignedSize(uintptr(size)))

	a := &Arena{
		buffer:  core.AlignedBytes(total),
		regions: make(map[string]ArenaRegion, len(regions)+1),
	}
	a.regions[ActivationsRegion] = ArenaRegion{Name: ActivationsRegion, Size: total}

	for _, r := range regions {
		if err := a.addRegion(r); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Arena) addRegion(r ArenaRegion) error {
	if r.Name == "" {
		return errors.New("arena region has no name")
	}
	if _, dup := a.regions[r.Name]; dup {
		return fmt.Errorf("duplicate arena region %q", r.Name)
	}
	if r.Offset < 0 || r.Size < 0 || r.End() > len(a.buffer) {
		return fmt.Errorf("region %v exceeds arena of %d bytes", r, len(a.buffer))
	}
	a.regions[r.Name] = r
	return nil
}

// Buffer returns the raw byte buffer of the arena.
func (a *Arena) Buffer() []byte {
	return a.buffer
}

// Region returns the named region.
func (a *Arena) Region(name string) (ArenaRegion, bool) {
	region, ok := a.regions[name]
	return region, ok
}

// Regions returns every region ordered by offset, then by name.
func (a *Arena) Regions() []ArenaRegion {
	out := make([]ArenaRegion, 0, len(a.regions))
	for _, r := range a.regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Offset != out[j].Offset {
			return out[i].Offset < out[j].Offset
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Bytes returns the bytes of the named region.
func (a *Arena) Bytes(name string) ([]byte, error) {
	r, ok := a.regions[name]
	if !ok {
		return nil, fmt.Errorf("region %s not found", name)
	}
	return a.buffer[r.Offset:r.End()], nil
}

// TotalSize returns the capacity of the arena's buffer.
func (a *Arena) TotalSize() int {
	return len(a.buffer)
}

// WriteAt writes data to the arena at a specific offset.
func (a *Arena) WriteAt(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > len(a.buffer) {
		return fmt.Errorf("write of %d bytes at %d exceeds buffer bounds", len(data), offset)
	}
	copy(a.buffer[offset:], data)
	return nil
}

// ReadAt returns size bytes of the arena starting at offset. The slice
// aliases the arena.
func (a *Arena) ReadAt(offset, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > len(a.buffer) {
		return nil, fmt.Errorf("read of %d bytes at %d exceeds buffer bounds", size, offset)
	}
	return a.buffer[offset : offset+size], nil
}

// portRegions returns the byte regions a port's mapping touches: the
// continuous part and, when the port wraps, its wrap part.
func portRegions(p Port) []ArenaRegion {
	size := p.Type.Size()
	m := p.Mapping
	if m.ContSize == 0 {
		m.ContSize = m.Extent(p.Shape.Positions(), p.Shape.Channels) - m.ContOffset
	}
	regions := []ArenaRegion{{Name: p.Name, Offset: m.ContOffset * size, Size: m.ContSize * size}}
	if m.Wraps() {
		regions = append(regions, ArenaRegion{Name: p.Name + ".wrap", Offset: m.WrapOffset * size, Size: m.WrapSize * size})
	}
	return regions
}
