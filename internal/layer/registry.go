package layer

import (
	"log/slog"
	"sync"
)

// CustomBit is set in the type index of layers from a custom registry.
const CustomBit = 1 << 8

// Factory constructs a fresh layer.
type Factory func() Layer

// Entry is one registry slot. A nil Factory marks a known type without an implementation.
type Entry struct {
	Name    string
	Factory Factory
}

// Table maps dense type indices and names to factories. Its methods only read.
type Table struct {
	entries []Entry
}

// Registry is a Table that accepts registrations.
type Registry struct {
	Table
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Len returns the number of slots.
func (r *Table) Len() int {
	return len(r.entries)
}

// Entry returns slot index.
func (r *Table) Entry(index int) (Entry, bool) {
	if index < 0 || index >= len(r.entries) {
		return Entry{}, false
	}
	return r.entries[index], true
}

// IndexOf returns the slot holding name, or -1.
func (r *Table) IndexOf(name string) int {
	for i, e := range r.entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}

// Set stores name and f at index, growing the table as needed.
// It reports whether an existing factory was replaced.
func (r *Registry) Set(index int, name string, f Factory) bool {
	if index >= len(r.entries) {
		r.entries = append(r.entries, make([]Entry, index+1-len(r.entries))...)
	}
	replaced := r.entries[index].Factory != nil
	if replaced {
		slog.Warn("overwrite existing layer type", "type", name, "index", index)
	}
	r.entries[index] = Entry{Name: name, Factory: f}
	return replaced
}

// Create instantiates the layer at index, or returns nil when the slot is
// empty or has no implementation.
func (r *Table) Create(index int) Layer {
	e, ok := r.Entry(index)
	if !ok || e.Factory == nil {
		return nil
	}
	return e.Factory()
}

// Names lists every slot name in index order.
func (r *Table) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Builtin returns the read-only registry of built-in layer types.
var Builtin = sync.OnceValue(func() *Table {
	r := NewRegistry()
	for k := range kindCount {
		r.entries = append(r.entries, Entry{Name: k.String()})
	}
	r.registerActivations()
	r.registerShapeOps()
	r.registerConvolutions()
	r.registerUtilityOps()
	return &r.Table
})

// CreateByName instantiates a built-in layer, or returns nil.
func CreateByName(name string) Layer {
	r := Builtin()
	return r.Create(r.IndexOf(name))
}

func (r *Registry) register(k Kind, f Factory) {
	r.entries[k].Factory = f
}

func (r *Registry) registerActivations() {
	r.register(KindAbsVal, func() Layer { return NewAbsVal() })
	r.register(KindReLU, func() Layer { return NewReLU() })
	r.register(KindSigmoid, func() Layer { return NewSigmoid() })
	r.register(KindTanH, func() Layer { return NewTanH() })
	r.register(KindHardSigmoid, func() Layer { return NewHardSigmoid() })
	r.register(KindHardSwish, func() Layer { return NewHardSwish() })
	r.register(KindDropout, func() Layer { return NewDropout() })
}

func (r *Registry) registerShapeOps() {
	r.register(KindConcat, func() Layer { return NewConcat() })
	r.register(KindSlice, func() Layer { return NewSlice() })
	r.register(KindSplit, func() Layer { return NewSplit() })
	r.register(KindReshape, func() Layer { return NewReshape() })
	r.register(KindShuffleChannel, func() Layer { return NewShuffleChannel() })
	r.register(KindPacking, func() Layer { return NewPacking() })
	r.register(KindPadding, func() Layer { return NewPadding() })
}

func (r *Registry) registerConvolutions() {
	r.register(KindConvolution, func() Layer { return NewConvolution() })
	r.register(KindConvolutionDepthWise, func() Layer { return NewConvolutionDepthWise() })
	r.register(KindInnerProduct, func() Layer { return NewInnerProduct() })
	r.register(KindPooling, func() Layer { return NewPooling() })
}

func (r *Registry) registerUtilityOps() {
	r.register(KindInput, func() Layer { return NewInput() })
	r.register(KindEltwise, func() Layer { return NewEltwise() })
	r.register(KindBinaryOp, func() Layer { return NewBinaryOp() })
	r.register(KindPriorBox, func() Layer { return NewPriorBox() })
	r.register(KindCast, func() Layer { return NewCast() })
}
