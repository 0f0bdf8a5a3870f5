package net

import (
	"fmt"

	"github.com/born-ml/lite/internal/allocator"
	"github.com/born-ml/lite/internal/layer"
	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/tensor"
)

// Extractor runs one inference over a Net. It holds a tensor slot per blob:
// an empty slot is unbound, a filled one is memoized for the rest of the
// extractor's life. An Extractor is not safe for concurrent use; create one
// per goroutine.
type Extractor struct {
	net  *Net
	opt  option.Option
	mats []tensor.Mat
}

// CreateExtractor returns an Extractor with a copy of n.Opt.
func (n *Net) CreateExtractor() *Extractor {
	return &Extractor{
		net:  n,
		opt:  n.Opt,
		mats: make([]tensor.Mat, len(n.blobs)),
	}
}

// SetLightMode toggles releasing intermediate blobs once consumed.
func (ex *Extractor) SetLightMode(enable bool) { ex.opt.LightMode = enable }

// SetNumThreads bounds the goroutines each layer may fork.
func (ex *Extractor) SetNumThreads(n int) { ex.opt.NumThreads = n }

// SetBlobAllocator sets the allocator for blobs produced by this extractor.
func (ex *Extractor) SetBlobAllocator(a allocator.Allocator) { ex.opt.BlobAllocator = a }

// SetWorkspaceAllocator sets the allocator for layer temporaries.
func (ex *Extractor) SetWorkspaceAllocator(a allocator.Allocator) { ex.opt.WorkspaceAllocator = a }

// Option returns the extractor's current options.
func (ex *Extractor) Option() option.Option { return ex.opt }

// Input binds m to the named blob. The extractor keeps its own reference.
func (ex *Extractor) Input(name string, m tensor.Mat) error {
	i := ex.net.FindBlobIndexByName(name)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrBlobNotFound, name)
	}
	return ex.InputIndex(i, m)
}

// InputIndex binds m to blob i.
func (ex *Extractor) InputIndex(i int, m tensor.Mat) error {
	if i < 0 || i >= len(ex.mats) {
		return fmt.Errorf("%w: index %d", ErrBlobNotFound, i)
	}
	ex.mats[i].Release()
	ex.mats[i] = m.Share()
	return nil
}

// Extract computes the named blob, running only the layers it depends on.
// The caller owns the returned Mat and must Release it.
func (ex *Extractor) Extract(name string) (tensor.Mat, error) {
	i := ex.net.FindBlobIndexByName(name)
	if i < 0 {
		return tensor.Mat{}, fmt.Errorf("%w: %q", ErrBlobNotFound, name)
	}
	return ex.ExtractIndex(i)
}

// ExtractIndex computes blob i. Packed results are unpacked to elempack 1
// and bfloat16 results are widened to float32.
func (ex *Extractor) ExtractIndex(i int) (tensor.Mat, error) {
	if i < 0 || i >= len(ex.mats) {
		return tensor.Mat{}, fmt.Errorf("%w: index %d", ErrBlobNotFound, i)
	}
	if ex.mats[i].Dims == 0 {
		producer := ex.net.blobs[i].Producer
		if producer < 0 {
			return tensor.Mat{}, fmt.Errorf("%w: %q", ErrInputNotSet, ex.net.blobs[i].Name)
		}
		if err := ex.forwardLayer(producer); err != nil {
			return tensor.Mat{}, err
		}
	}

	m := ex.mats[i].Share()
	if ex.opt.UsePackingLayout && m.ElemPack != 1 {
		unpacked := tensor.ConvertPacking(m, 1, false, ex.opt.BlobAllocator)
		m.Release()
		if unpacked.Empty() {
			return tensor.Mat{}, layer.ErrOutOfMemory
		}
		m = unpacked
	}
	if ex.opt.UseBF16Storage && laneSize(m) == 2 {
		f := tensor.CastBFloat16ToFloat32(m, ex.opt.BlobAllocator)
		m.Release()
		if f.Empty() {
			return tensor.Mat{}, layer.ErrOutOfMemory
		}
		m = f
	}
	return m, nil
}

// Close releases every blob the extractor holds. Mats already returned by
// Extract stay valid.
func (ex *Extractor) Close() {
	for i := range ex.mats {
		ex.mats[i].Release()
	}
	ex.mats = nil
}

func laneSize(m tensor.Mat) int {
	if m.ElemPack == 0 {
		return 0
	}
	return m.ElemSize / m.ElemPack
}

// forwardLayer runs layer li after forcing every unbound bottom through its
// producer, depth first.
func (ex *Extractor) forwardLayer(li int) error {
	l := ex.net.layers[li]
	if l == nil {
		return fmt.Errorf("%w: layer %d", ErrIncompleteGraph, li)
	}
	meta := l.Meta()
	if len(meta.Bottoms) == 0 {
		if len(meta.Tops) > 0 {
			return fmt.Errorf("%w: %q", ErrInputNotSet, ex.net.blobs[meta.Tops[0]].Name)
		}
		return fmt.Errorf("%w: layer %q has no inputs", ErrInputNotSet, meta.Name)
	}

	for _, b := range meta.Bottoms {
		if ex.mats[b].Dims != 0 {
			continue
		}
		producer := ex.net.blobs[b].Producer
		if producer < 0 {
			return fmt.Errorf("%w: %q", ErrInputNotSet, ex.net.blobs[b].Name)
		}
		if err := ex.forwardLayer(producer); err != nil {
			return err
		}
	}

	var err error
	if meta.OneBlobOnly {
		err = ex.forwardSingle(l)
	} else {
		err = ex.forwardMulti(l)
	}
	if err != nil {
		return fmt.Errorf("layer %d %q (%s): %w", li, meta.Name, meta.Type, err)
	}
	return nil
}

// takeBottom returns an owned handle to blob b. In light mode the slot gives
// up its reference so the tensor dies with its last consumer.
func (ex *Extractor) takeBottom(b int) tensor.Mat {
	m := ex.mats[b].Share()
	if ex.opt.LightMode {
		ex.mats[b].Release()
	}
	return m
}

// convertBottom adapts an owned handle to the storage meta accepts.
func (ex *Extractor) convertBottom(m tensor.Mat, meta *layer.Base) (tensor.Mat, error) {
	a := ex.opt.BlobAllocator
	if ex.opt.UseBF16Storage {
		var cast func(tensor.Mat, allocator.Allocator) tensor.Mat
		switch lane := laneSize(m); {
		case meta.SupportBF16Storage && lane == 4:
			cast = tensor.CastFloat32ToBFloat16
		case !meta.SupportBF16Storage && lane == 2:
			cast = tensor.CastBFloat16ToFloat32
		}
		if cast != nil {
			c := cast(m, a)
			m.Release()
			if c.Empty() {
				return tensor.Mat{}, layer.ErrOutOfMemory
			}
			m = c
		}
	}

	if ex.opt.UsePackingLayout && laneSize(m) != 1 {
		want := 1
		if meta.SupportPacking {
			want = 4
		}
		if m.ElemPack != want {
			p := tensor.ConvertPacking(m, want, false, a)
			m.Release()
			if p.Empty() {
				return tensor.Mat{}, layer.ErrOutOfMemory
			}
			m = p
		}
	}
	return m, nil
}

// ensureUnique gives an in-place layer a tensor nobody else can observe.
func (ex *Extractor) ensureUnique(m *tensor.Mat) error {
	if m.IsUnique() {
		return nil
	}
	c := m.Clone(ex.opt.BlobAllocator)
	m.Release()
	if c.Empty() {
		return layer.ErrOutOfMemory
	}
	*m = c
	return nil
}

func (ex *Extractor) forwardSingle(l layer.Layer) error {
	meta := l.Meta()
	if len(meta.Tops) == 0 {
		return fmt.Errorf("%w: no top blob", layer.ErrShapeMismatch)
	}
	m, err := ex.convertBottom(ex.takeBottom(meta.Bottoms[0]), meta)
	if err != nil {
		return err
	}

	t := meta.Tops[0]
	if ex.opt.LightMode && meta.SupportInplace {
		if err := ex.ensureUnique(&m); err != nil {
			return err
		}
		if err := layer.ForwardInplace(l, &m, ex.opt); err != nil {
			m.Release()
			return err
		}
		ex.store(t, m)
		return nil
	}

	top, err := layer.Forward(l, m, ex.opt)
	m.Release()
	if err != nil {
		return err
	}
	ex.store(t, top)
	return nil
}

func (ex *Extractor) forwardMulti(l layer.Layer) error {
	meta := l.Meta()
	bottoms := make([]tensor.Mat, len(meta.Bottoms))
	for j, b := range meta.Bottoms {
		bottoms[j] = ex.mats[b].Share()
	}
	if ex.opt.LightMode {
		for _, b := range meta.Bottoms {
			ex.mats[b].Release()
		}
	}
	for j := range bottoms {
		m, err := ex.convertBottom(bottoms[j], meta)
		if err != nil {
			bottoms[j] = tensor.Mat{}
			releaseMats(bottoms)
			return err
		}
		bottoms[j] = m
	}

	var tops []tensor.Mat
	if ex.opt.LightMode && meta.SupportInplace {
		for j := range bottoms {
			if err := ex.ensureUnique(&bottoms[j]); err != nil {
				releaseMats(bottoms)
				return err
			}
		}
		if err := layer.ForwardMultiInplace(l, bottoms, ex.opt); err != nil {
			releaseMats(bottoms)
			return err
		}
		tops = bottoms
	} else {
		var err error
		tops, err = layer.ForwardMulti(l, bottoms, ex.opt)
		releaseMats(bottoms)
		if err != nil {
			return err
		}
	}

	if len(tops) < len(meta.Tops) {
		releaseMats(tops)
		return fmt.Errorf("%w: %d tops for %d top blobs", layer.ErrShapeMismatch, len(tops), len(meta.Tops))
	}
	for j, t := range meta.Tops {
		ex.store(t, tops[j])
	}
	releaseMats(tops[len(meta.Tops):])
	return nil
}

// store moves an owned handle into slot i.
func (ex *Extractor) store(i int, m tensor.Mat) {
	ex.mats[i].Release()
	ex.mats[i] = m
}

func releaseMats(ms []tensor.Mat) {
	for i := range ms {
		ms[i].Release()
	}
}
