package abi

import (
	"math"
	"strconv"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/component-harness/errors"
)

// Lowerer writes component values as flat core values or into guest memory.
type Lowerer struct {
	Options
}

// NewLowerer returns a lowerer using opts.
func NewLowerer(opts Options) *Lowerer {
	return &Lowerer{Options: opts}
}

// LowerFlat flattens a sequence of values.
func (w *Lowerer) LowerFlat(types []wit.Type, values []any) ([]uint64, error) {
	if len(types) != len(values) {
		return nil, errors.InvalidInput(errors.PhaseLower,
			"expected "+strconv.Itoa(len(types))+" values, got "+strconv.Itoa(len(values)))
	}
	var out []uint64
	for i, t := range types {
		var err error
		out, err = w.lowerFlat(t, values[i], out, []string{strconv.Itoa(i)})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (w *Lowerer) lowerFlat(t wit.Type, v any, out []uint64, path []string) ([]uint64, error) {
	switch t := t.(type) {
	case nil:
		return out, nil
	case wit.String:
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(path, v, "string")
		}
		ptr, n, err := StoreString(w.Memory, w.Alloc, w.Encoding, s)
		if err != nil {
			return nil, withPath(err, path)
		}
		return append(out, uint64(ptr), uint64(n)), nil
	case *wit.TypeDef:
		return w.lowerFlatKind(t, t.Kind, v, out, path)
	}
	bits, err := lowerScalar(t, v, path)
	if err != nil {
		return nil, err
	}
	return append(out, bits), nil
}

// lowerScalar returns the raw bits of a primitive value.
func lowerScalar(t wit.Type, v any, path []string) (uint64, error) {
	switch t.(type) {
	case wit.Bool:
		b, ok := v.(bool)
		if !ok {
			return 0, mismatch(path, v, "bool")
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case wit.S8:
		n, err := signed(v, 8, path, "s8")
		return uint64(uint32(n)), err
	case wit.U8:
		return unsigned(v, 8, path, "u8")
	case wit.S16:
		n, err := signed(v, 16, path, "s16")
		return uint64(uint32(n)), err
	case wit.U16:
		return unsigned(v, 16, path, "u16")
	case wit.S32:
		n, err := signed(v, 32, path, "s32")
		return uint64(uint32(n)), err
	case wit.U32:
		return unsigned(v, 32, path, "u32")
	case wit.S64:
		n, err := signed(v, 64, path, "s64")
		return uint64(n), err
	case wit.U64:
		return unsigned(v, 64, path, "u64")
	case wit.F32:
		f, ok := asFloat64(v)
		if !ok {
			return 0, mismatch(path, v, "f32")
		}
		return uint64(math.Float32bits(float32(f))), nil
	case wit.F64:
		f, ok := asFloat64(v)
		if !ok {
			return 0, mismatch(path, v, "f64")
		}
		return math.Float64bits(f), nil
	case wit.Char:
		c, err := asChar(v, path)
		return uint64(c), err
	}
	return 0, errors.Unsupported(errors.PhaseLower, "type "+TypeName(t))
}

func (w *Lowerer) lowerFlatKind(td *wit.TypeDef, k wit.TypeDefKind, v any, out []uint64, path []string) ([]uint64, error) {
	var err error
	switch k := k.(type) {
	case *wit.Record:
		for _, f := range k.Fields {
			fv, err := recordField(v, f.Name, path, TypeName(td))
			if err != nil {
				return nil, err
			}
			if out, err = w.lowerFlat(f.Type, fv, out, append(path, f.Name)); err != nil {
				return nil, err
			}
		}
		return out, nil
	case *wit.Tuple:
		elems, ok := asElems(v)
		if !ok || len(elems) != len(k.Types) {
			return nil, mismatch(path, v, TypeName(td))
		}
		for i, e := range k.Types {
			if out, err = w.lowerFlat(e, elems[i], out, append(path, strconv.Itoa(i))); err != nil {
				return nil, err
			}
		}
		return out, nil
	case *wit.List:
		ptr, n, err := w.storeList(k.Type, v, path)
		if err != nil {
			return nil, err
		}
		return append(out, uint64(ptr), uint64(n)), nil
	case *wit.Flags:
		words, err := flagWords(k, v, path)
		if err != nil {
			return nil, err
		}
		for _, word := range words {
			out = append(out, uint64(word))
		}
		return out, nil
	case *wit.Enum:
		d, err := enumIndex(k, v, path)
		if err != nil {
			return nil, err
		}
		return append(out, uint64(d)), nil
	case *wit.Variant:
		disc, payload, err := variantCase(k, v, path)
		if err != nil {
			return nil, err
		}
		return w.lowerFlatVariant(variantCases(k), disc, payload, out, path)
	case *wit.Option:
		disc, payload, err := optionCase(v, path)
		if err != nil {
			return nil, err
		}
		return w.lowerFlatVariant([]wit.Type{nil, k.Type}, disc, payload, out, path)
	case *wit.Result:
		disc, payload, err := resultCase(v, path)
		if err != nil {
			return nil, err
		}
		return w.lowerFlatVariant([]wit.Type{k.OK, k.Err}, disc, payload, out, path)
	case *wit.Own, *wit.Borrow:
		h, err := w.lowerHandle(td, v, path)
		if err != nil {
			return nil, err
		}
		return append(out, uint64(h)), nil
	case wit.Type:
		return w.lowerFlat(k, v, out, path)
	}
	return nil, errors.Unsupported(errors.PhaseLower, "type "+TypeName(td))
}

// lowerFlatVariant writes the discriminant, the case payload and zero fill
// up to the joined width of all cases.
func (w *Lowerer) lowerFlatVariant(cases []wit.Type, disc int, payload any, out []uint64, path []string) ([]uint64, error) {
	out = append(out, uint64(disc))
	start := len(out)
	width := len(flattenVariant(cases)) - 1
	if cases[disc] != nil {
		var err error
		if out, err = w.lowerFlat(cases[disc], payload, out, path); err != nil {
			return nil, err
		}
	}
	for len(out) < start+width {
		out = append(out, 0)
	}
	return out, nil
}

func (w *Lowerer) lowerHandle(td *wit.TypeDef, v any, path []string) (uint32, error) {
	h, err := asHandle(v, path, TypeName(td))
	if err != nil {
		return 0, err
	}
	if w.Resources == nil {
		if h == 0 {
			return 0, errors.InvalidHandle(errors.PhaseLower, 0, "handle 0 is never valid")
		}
		return uint32(h), nil
	}
	res, own, _ := ResourceOf(td)
	g, err := w.Resources.LowerHandle(res, own, h)
	if err != nil {
		return 0, withPath(err, path)
	}
	return g, nil
}

// Store writes v as type t at ptr.
func (w *Lowerer) Store(t wit.Type, v any, ptr uint32) error {
	if w.Memory == nil {
		return errors.New(errors.PhaseLower, errors.KindInvalidData).
			WitType(TypeName(t)).Detail("storing to memory requires a memory option").Build()
	}
	if a := AlignOf(t); ptr%a != 0 {
		return errors.New(errors.PhaseLower, errors.KindInvalidData).
			WitType(TypeName(t)).Detail("pointer %d is not %d-byte aligned", ptr, a).Build()
	}
	return w.store(t, v, ptr, nil)
}

// StoreValues allocates a tuple of types, stores values into it and
// returns its address.
func (w *Lowerer) StoreValues(types []wit.Type, values []any) (uint32, error) {
	if len(types) != len(values) {
		return 0, errors.InvalidInput(errors.PhaseLower,
			"expected "+strconv.Itoa(len(types))+" values, got "+strconv.Itoa(len(values)))
	}
	if w.Alloc == nil {
		return 0, errors.New(errors.PhaseLower, errors.KindAllocation).
			Detail("spilling arguments requires a realloc option").Build()
	}
	tup := tupleOf(types)
	ptr, err := w.Alloc.Alloc(SizeOf(tup), AlignOf(tup))
	if err != nil {
		return 0, errors.Wrap(errors.PhaseLower, errors.KindAllocation, err, "allocate argument area")
	}
	if err := w.Store(tup, Tuple(values), ptr); err != nil {
		return 0, err
	}
	return ptr, nil
}

func (w *Lowerer) store(t wit.Type, v any, ptr uint32, path []string) error {
	m := w.Memory
	switch t := t.(type) {
	case nil:
		return nil
	case wit.String:
		s, ok := v.(string)
		if !ok {
			return mismatch(path, v, "string")
		}
		p, n, err := StoreString(m, w.Alloc, w.Encoding, s)
		if err != nil {
			return withPath(err, path)
		}
		return w.storePair(ptr, p, n)
	case *wit.TypeDef:
		return w.storeKind(t, t.Kind, v, ptr, path)
	}
	bits, err := lowerScalar(t, v, path)
	if err != nil {
		return err
	}
	switch SizeOf(t) {
	case 1:
		return m.WriteU8(ptr, uint8(bits))
	case 2:
		return m.WriteU16(ptr, uint16(bits))
	case 4:
		return m.WriteU32(ptr, uint32(bits))
	}
	return m.WriteU64(ptr, bits)
}

func (w *Lowerer) storePair(ptr, a, b uint32) error {
	if err := w.Memory.WriteU32(ptr, a); err != nil {
		return err
	}
	return w.Memory.WriteU32(ptr+4, b)
}

func (w *Lowerer) storeKind(td *wit.TypeDef, k wit.TypeDefKind, v any, ptr uint32, path []string) error {
	switch k := k.(type) {
	case *wit.Record:
		var off uint32
		for _, f := range k.Fields {
			fv, err := recordField(v, f.Name, path, TypeName(td))
			if err != nil {
				return err
			}
			off = AlignTo(off, AlignOf(f.Type))
			if err := w.store(f.Type, fv, ptr+off, append(path, f.Name)); err != nil {
				return err
			}
			off += SizeOf(f.Type)
		}
		return nil
	case *wit.Tuple:
		elems, ok := asElems(v)
		if !ok || len(elems) != len(k.Types) {
			return mismatch(path, v, TypeName(td))
		}
		var off uint32
		for i, e := range k.Types {
			off = AlignTo(off, AlignOf(e))
			if err := w.store(e, elems[i], ptr+off, append(path, strconv.Itoa(i))); err != nil {
				return err
			}
			off += SizeOf(e)
		}
		return nil
	case *wit.List:
		p, n, err := w.storeList(k.Type, v, path)
		if err != nil {
			return err
		}
		return w.storePair(ptr, p, n)
	case *wit.Flags:
		words, err := flagWords(k, v, path)
		if err != nil {
			return err
		}
		switch flagsSize(len(k.Flags)) {
		case 0:
			return nil
		case 1:
			return w.Memory.WriteU8(ptr, uint8(words[0]))
		case 2:
			return w.Memory.WriteU16(ptr, uint16(words[0]))
		}
		for i, word := range words {
			if err := w.Memory.WriteU32(ptr+uint32(4*i), word); err != nil {
				return err
			}
		}
		return nil
	case *wit.Enum:
		d, err := enumIndex(k, v, path)
		if err != nil {
			return err
		}
		return w.storeDisc(len(k.Cases), uint32(d), ptr)
	case *wit.Variant:
		disc, payload, err := variantCase(k, v, path)
		if err != nil {
			return err
		}
		return w.storeVariant(variantCases(k), disc, payload, ptr, path)
	case *wit.Option:
		disc, payload, err := optionCase(v, path)
		if err != nil {
			return err
		}
		return w.storeVariant([]wit.Type{nil, k.Type}, disc, payload, ptr, path)
	case *wit.Result:
		disc, payload, err := resultCase(v, path)
		if err != nil {
			return err
		}
		return w.storeVariant([]wit.Type{k.OK, k.Err}, disc, payload, ptr, path)
	case *wit.Own, *wit.Borrow:
		h, err := w.lowerHandle(td, v, path)
		if err != nil {
			return err
		}
		return w.Memory.WriteU32(ptr, h)
	case wit.Type:
		return w.store(k, v, ptr, path)
	}
	return errors.Unsupported(errors.PhaseLower, "type "+TypeName(td))
}

func (w *Lowerer) storeDisc(n int, d, ptr uint32) error {
	switch DiscriminantSize(n) {
	case 1:
		return w.Memory.WriteU8(ptr, uint8(d))
	case 2:
		return w.Memory.WriteU16(ptr, uint16(d))
	}
	return w.Memory.WriteU32(ptr, d)
}

func (w *Lowerer) storeVariant(cases []wit.Type, disc int, payload any, ptr uint32, path []string) error {
	if err := w.storeDisc(len(cases), uint32(disc), ptr); err != nil {
		return err
	}
	if cases[disc] == nil {
		return nil
	}
	return w.store(cases[disc], payload, ptr+PayloadOffset(cases), path)
}

// storeList allocates and fills a list, returning its pointer and length.
func (w *Lowerer) storeList(elem wit.Type, v any, path []string) (uint32, uint32, error) {
	if w.Memory == nil || w.Alloc == nil {
		return 0, 0, errors.New(errors.PhaseLower, errors.KindAllocation).
			Path(path...).WitType("list").Detail("list lowering requires memory and realloc options").Build()
	}
	size, align := SizeOf(elem), AlignOf(elem)

	if _, isU8 := elem.(wit.U8); isU8 {
		if b, ok := v.([]byte); ok {
			ptr, err := w.Alloc.Alloc(uint32(len(b)), 1)
			if err != nil {
				return 0, 0, errors.Wrap(errors.PhaseLower, errors.KindAllocation, err, "allocate list")
			}
			if err := w.Memory.Write(ptr, b); err != nil {
				return 0, 0, err
			}
			return ptr, uint32(len(b)), nil
		}
	}

	elems, ok := asElems(v)
	if !ok {
		return 0, 0, mismatch(path, v, "list<"+TypeName(elem)+">")
	}
	total := uint64(size) * uint64(len(elems))
	if total > math.MaxUint32 {
		return 0, 0, errors.OutOfBounds(errors.PhaseLower, 0, total)
	}
	ptr, err := w.Alloc.Alloc(uint32(total), align)
	if err != nil {
		return 0, 0, errors.Wrap(errors.PhaseLower, errors.KindAllocation, err, "allocate list")
	}
	for i, e := range elems {
		if err := w.store(elem, e, ptr+uint32(i)*size, append(path, strconv.Itoa(i))); err != nil {
			return 0, 0, err
		}
	}
	return ptr, uint32(len(elems)), nil
}

func recordField(v any, name string, path []string, wit string) (any, error) {
	f, found, isRecord := fieldOf(v, name)
	if !isRecord {
		return nil, mismatch(path, v, wit)
	}
	if !found {
		return nil, errors.New(errors.PhaseLower, errors.KindInvalidData).
			Path(append(path, name)...).WitType(wit).Detail("missing field %q", name).Build()
	}
	return f, nil
}

func enumIndex(k *wit.Enum, v any, path []string) (int, error) {
	var name string
	switch e := v.(type) {
	case Enum:
		name = string(e)
	case string:
		name = e
	default:
		return 0, mismatch(path, v, "enum")
	}
	for i, c := range k.Cases {
		if c.Name == name {
			return i, nil
		}
	}
	return 0, errors.New(errors.PhaseLower, errors.KindInvalidVariant).
		Path(path...).WitType("enum").Value(name).Detail("unknown enum case %q", name).Build()
}

func variantCase(k *wit.Variant, v any, path []string) (int, any, error) {
	vv, ok := v.(Variant)
	if !ok {
		return 0, nil, mismatch(path, v, "variant")
	}
	for i, c := range k.Cases {
		if c.Name == vv.Case {
			return i, vv.Value, nil
		}
	}
	return 0, nil, errors.New(errors.PhaseLower, errors.KindInvalidVariant).
		Path(path...).WitType("variant").Value(vv.Case).Detail("unknown variant case %q", vv.Case).Build()
}

func optionCase(v any, path []string) (int, any, error) {
	switch o := v.(type) {
	case nil:
		return 0, nil, nil
	case Option:
		if o.IsSome {
			return 1, o.Value, nil
		}
		return 0, nil, nil
	}
	return 0, nil, mismatch(path, v, "option")
}

func resultCase(v any, path []string) (int, any, error) {
	r, ok := v.(Result)
	if !ok {
		return 0, nil, mismatch(path, v, "result")
	}
	if r.IsErr {
		return 1, r.Value, nil
	}
	return 0, r.Value, nil
}

func flagWords(k *wit.Flags, v any, path []string) ([]uint32, error) {
	on := map[string]bool{}
	switch f := v.(type) {
	case Flags:
		on = f
	case map[string]bool:
		on = f
	case []string:
		for _, name := range f {
			on[name] = true
		}
	default:
		return nil, mismatch(path, v, "flags")
	}

	words := make([]uint32, max(FlagsWords(len(k.Flags)), 1))
	known := make(map[string]bool, len(k.Flags))
	for i, f := range k.Flags {
		known[f.Name] = true
		if on[f.Name] {
			words[i/32] |= 1 << (i % 32)
		}
	}
	for name, set := range on {
		if set && !known[name] {
			return nil, errors.New(errors.PhaseLower, errors.KindInvalidData).
				Path(path...).WitType("flags").Value(name).Detail("unknown flag %q", name).Build()
		}
	}
	return words[:FlagsWords(len(k.Flags))], nil
}
