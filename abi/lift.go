package abi

import (
	"math"
	"strconv"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/component-harness/errors"
)

// Lifter reads component values out of flat core values and guest memory.
type Lifter struct {
	Options
}

// NewLifter returns a lifter using opts.
func NewLifter(opts Options) *Lifter {
	return &Lifter{Options: opts}
}

// flatReader hands out flat values in order.
type flatReader struct {
	vals []uint64
	pos  int
}

func (r *flatReader) next(path []string) (uint64, error) {
	if r.pos >= len(r.vals) {
		return 0, errors.InvalidData(errors.PhaseLift, path, "not enough flat values")
	}
	v := r.vals[r.pos]
	r.pos++
	return v, nil
}

// LiftFlat lifts a sequence of values from their flattened representation.
func (l *Lifter) LiftFlat(types []wit.Type, flat []uint64) ([]any, error) {
	r := &flatReader{vals: flat}
	out := make([]any, len(types))
	for i, t := range types {
		v, err := l.liftFlat(t, r, []string{strconv.Itoa(i)})
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	if r.pos != len(flat) {
		return nil, errors.InvalidData(errors.PhaseLift, nil, "unused flat values")
	}
	return out, nil
}

func (l *Lifter) liftFlat(t wit.Type, r *flatReader, path []string) (any, error) {
	switch t := t.(type) {
	case nil:
		return nil, nil
	case *wit.TypeDef:
		return l.liftFlatKind(t, t.Kind, r, path)
	}
	v, err := r.next(path)
	if err != nil {
		return nil, err
	}
	switch t.(type) {
	case wit.String:
		length, err := r.next(path)
		if err != nil {
			return nil, err
		}
		s, err := LoadString(l.Memory, l.Encoding, uint32(v), uint32(length))
		if err != nil {
			return nil, withPath(err, path)
		}
		return s, nil
	}
	return liftScalar(t, v, path)
}

func liftScalar(t wit.Type, v uint64, path []string) (any, error) {
	switch t.(type) {
	case wit.Bool:
		return uint32(v) != 0, nil
	case wit.S8:
		return int8(v), nil
	case wit.U8:
		return uint8(v), nil
	case wit.S16:
		return int16(v), nil
	case wit.U16:
		return uint16(v), nil
	case wit.S32:
		return int32(v), nil
	case wit.U32:
		return uint32(v), nil
	case wit.S64:
		return int64(v), nil
	case wit.U64:
		return v, nil
	case wit.F32:
		return math.Float32frombits(uint32(v)), nil
	case wit.F64:
		return math.Float64frombits(v), nil
	case wit.Char:
		return liftChar(uint32(v), path)
	}
	return nil, errors.Unsupported(errors.PhaseLift, "type "+TypeName(t))
}

func liftChar(v uint32, path []string) (rune, error) {
	if v >= 0x110000 || (v >= 0xD800 && v <= 0xDFFF) {
		return 0, errors.New(errors.PhaseLift, errors.KindInvalidData).
			Path(path...).WitType("char").Value(v).
			Detail("invalid unicode scalar value 0x%x", v).Build()
	}
	return rune(v), nil
}

func (l *Lifter) liftFlatKind(td *wit.TypeDef, k wit.TypeDefKind, r *flatReader, path []string) (any, error) {
	switch k := k.(type) {
	case *wit.Record:
		rec := make(Record, len(k.Fields))
		for i, f := range k.Fields {
			v, err := l.liftFlat(f.Type, r, append(path, f.Name))
			if err != nil {
				return nil, err
			}
			rec[i] = Field{Name: f.Name, Value: v}
		}
		return rec, nil
	case *wit.Tuple:
		tup := make(Tuple, len(k.Types))
		for i, e := range k.Types {
			v, err := l.liftFlat(e, r, append(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			tup[i] = v
		}
		return tup, nil
	case *wit.List:
		ptr, err := r.next(path)
		if err != nil {
			return nil, err
		}
		n, err := r.next(path)
		if err != nil {
			return nil, err
		}
		return l.loadList(k.Type, uint32(ptr), uint32(n), path)
	case *wit.Flags:
		words := make([]uint32, FlagsWords(len(k.Flags)))
		for i := range words {
			w, err := r.next(path)
			if err != nil {
				return nil, err
			}
			words[i] = uint32(w)
		}
		return flagsFromWords(k, words), nil
	case *wit.Enum:
		d, err := r.next(path)
		if err != nil {
			return nil, err
		}
		if int(uint32(d)) >= len(k.Cases) {
			return nil, errors.InvalidDiscriminant(errors.PhaseLift, path, uint32(d), len(k.Cases))
		}
		return Enum(k.Cases[uint32(d)].Name), nil
	case *wit.Variant:
		cases := variantCases(k)
		disc, payload, err := l.liftFlatVariant(cases, r, path)
		if err != nil {
			return nil, err
		}
		return Variant{Case: k.Cases[disc].Name, Value: payload}, nil
	case *wit.Option:
		disc, payload, err := l.liftFlatVariant([]wit.Type{nil, k.Type}, r, path)
		if err != nil {
			return nil, err
		}
		return Option{IsSome: disc == 1, Value: payload}, nil
	case *wit.Result:
		disc, payload, err := l.liftFlatVariant([]wit.Type{k.OK, k.Err}, r, path)
		if err != nil {
			return nil, err
		}
		return Result{IsErr: disc == 1, Value: payload}, nil
	case *wit.Own, *wit.Borrow:
		v, err := r.next(path)
		if err != nil {
			return nil, err
		}
		return l.liftHandle(td, uint32(v), path)
	case wit.Type:
		return l.liftFlat(k, r, path)
	}
	return nil, errors.Unsupported(errors.PhaseLift, "type "+TypeName(td))
}

// liftFlatVariant reads a discriminant and the joined payload slots, then
// lifts the selected case out of its prefix of those slots.
func (l *Lifter) liftFlatVariant(cases []wit.Type, r *flatReader, path []string) (int, any, error) {
	d, err := r.next(path)
	if err != nil {
		return 0, nil, err
	}
	disc := uint32(d)
	if int(disc) >= len(cases) {
		return 0, nil, errors.InvalidDiscriminant(errors.PhaseLift, path, disc, len(cases))
	}
	width := len(flattenVariant(cases)) - 1
	if r.pos+width > len(r.vals) {
		return 0, nil, errors.InvalidData(errors.PhaseLift, path, "not enough flat values for variant payload")
	}
	slots := &flatReader{vals: r.vals[r.pos : r.pos+width]}
	r.pos += width

	if cases[disc] == nil {
		return int(disc), nil, nil
	}
	v, err := l.liftFlat(cases[disc], slots, path)
	if err != nil {
		return 0, nil, err
	}
	return int(disc), v, nil
}

func (l *Lifter) liftHandle(td *wit.TypeDef, h uint32, path []string) (any, error) {
	res, own, _ := ResourceOf(td)
	if l.Resources == nil {
		if h == 0 {
			return nil, errors.InvalidHandle(errors.PhaseLift, h, "handle 0 is never valid")
		}
		return handleOf(h), nil
	}
	v, err := l.Resources.LiftHandle(res, own, h)
	if err != nil {
		return nil, withPath(err, path)
	}
	return v, nil
}

// Load reads a value of type t stored at ptr.
func (l *Lifter) Load(t wit.Type, ptr uint32) (any, error) {
	if l.Memory == nil {
		return nil, errors.New(errors.PhaseLift, errors.KindInvalidData).
			WitType(TypeName(t)).Detail("loading from memory requires a memory option").Build()
	}
	if a := AlignOf(t); ptr%a != 0 {
		return nil, errors.New(errors.PhaseLift, errors.KindInvalidData).
			WitType(TypeName(t)).Detail("pointer %d is not %d-byte aligned", ptr, a).Build()
	}
	return l.load(t, ptr, nil)
}

// LoadValues reads a sequence of values laid out as a tuple at ptr.
func (l *Lifter) LoadValues(types []wit.Type, ptr uint32) ([]any, error) {
	tup := tupleOf(types)
	v, err := l.Load(tup, ptr)
	if err != nil {
		return nil, err
	}
	return []any(v.(Tuple)), nil
}

func (l *Lifter) load(t wit.Type, ptr uint32, path []string) (any, error) {
	m := l.Memory
	switch t := t.(type) {
	case nil:
		return nil, nil
	case wit.Bool:
		b, err := m.ReadU8(ptr)
		return b != 0, err
	case wit.S8:
		b, err := m.ReadU8(ptr)
		return int8(b), err
	case wit.U8:
		return m.ReadU8(ptr)
	case wit.S16:
		v, err := m.ReadU16(ptr)
		return int16(v), err
	case wit.U16:
		return m.ReadU16(ptr)
	case wit.S32:
		v, err := m.ReadU32(ptr)
		return int32(v), err
	case wit.U32:
		return m.ReadU32(ptr)
	case wit.S64:
		v, err := m.ReadU64(ptr)
		return int64(v), err
	case wit.U64:
		return m.ReadU64(ptr)
	case wit.F32:
		v, err := m.ReadU32(ptr)
		return math.Float32frombits(v), err
	case wit.F64:
		v, err := m.ReadU64(ptr)
		return math.Float64frombits(v), err
	case wit.Char:
		v, err := m.ReadU32(ptr)
		if err != nil {
			return nil, err
		}
		return liftChar(v, path)
	case wit.String:
		p, n, err := l.loadPair(ptr)
		if err != nil {
			return nil, err
		}
		s, err := LoadString(m, l.Encoding, p, n)
		if err != nil {
			return nil, withPath(err, path)
		}
		return s, nil
	case *wit.TypeDef:
		return l.loadKind(t, t.Kind, ptr, path)
	}
	return nil, errors.Unsupported(errors.PhaseLift, "type "+TypeName(t))
}

func (l *Lifter) loadPair(ptr uint32) (uint32, uint32, error) {
	p, err := l.Memory.ReadU32(ptr)
	if err != nil {
		return 0, 0, err
	}
	n, err := l.Memory.ReadU32(ptr + 4)
	if err != nil {
		return 0, 0, err
	}
	return p, n, nil
}

func (l *Lifter) loadKind(td *wit.TypeDef, k wit.TypeDefKind, ptr uint32, path []string) (any, error) {
	switch k := k.(type) {
	case *wit.Record:
		rec := make(Record, len(k.Fields))
		var off uint32
		for i, f := range k.Fields {
			off = AlignTo(off, AlignOf(f.Type))
			v, err := l.load(f.Type, ptr+off, append(path, f.Name))
			if err != nil {
				return nil, err
			}
			rec[i] = Field{Name: f.Name, Value: v}
			off += SizeOf(f.Type)
		}
		return rec, nil
	case *wit.Tuple:
		tup := make(Tuple, len(k.Types))
		var off uint32
		for i, e := range k.Types {
			off = AlignTo(off, AlignOf(e))
			v, err := l.load(e, ptr+off, append(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			tup[i] = v
			off += SizeOf(e)
		}
		return tup, nil
	case *wit.List:
		p, n, err := l.loadPair(ptr)
		if err != nil {
			return nil, err
		}
		return l.loadList(k.Type, p, n, path)
	case *wit.Flags:
		return l.loadFlags(k, ptr)
	case *wit.Enum:
		d, err := l.loadDisc(len(k.Cases), ptr)
		if err != nil {
			return nil, err
		}
		if int(d) >= len(k.Cases) {
			return nil, errors.InvalidDiscriminant(errors.PhaseLift, path, d, len(k.Cases))
		}
		return Enum(k.Cases[d].Name), nil
	case *wit.Variant:
		disc, v, err := l.loadVariant(variantCases(k), ptr, path)
		if err != nil {
			return nil, err
		}
		return Variant{Case: k.Cases[disc].Name, Value: v}, nil
	case *wit.Option:
		disc, v, err := l.loadVariant([]wit.Type{nil, k.Type}, ptr, path)
		if err != nil {
			return nil, err
		}
		return Option{IsSome: disc == 1, Value: v}, nil
	case *wit.Result:
		disc, v, err := l.loadVariant([]wit.Type{k.OK, k.Err}, ptr, path)
		if err != nil {
			return nil, err
		}
		return Result{IsErr: disc == 1, Value: v}, nil
	case *wit.Own, *wit.Borrow:
		h, err := l.Memory.ReadU32(ptr)
		if err != nil {
			return nil, err
		}
		return l.liftHandle(td, h, path)
	case wit.Type:
		return l.load(k, ptr, path)
	}
	return nil, errors.Unsupported(errors.PhaseLift, "type "+TypeName(td))
}

func (l *Lifter) loadDisc(n int, ptr uint32) (uint32, error) {
	switch DiscriminantSize(n) {
	case 1:
		v, err := l.Memory.ReadU8(ptr)
		return uint32(v), err
	case 2:
		v, err := l.Memory.ReadU16(ptr)
		return uint32(v), err
	}
	return l.Memory.ReadU32(ptr)
}

func (l *Lifter) loadVariant(cases []wit.Type, ptr uint32, path []string) (int, any, error) {
	disc, err := l.loadDisc(len(cases), ptr)
	if err != nil {
		return 0, nil, err
	}
	if int(disc) >= len(cases) {
		return 0, nil, errors.InvalidDiscriminant(errors.PhaseLift, path, disc, len(cases))
	}
	if cases[disc] == nil {
		return int(disc), nil, nil
	}
	v, err := l.load(cases[disc], ptr+PayloadOffset(cases), path)
	if err != nil {
		return 0, nil, err
	}
	return int(disc), v, nil
}

func (l *Lifter) loadFlags(k *wit.Flags, ptr uint32) (Flags, error) {
	n := len(k.Flags)
	var words []uint32
	switch flagsSize(n) {
	case 0:
	case 1:
		v, err := l.Memory.ReadU8(ptr)
		if err != nil {
			return nil, err
		}
		words = []uint32{uint32(v)}
	case 2:
		v, err := l.Memory.ReadU16(ptr)
		if err != nil {
			return nil, err
		}
		words = []uint32{uint32(v)}
	default:
		words = make([]uint32, FlagsWords(n))
		for i := range words {
			v, err := l.Memory.ReadU32(ptr + uint32(4*i))
			if err != nil {
				return nil, err
			}
			words[i] = v
		}
	}
	return flagsFromWords(k, words), nil
}

func (l *Lifter) loadList(elem wit.Type, ptr, n uint32, path []string) (any, error) {
	if l.Memory == nil {
		return nil, errors.New(errors.PhaseLift, errors.KindInvalidData).
			Path(path...).WitType("list").Detail("list lifting requires a memory option").Build()
	}
	size, align := SizeOf(elem), AlignOf(elem)
	if ptr%align != 0 {
		return nil, errors.New(errors.PhaseLift, errors.KindInvalidData).
			Path(path...).WitType("list").Detail("list pointer %d is not %d-byte aligned", ptr, align).Build()
	}
	total := uint64(size) * uint64(n)
	if uint64(ptr)+total > math.MaxUint32 {
		return nil, errors.OutOfBounds(errors.PhaseLift, uint64(ptr), total)
	}

	if _, ok := elem.(wit.U8); ok {
		b, err := l.Memory.Read(ptr, n)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	}

	// Probe the last byte before allocating so a bogus length fails fast.
	if total > 0 {
		if _, err := l.Memory.Read(ptr+uint32(total)-1, 1); err != nil {
			return nil, err
		}
	}
	out := make([]any, n)
	for i := uint32(0); i < n; i++ {
		v, err := l.load(elem, ptr+i*size, append(path, strconv.Itoa(int(i))))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func flagsFromWords(k *wit.Flags, words []uint32) Flags {
	out := make(Flags, len(k.Flags))
	for i, f := range k.Flags {
		out[f.Name] = words[i/32]&(1<<(i%32)) != 0
	}
	return out
}

func variantCases(k *wit.Variant) []wit.Type {
	cases := make([]wit.Type, len(k.Cases))
	for i, c := range k.Cases {
		cases[i] = c.Type
	}
	return cases
}

func tupleOf(types []wit.Type) wit.Type {
	return &wit.TypeDef{Kind: &wit.Tuple{Types: types}}
}

// withPath attaches a value path to a structured error that lacks one.
func withPath(err error, path []string) error {
	var e *errors.Error
	if len(path) > 0 && errors.As(err, &e) && len(e.Path) == 0 {
		e.Path = append([]string(nil), path...)
	}
	return err
}
