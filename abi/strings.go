package abi

import (
	"encoding/binary"
	"unicode/utf16"
	"unicode/utf8"

	harness "github.com/wippyai/component-harness"
	"github.com/wippyai/component-harness/errors"
)

// StringEncoding is the string-encoding canonical option.
type StringEncoding uint8

const (
	UTF8 StringEncoding = iota
	UTF16
	Latin1UTF16
)

func (e StringEncoding) String() string {
	switch e {
	case UTF8:
		return "utf8"
	case UTF16:
		return "utf16"
	case Latin1UTF16:
		return "latin1+utf16"
	}
	return "unknown"
}

// ParseStringEncoding parses the names used by String.
func ParseStringEncoding(s string) (StringEncoding, bool) {
	switch s {
	case "utf8", "utf-8":
		return UTF8, true
	case "utf16", "utf-16":
		return UTF16, true
	case "latin1+utf16", "compact-utf16":
		return Latin1UTF16, true
	}
	return 0, false
}

// utf16Tag marks a latin1+utf16 length as counting UTF-16 code units.
const utf16Tag = 1 << 31

// maxStringByteLength bounds any lowered or lifted string.
const maxStringByteLength = 1<<31 - 1

// EncodeUTF16 returns the little-endian UTF-16 encoding of s, surrogate
// pairs included, and its length in code units.
func EncodeUTF16(s string) ([]byte, uint32) {
	units := utf16.Encode([]rune(s))
	buf := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[2*i:], u)
	}
	return buf, uint32(len(units))
}

// DecodeUTF16 decodes little-endian UTF-16, rejecting unpaired surrogates.
func DecodeUTF16(phase errors.Phase, b []byte) (string, error) {
	n := len(b) / 2
	out := make([]rune, 0, n)
	for i := 0; i < n; i++ {
		u := binary.LittleEndian.Uint16(b[2*i:])
		switch {
		case u < 0xD800 || u > 0xDFFF:
			out = append(out, rune(u))
		case u <= 0xDBFF && i+1 < n:
			lo := binary.LittleEndian.Uint16(b[2*i+2:])
			if lo < 0xDC00 || lo > 0xDFFF {
				return "", errors.InvalidUTF16(phase, u, i)
			}
			out = append(out, utf16.DecodeRune(rune(u), rune(lo)))
			i++
		default:
			return "", errors.InvalidUTF16(phase, u, i)
		}
	}
	return string(out), nil
}

// latin1 returns s encoded as Latin-1 if every rune fits in one byte.
func latin1(s string) ([]byte, bool) {
	buf := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return nil, false
		}
		buf = append(buf, byte(r))
	}
	return buf, true
}

// StoreString copies s into guest memory using enc and returns the pointer
// and the (possibly tagged) length the canonical ABI passes alongside it.
func StoreString(mem harness.Memory, alloc harness.Allocator, enc StringEncoding, s string) (ptr, length uint32, err error) {
	if mem == nil || alloc == nil {
		return 0, 0, errors.New(errors.PhaseLower, errors.KindAllocation).
			WitType("string").Detail("string lowering requires memory and realloc options").Build()
	}
	if !utf8.ValidString(s) {
		return 0, 0, errors.InvalidUTF8(errors.PhaseLower, nil, []byte(s))
	}

	var (
		data  []byte
		align uint32
	)
	switch enc {
	case UTF8:
		data, align, length = []byte(s), 1, uint32(len(s))
	case UTF16:
		data, length = EncodeUTF16(s)
		align = 2
	case Latin1UTF16:
		align = 2
		if l1, ok := latin1(s); ok {
			data, length = l1, uint32(len(l1))
		} else {
			data, length = EncodeUTF16(s)
			length |= utf16Tag
		}
	default:
		return 0, 0, errors.Unsupported(errors.PhaseLower, "string encoding "+enc.String())
	}
	if len(data) > maxStringByteLength {
		return 0, 0, errors.New(errors.PhaseLower, errors.KindOutOfBounds).
			WitType("string").Detail("string of %d bytes exceeds the maximum length", len(data)).Build()
	}

	ptr, err = alloc.Alloc(uint32(len(data)), align)
	if err != nil {
		return 0, 0, errors.Wrap(errors.PhaseLower, errors.KindAllocation, err, "allocate string")
	}
	if err := mem.Write(ptr, data); err != nil {
		return 0, 0, err
	}
	return ptr, length, nil
}

// LoadString reads a string of the given encoding out of guest memory.
func LoadString(mem harness.Memory, enc StringEncoding, ptr, length uint32) (string, error) {
	if mem == nil {
		return "", errors.New(errors.PhaseLift, errors.KindInvalidData).
			WitType("string").Detail("string lifting requires a memory option").Build()
	}

	switch enc {
	case UTF8:
		return loadUTF8(mem, ptr, length)
	case UTF16:
		return loadUTF16(mem, ptr, length)
	case Latin1UTF16:
		if length&utf16Tag != 0 {
			return loadUTF16(mem, ptr, length&^utf16Tag)
		}
		b, err := mem.Read(ptr, length)
		if err != nil {
			return "", err
		}
		runes := make([]rune, len(b))
		for i, c := range b {
			runes[i] = rune(c)
		}
		return string(runes), nil
	}
	return "", errors.Unsupported(errors.PhaseLift, "string encoding "+enc.String())
}

func loadUTF8(mem harness.Memory, ptr, length uint32) (string, error) {
	if length > maxStringByteLength {
		return "", errors.OutOfBounds(errors.PhaseLift, uint64(ptr), uint64(length))
	}
	b, err := mem.Read(ptr, length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.InvalidUTF8(errors.PhaseLift, nil, b)
	}
	return string(b), nil
}

func loadUTF16(mem harness.Memory, ptr, units uint32) (string, error) {
	if ptr%2 != 0 {
		return "", errors.New(errors.PhaseLift, errors.KindInvalidData).
			WitType("string").Detail("utf16 string pointer %d is not 2-byte aligned", ptr).Build()
	}
	if uint64(units)*2 > maxStringByteLength {
		return "", errors.OutOfBounds(errors.PhaseLift, uint64(ptr), uint64(units)*2)
	}
	b, err := mem.Read(ptr, units*2)
	if err != nil {
		return "", err
	}
	return DecodeUTF16(errors.PhaseLift, b)
}
