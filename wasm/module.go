package wasm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Magic is "\0asm" read as a little-endian u32.
const Magic uint32 = 0x6D736100

// Version is the core module binary version.
const Version uint32 = 0x01

// Section IDs of a core module.
const (
	SectionCustom    byte = 0
	SectionType      byte = 1
	SectionImport    byte = 2
	SectionFunction  byte = 3
	SectionTable     byte = 4
	SectionMemory    byte = 5
	SectionGlobal    byte = 6
	SectionExport    byte = 7
	SectionStart     byte = 8
	SectionElement   byte = 9
	SectionCode      byte = 10
	SectionData      byte = 11
	SectionDataCount byte = 12
)

// Import/export descriptor kinds.
const (
	KindFunc   byte = 0
	KindTable  byte = 1
	KindMemory byte = 2
	KindGlobal byte = 3
	KindTag    byte = 4
)

// ValType is a core value type encoding.
type ValType byte

const (
	ValI32     ValType = 0x7F
	ValI64     ValType = 0x7E
	ValF32     ValType = 0x7D
	ValF64     ValType = 0x7C
	ValV128    ValType = 0x7B
	ValFuncRef ValType = 0x70
	ValExtern  ValType = 0x6F
)

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	default:
		return fmt.Sprintf("valtype(0x%02x)", byte(v))
	}
}

// IsModule reports whether data starts with a core module header.
func IsModule(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	return binary.LittleEndian.Uint32(data[0:4]) == Magic &&
		binary.LittleEndian.Uint32(data[4:8]) == Version
}

// Section is a raw section of a core module.
type Section struct {
	Data []byte
	ID   byte
}

// Sections splits a core module into its raw sections.
func Sections(module []byte) ([]Section, error) {
	if !IsModule(module) {
		return nil, fmt.Errorf("not a core wasm module")
	}
	var sections []Section
	idx := 8
	for idx < len(module) {
		id := module[idx]
		idx++
		size, n, err := DecodeULEB128(module[idx:])
		if err != nil {
			return nil, fmt.Errorf("section %d size: %w", id, err)
		}
		idx += n
		end := idx + int(size)
		if end > len(module) || end < idx {
			return nil, fmt.Errorf("section %d size %d exceeds module", id, size)
		}
		sections = append(sections, Section{ID: id, Data: module[idx:end]})
		idx = end
	}
	return sections, nil
}

// Import is an entry of the import section. Desc holds the raw descriptor
// bytes following the kind byte.
type Import struct {
	Module string
	Name   string
	Desc   []byte
	Kind   byte
}

// ParseImports returns the imports of a core module in declaration order.
func ParseImports(module []byte) ([]Import, error) {
	sections, err := Sections(module)
	if err != nil {
		return nil, err
	}
	for _, s := range sections {
		if s.ID == SectionImport {
			return parseImportSection(s.Data)
		}
	}
	return nil, nil
}

func parseImportSection(data []byte) ([]Import, error) {
	r := bytes.NewReader(data)
	count, err := ReadLEB128u(r)
	if err != nil {
		return nil, fmt.Errorf("import count: %w", err)
	}
	if int(count) > len(data) {
		return nil, fmt.Errorf("import count %d exceeds section size", count)
	}
	imports := make([]Import, 0, count)
	for i := uint32(0); i < count; i++ {
		mod, err := readName(r)
		if err != nil {
			return nil, fmt.Errorf("import %d module: %w", i, err)
		}
		name, err := readName(r)
		if err != nil {
			return nil, fmt.Errorf("import %d name: %w", i, err)
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("import %d kind: %w", i, err)
		}
		start := len(data) - r.Len()
		if err := SkipImportDesc(r, kind); err != nil {
			return nil, fmt.Errorf("import %d (%s.%s) descriptor: %w", i, mod, name, err)
		}
		end := len(data) - r.Len()
		imports = append(imports, Import{
			Module: mod,
			Name:   name,
			Kind:   kind,
			Desc:   data[start:end],
		})
	}
	return imports, nil
}

func readName(r *bytes.Reader) (string, error) {
	n, err := ReadLEB128u(r)
	if err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", fmt.Errorf("name length %d exceeds remaining %d bytes", n, r.Len())
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil && n > 0 {
		return "", err
	}
	return string(buf), nil
}

// SkipImportDesc consumes an import descriptor of the given kind.
func SkipImportDesc(r io.ByteReader, kind byte) error {
	switch kind {
	case KindFunc:
		_, err := ReadLEB128u(r)
		return err
	case KindTable:
		if err := SkipValType(r); err != nil {
			return err
		}
		return skipLimits(r)
	case KindMemory:
		return skipLimits(r)
	case KindGlobal:
		if err := SkipValType(r); err != nil {
			return err
		}
		_, err := r.ReadByte()
		return err
	case KindTag:
		if _, err := r.ReadByte(); err != nil {
			return err
		}
		_, err := ReadLEB128u(r)
		return err
	default:
		return fmt.Errorf("unknown import kind 0x%02x", kind)
	}
}

// SkipValType skips a value or reference type, including the typed
// reference forms (ref null ht) and (ref ht).
func SkipValType(r io.ByteReader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if b == 0x63 || b == 0x64 {
		_, err = ReadLEB128s64(r)
	}
	return err
}

func skipLimits(r io.ByteReader) error {
	flags, err := r.ReadByte()
	if err != nil {
		return err
	}
	if _, err := ReadLEB128u64(r); err != nil {
		return err
	}
	if flags&0x01 != 0 {
		if _, err := ReadLEB128u64(r); err != nil {
			return err
		}
	}
	if flags&0x08 != 0 {
		if _, err := ReadLEB128u(r); err != nil {
			return err
		}
	}
	return nil
}

func appendSection(out []byte, id byte, data []byte) []byte {
	out = append(out, id)
	out = AppendULEB128(out, uint64(len(data)))
	return append(out, data...)
}
