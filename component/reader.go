package component

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/wippyai/component-harness/wasm"
)

// Bounds applied while decoding untrusted binaries.
const (
	maxNameLength = 100000
	maxSections   = 100000
	maxVecLength  = 1000000
	maxNesting    = 100
)

// reader is a cursor over a section payload. It implements io.ByteReader
// so the wasm LEB128 helpers can consume from it directly.
type reader struct {
	data []byte
	off  int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) ReadByte() (byte, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *reader) peek() (byte, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	return r.data[r.off], nil
}

func (r *reader) len() int { return len(r.data) - r.off }

func (r *reader) u32() (uint32, error) {
	v, err := wasm.ReadLEB128u(r)
	if err == io.EOF {
		return 0, io.ErrUnexpectedEOF
	}
	return v, err
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || n > r.len() {
		return nil, fmt.Errorf("need %d bytes, %d remaining", n, r.len())
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) expect(want byte, what string) error {
	b, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read %s: %w", what, err)
	}
	if b != want {
		return fmt.Errorf("%s: expected 0x%02x, got 0x%02x", what, want, b)
	}
	return nil
}

func (r *reader) name() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", fmt.Errorf("read name length: %w", err)
	}
	if n > maxNameLength {
		return "", fmt.Errorf("name length %d exceeds maximum %d", n, maxNameLength)
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", fmt.Errorf("read name: %w", err)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("name is not valid UTF-8")
	}
	return string(b), nil
}

// externName reads an importname' or exportname'. Discriminant 0x01 carries
// the version inside the name string.
func (r *reader) externName() (string, error) {
	kind, err := r.ReadByte()
	if err != nil {
		return "", fmt.Errorf("read name kind: %w", err)
	}
	if kind != 0x00 && kind != 0x01 {
		return "", fmt.Errorf("unknown name kind 0x%02x", kind)
	}
	return r.name()
}

// vecLen reads a vector length and rejects lengths the remaining input
// cannot possibly hold.
func (r *reader) vecLen(what string) (uint32, error) {
	n, err := r.u32()
	if err != nil {
		return 0, fmt.Errorf("read %s count: %w", what, err)
	}
	if n > maxVecLength || int(n) > r.len() {
		return 0, fmt.Errorf("%s count %d exceeds remaining input", what, n)
	}
	return n, nil
}

func (r *reader) optionU32() (*uint32, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch b {
	case 0x00:
		return nil, nil
	case 0x01:
		v, err := r.u32()
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
	return nil, fmt.Errorf("invalid option discriminant 0x%02x", b)
}
