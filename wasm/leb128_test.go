package wasm

import (
	"bytes"
	"errors"
	"testing"
)

func TestULEB128_RoundTrip(t *testing.T) {
	values := []uint64{0, 1, 63, 64, 127, 128, 255, 300, 16383, 16384, 1<<32 - 1}
	for _, v := range values {
		buf := AppendULEB128(nil, v)
		got, err := ReadLEB128u64(bytes.NewReader(buf))
		if err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v {
			t.Errorf("roundtrip %d: got %d", v, got)
		}
		if v <= 1<<32-1 {
			got32, n, err := DecodeULEB128(buf)
			if err != nil {
				t.Fatalf("DecodeULEB128 %d: %v", v, err)
			}
			if uint64(got32) != v || n != len(buf) {
				t.Errorf("DecodeULEB128 %d: got %d (%d bytes of %d)", v, got32, n, len(buf))
			}
		}
	}
}

func TestSLEB128_RoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 63, 64, -64, -65, 127, -128, 1 << 20, -(1 << 31), 1<<31 - 1, -(1 << 62)}
	for _, v := range values {
		buf := AppendSLEB128(nil, v)
		got, err := ReadLEB128s64(bytes.NewReader(buf))
		if err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v {
			t.Errorf("roundtrip %d: got %d (bytes %x)", v, got, buf)
		}
	}
}

func TestReadLEB128u_Overflow(t *testing.T) {
	_, err := ReadLEB128u(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x7f}))
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
	_, _, err = DecodeULEB128([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("expected overflow for 6-byte encoding, got %v", err)
	}
}

func TestDecodeULEB128_Truncated(t *testing.T) {
	_, _, err := DecodeULEB128([]byte{0x80, 0x80})
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("expected truncated, got %v", err)
	}
}

func TestReadLEB128s_Range(t *testing.T) {
	buf := AppendSLEB128(nil, 1<<40)
	if _, err := ReadLEB128s(bytes.NewReader(buf)); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected overflow for 2^40, got %v", err)
	}
	buf = AppendSLEB128(nil, -5)
	v, err := ReadLEB128s(bytes.NewReader(buf))
	if err != nil || v != -5 {
		t.Errorf("ReadLEB128s(-5) = %d, %v", v, err)
	}
}
