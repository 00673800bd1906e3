package wasi

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
)

// MaxRandomBytes limits a single get-random-bytes call.
const MaxRandomBytes = 1 << 20

// Random implements wasi:random/random from crypto/rand.
type Random struct{}

func (h *Random) Namespace() string {
	return "wasi:random/random@" + Version
}

func (h *Random) GetRandomBytes(_ context.Context, n uint64) ([]byte, error) {
	if n > MaxRandomBytes {
		n = MaxRandomBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (h *Random) GetRandomU64(_ context.Context) (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// InsecureRandom implements wasi:random/insecure.
type InsecureRandom struct{}

func (h *InsecureRandom) Namespace() string {
	return "wasi:random/insecure@" + Version
}

func (h *InsecureRandom) GetInsecureRandomBytes(_ context.Context, n uint64) []byte {
	if n > MaxRandomBytes {
		n = MaxRandomBytes
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(mrand.Uint32())
	}
	return buf
}

func (h *InsecureRandom) GetInsecureRandomU64(_ context.Context) uint64 {
	return mrand.Uint64()
}
