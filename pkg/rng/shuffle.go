package rng

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Shuffle returns a new slice holding the 52 card IDs of deck permuted by a
// Fisher-Yates shuffle driven entirely by seed: the same seed and the same
// input deck always produce the same output order. This is what makes a
// dealt hand replayable from its recorded seed alone, independent of
// whatever wall-clock entropy produced that seed in the first place.
//
// seed is hashed to 32 bytes via SHA-256 unless it is already exactly 32
// bytes long (see expandSeed below), so a short or arbitrary-length recorded seed still keys a
// full-strength AES-256 stream.
func Shuffle(seed []byte, deck []int) ([]int, error) {
	stream, err := newDeterministicStream(seed)
	if err != nil {
		return nil, err
	}

	out := make([]int, len(deck))
	copy(out, deck)

	for i := len(out) - 1; i > 0; i-- {
		j := stream.intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// deterministicStream is an AES-CTR keystream keyed purely from a seed, with
// a zero IV: no wall-clock or counter state leaks in from outside the seed,
// so two streams built from the same seed always emit the same bytes.
type deterministicStream struct {
	stream cipher.Stream
}

func newDeterministicStream(seed []byte) (*deterministicStream, error) {
	key := expandSeed(seed)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	iv := make([]byte, aes.BlockSize)
	return &deterministicStream{stream: cipher.NewCTR(block, iv)}, nil
}

func expandSeed(seed []byte) []byte {
	if len(seed) == 32 {
		return seed
	}
	hash := sha256.Sum256(seed)
	return hash[:]
}

// intn returns a uniform-ish value in [0, n) drawn from the keystream. A
// 4-byte draw against a 52-card deck carries negligible modulo bias.
func (d *deterministicStream) intn(n int) int {
	if n <= 0 {
		return 0
	}
	buf := make([]byte, 4)
	d.stream.XORKeyStream(buf, buf)
	return int(binary.BigEndian.Uint32(buf) % uint32(n))
}
