// Package ashmaize implements the memory-hard hash engine used to evaluate
// mining nonces. A challenge-keyed ROM is expanded in two steps (a small
// pre-buffer stretched to the full size, then mixed), and each digest reads
// pseudo-random ROM words chosen by the preimage. The build is deterministic
// for a given key and parameter set.
package ashmaize

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/minio/sha256-simd"
	"github.com/zeebo/blake3"
)

const (
	// DefaultSize is the full ROM size, 1 GiB.
	DefaultSize = 1073741824
	// DefaultPreSize is the pre-buffer size, 16 MiB.
	DefaultPreSize = 16777216
	// DefaultMixingRounds is the number of mixing passes over the ROM.
	DefaultMixingRounds = 4

	// readsPerDigest is the number of ROM words folded into each digest.
	readsPerDigest = 16
	wordSize       = 64
)

// ROM is a built challenge ROM. It is safe for concurrent DigestBatch calls.
type ROM struct {
	data []byte
	mask uint64
}

// Build constructs the ROM for a challenge key. size and preSize must be
// powers of two with size >= preSize; the defaults match the network
// parameters. Build checks ctx between expansion chunks so a cancelled
// worker does not finish a gigabyte of hashing first.
func Build(ctx context.Context, key string, size, preSize int, mixingRounds int) (*ROM, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("rom size %d is not a power of two", size)
	}
	if preSize <= 0 || preSize > size || preSize&(preSize-1) != 0 {
		return nil, fmt.Errorf("pre-buffer size %d is invalid for rom size %d", preSize, size)
	}

	pre := make([]byte, preSize)
	blake3.DeriveKey("ashmaize v1 pre-buffer", []byte(key), pre)

	rom := make([]byte, size)
	if err := stretch(ctx, rom, pre, key); err != nil {
		return nil, err
	}
	for round := 0; round < mixingRounds; round++ {
		if err := mix(ctx, rom, round); err != nil {
			return nil, err
		}
	}
	return &ROM{data: rom, mask: uint64(size/wordSize - 1)}, nil
}

// stretch fills the full ROM from the pre-buffer, one pre-buffer-sized chunk
// at a time, each chunk keyed by the chunk index.
func stretch(ctx context.Context, rom, pre []byte, key string) error {
	var chunkKey [len("ashmaize v1 chunk") + 8]byte
	copy(chunkKey[:], "ashmaize v1 chunk")

	for off := 0; off < len(rom); off += len(pre) {
		if err := ctx.Err(); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(chunkKey[len("ashmaize v1 chunk"):], uint64(off/len(pre)))
		h := blake3.New()
		h.Write(chunkKey[:])
		h.Write([]byte(key))
		h.Write(pre)
		h.Digest().Read(rom[off : off+len(pre)])
	}
	return nil
}

// mix performs one pass over the ROM, xoring each word with a word at a
// pseudo-random earlier offset so late words depend on the whole buffer.
func mix(ctx context.Context, rom []byte, round int) error {
	words := len(rom) / wordSize
	mask := uint64(words - 1)
	seed := uint64(round)*0x9e3779b97f4a7c15 + 0x2545f4914f6cdd1d

	for i := 0; i < words; i++ {
		if i%(1<<20) == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		src := (seed ^ uint64(i)) & mask
		dst := rom[i*wordSize : (i+1)*wordSize]
		other := rom[src*wordSize : (src+1)*wordSize]
		for j := 0; j < wordSize; j += 8 {
			v := binary.LittleEndian.Uint64(dst[j:]) ^ binary.LittleEndian.Uint64(other[j:])
			binary.LittleEndian.PutUint64(dst[j:], v)
		}
	}
	return nil
}

// DigestBatch hashes a batch of preimages against the ROM and returns
// lowercase hex digests. Only the leading eight hex characters are
// significant to the acceptance predicate, but full digests are returned.
func (r *ROM) DigestBatch(preimages []string) []string {
	out := make([]string, len(preimages))
	for i, p := range preimages {
		out[i] = r.digest(p)
	}
	return out
}

func (r *ROM) digest(preimage string) string {
	seed := blake3.Sum256([]byte(preimage))

	h := sha256.New()
	h.Write([]byte(preimage))
	idx := binary.LittleEndian.Uint64(seed[:8])
	for n := 0; n < readsPerDigest; n++ {
		word := (idx & r.mask) * wordSize
		h.Write(r.data[word : word+wordSize])
		// Chain the next index off the word just read.
		idx ^= binary.LittleEndian.Uint64(r.data[word:])
		idx = idx*0x9e3779b97f4a7c15 + uint64(n)
	}
	return hex.EncodeToString(h.Sum(nil))
}
