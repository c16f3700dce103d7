package ledger

import (
	"fmt"
	"strconv"
)

// Difficulty is the 32-bit acceptance mask taken from the first 4 bytes of a
// challenge's difficulty field. A digest is accepted when its leading 32 bits
// set no bit outside the mask.
type Difficulty uint32

// ParseDifficulty parses the significant prefix of a hex difficulty string.
func ParseDifficulty(s string) (Difficulty, error) {
	if len(s) > 8 {
		s = s[:8]
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing difficulty %q: %w", s, err)
	}
	return Difficulty(v), nil
}

// Accepts reports whether a digest with the given leading 32 bits satisfies
// the mask: prefix | mask == mask.
func (d Difficulty) Accepts(prefix uint32) bool {
	return prefix|uint32(d) == uint32(d)
}

// DigestPrefix extracts the leading 32 bits of a hex digest.
func DigestPrefix(hexDigest string) (uint32, error) {
	if len(hexDigest) > 8 {
		hexDigest = hexDigest[:8]
	}
	v, err := strconv.ParseUint(hexDigest, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing digest prefix %q: %w", hexDigest, err)
	}
	return uint32(v), nil
}
