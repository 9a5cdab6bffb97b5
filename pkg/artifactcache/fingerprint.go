package artifactcache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint digests the natal inputs that determine a computed
// artifact, so equal inputs share a cache row and any input change maps
// to a different key. Inputs are normalized (trimmed, lowercased)
// before hashing: "Buenos Aires" and " buenos aires " describe the same
// birth place.
func Fingerprint(birthDate, birthTime, place, gender string) string {
	h := sha256.New()
	for _, part := range []string{birthDate, birthTime, place, gender} {
		h.Write([]byte(strings.ToLower(strings.TrimSpace(part))))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
