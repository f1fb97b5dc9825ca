package skill

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashSource returns the content hash used to key the definition and
// compiled-module caches. Identical bytes always map to the same hash, so
// re-parsing unchanged source is a cache hit and changed source is an evict.
func HashSource(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}
