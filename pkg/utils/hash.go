package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashString returns a short stable hex digest, used for cache keys and
// deterministic chunk identifiers.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:16])
}
