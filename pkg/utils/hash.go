package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// HashStrings produces a stable hex digest of the given parts joined with a
// separator that cannot appear in ids or phrases after normalization.
func HashStrings(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// HashSorted sorts a copy of the values before hashing, so the digest is
// independent of input order. Used for seed-id sets and phrase signatures.
func HashSorted(values []string) string {
	sorted := make([]string, len(values))
	copy(sorted, values)
	sort.Strings(sorted)
	return HashStrings(strings.Join(sorted, "\x1f"))
}
