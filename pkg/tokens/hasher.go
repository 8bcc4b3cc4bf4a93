package tokens

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Hasher derives the one-way digest stored in place of a token secret.
// Without a pepper it is plain SHA-256; with one it is HMAC-SHA256 keyed by
// the pepper. Either way the result is lower-case hex.
type Hasher struct {
	pepper []byte
}

// NewHasher constructs a hasher with the provided pepper bytes, which may be empty.
func NewHasher(pepper []byte) Hasher {
	return Hasher{pepper: append([]byte(nil), pepper...)}
}

// Digest hashes the given secret.
func (h Hasher) Digest(secret string) string {
	if len(h.pepper) == 0 {
		sum := sha256.Sum256([]byte(secret))
		return hex.EncodeToString(sum[:])
	}
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}
