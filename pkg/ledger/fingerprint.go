package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Fingerprint computes the deterministic identifier of a contribution.
//
// Determinism rules:
//   - Only developer, code, timestamp and language are hashed, in that order.
//   - Every field is length-prefixed (8 bytes, big endian) to avoid ambiguity.
//   - A missing field is encoded as the empty string, never omitted.
//
// The result is the hex-encoded SHA-256 digest.
func Fingerprint(c *Contribution) string {
	var fields [4]string
	if c != nil {
		fields = [4]string{c.Developer, c.Code, string(c.Timestamp), c.Language}
	}

	h := sha256.New()
	var length [8]byte
	for _, field := range fields {
		binary.BigEndian.PutUint64(length[:], uint64(len(field)))
		h.Write(length[:])
		h.Write([]byte(field))
	}

	return hex.EncodeToString(h.Sum(nil))
}
