// Package checksum provides content digests for working-copy files and changes.
package checksum

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
)

// Encoding is the alphabet used for change hashes and public keys.
var Encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Domain separates hashes of different object kinds.
// Format: SHA256(domain + 0x00 + data).
func Domain(domain string, data []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return h.Sum(nil)
}

// DomainBase32 is Domain encoded with Encoding.
func DomainBase32(domain string, data []byte) string {
	return Encoding.EncodeToString(Domain(domain, data))
}
