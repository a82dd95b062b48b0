// Package sha256 derives stable hex digests used as record identities.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex digest of the concatenated parts.
func Sum(parts ...[]byte) string {
	d := sha256.New()
	for _, p := range parts {
		d.Write(p) //nolint:errcheck // hash.Hash writes never fail
	}
	return hex.EncodeToString(d.Sum(nil))
}
