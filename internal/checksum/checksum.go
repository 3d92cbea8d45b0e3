// Package checksum computes content fingerprints and the identifiers derived
// from them.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// activityIDLen is the number of fingerprint hex chars kept in an activity id.
const activityIDLen = 24

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumReader streams r through SHA-256 and returns the hex digest.
func SumReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ActivityID derives the stable activity identifier for a fingerprint.
func ActivityID(fingerprint string) string {
	if len(fingerprint) > activityIDLen {
		fingerprint = fingerprint[:activityIDLen]
	}
	return "act_" + fingerprint
}
