package gateway

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

const hashDelimiter = "|"

// ComputeRequestHash signs an outbound request: sha512(key|f1|...|fn|salt).
// Field order is the gateway's canonical order; absent fields are empty strings.
func ComputeRequestHash(fields []string, key, salt string) string {
	parts := make([]string, 0, len(fields)+2)
	parts = append(parts, strings.TrimSpace(key))
	parts = append(parts, fields...)
	parts = append(parts, strings.TrimSpace(salt))
	return sha512Hex(strings.Join(parts, hashDelimiter))
}

// ComputeResponseHash is the reverse form used by callbacks:
// sha512(salt|fn|...|f1|key), with fields given in canonical (ascending) order.
func ComputeResponseHash(fields []string, key, salt string) string {
	parts := make([]string, 0, len(fields)+2)
	parts = append(parts, strings.TrimSpace(salt))
	for i := len(fields) - 1; i >= 0; i-- {
		parts = append(parts, fields[i])
	}
	parts = append(parts, strings.TrimSpace(key))
	return sha512Hex(strings.Join(parts, hashDelimiter))
}

// VerifyResponseHash reports whether received matches the reverse hash of fields.
func VerifyResponseHash(fields []string, received, key, salt string) bool {
	return CheckResponseHash(fields, received, key, salt) == nil
}

// CheckResponseHash is VerifyResponseHash with the failure reason:
// ErrHashMissing for an empty digest, ErrHashMismatch otherwise.
func CheckResponseHash(fields []string, received, key, salt string) error {
	received = strings.TrimSpace(received)
	if received == "" {
		return ErrHashMissing
	}
	if !strings.EqualFold(ComputeResponseHash(fields, key, salt), received) {
		return ErrHashMismatch
	}
	return nil
}

func sha512Hex(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}
