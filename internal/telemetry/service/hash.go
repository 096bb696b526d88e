package service

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashIP returns a short stable fingerprint of an address; raw client
// addresses are never stored.
func HashIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])[:16]
}
