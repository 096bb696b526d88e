package service

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	licenseKeyPrefix   = "WASM"
	licenseKeyGroups   = 3
	licenseKeyGroupLen = 4
	licenseKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// newLicenseKey returns a key shaped WASM-XXXX-XXXX-XXXX.
func newLicenseKey() (string, error) {
	var b strings.Builder
	b.WriteString(licenseKeyPrefix)
	max := big.NewInt(int64(len(licenseKeyAlphabet)))
	for g := 0; g < licenseKeyGroups; g++ {
		b.WriteByte('-')
		for i := 0; i < licenseKeyGroupLen; i++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			b.WriteByte(licenseKeyAlphabet[n.Int64()])
		}
	}
	return b.String(), nil
}

func validLicenseKeyShape(key string) bool {
	parts := strings.Split(key, "-")
	if len(parts) != licenseKeyGroups+1 || parts[0] != licenseKeyPrefix {
		return false
	}
	for _, part := range parts[1:] {
		if len(part) != licenseKeyGroupLen {
			return false
		}
		for i := 0; i < len(part); i++ {
			if !strings.ContainsRune(licenseKeyAlphabet, rune(part[i])) {
				return false
			}
		}
	}
	return true
}
