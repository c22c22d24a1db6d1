package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// keyring holds sha256 digests of the configured API keys; the raw keys are
// not retained.
type keyring struct {
	hashes [][]byte
}

func newKeyring(keys []string) keyring {
	kr := keyring{}
	for _, k := range keys {
		if k == "" {
			continue
		}
		h := sha256.Sum256([]byte(k))
		kr.hashes = append(kr.hashes, h[:])
	}
	return kr
}

func (kr keyring) empty() bool { return len(kr.hashes) == 0 }

// match reports whether key is configured, and its hash id for logging.
func (kr keyring) match(key string) (string, bool) {
	h := sha256.Sum256([]byte(key))
	found := 0
	for _, want := range kr.hashes {
		found |= subtle.ConstantTimeCompare(h[:], want)
	}
	if found != 1 {
		return "", false
	}
	return hex.EncodeToString(h[:4]), true
}

func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
