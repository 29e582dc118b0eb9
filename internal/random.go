package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"strconv"
	"sync"
	"time"
)

const jtiEntropySize = 18 // 144 bits, above the 128-bit floor

var (
	workerOnce sync.Once
	workerID   string
)

// WorkerID returns a short process-scoped identifier mixed into every JTI so
// that concurrent issuance across instances cannot collide on timestamp and
// randomness alone.
func WorkerID() string {
	workerOnce.Do(func() {
		host, _ := os.Hostname()
		sum := sha256.Sum256([]byte(host + "/" + strconv.Itoa(os.Getpid())))
		workerID = base64.RawURLEncoding.EncodeToString(sum[:3])
	})
	return workerID
}

// NewJTI composes a unique token identifier from a microsecond timestamp,
// the worker identifier, and 144 bits of cryptographically secure
// randomness. The output stays within [A-Za-z0-9_-] and well inside the
// 8..255 length bound. Collision resistance, not ordering, is the contract.
func NewJTI() (string, error) {
	var entropy [jtiEntropySize]byte
	if _, err := rand.Read(entropy[:]); err != nil {
		return "", err
	}

	ts := strconv.FormatInt(time.Now().UnixMicro(), 36)
	return ts + "-" + WorkerID() + "-" + base64.RawURLEncoding.EncodeToString(entropy[:]), nil
}

// HashToken returns the SHA-256 digest of a raw token string.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// HashTokenHex returns the 64-hex-char SHA-256 digest stored in refresh
// token records. The raw token value itself is never persisted.
func HashTokenHex(token string) string {
	sum := HashToken(token)
	return hex.EncodeToString(sum[:])
}
