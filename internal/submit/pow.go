package submit

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// maxNonceAttempts bounds the proof-of-work search so a hostile difficulty
// cannot pin a CPU indefinitely. Difficulty 4 solves in ~65k hashes on
// average; this leaves generous headroom for 5.
const maxNonceAttempts = 2_000_000

// firstSuccess tries up to n candidates in order and returns the first
// accepted one. Both the nonce search and the token-endpoint probe are
// this same pattern.
func firstSuccess[T any](n int, try func(i int) (T, bool)) (T, bool) {
	for i := 0; i < n; i++ {
		if v, ok := try(i); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// solveNonce searches increasing integer nonces until
// sha256(token + "." + nonce) starts with difficulty zero hex digits.
// Returns ok=false when the bound is exhausted; the caller proceeds
// without a nonce.
func solveNonce(token string, difficulty int) (string, bool) {
	if difficulty <= 0 {
		return "", false
	}
	prefix := strings.Repeat("0", difficulty)
	return firstSuccess(maxNonceAttempts, func(i int) (string, bool) {
		nonce := strconv.Itoa(i)
		sum := sha256.Sum256([]byte(token + "." + nonce))
		if strings.HasPrefix(hex.EncodeToString(sum[:]), prefix) {
			return nonce, true
		}
		return "", false
	})
}
