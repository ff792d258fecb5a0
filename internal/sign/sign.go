// Package sign produces the request signature the collector verifies on
// every submission.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Signer computes HMAC-SHA256 signatures bound to a timestamp, so a
// captured request cannot be replayed outside the collector's clock-skew
// window.
type Signer struct {
	secret []byte
}

// New returns a Signer for the shared secret. An empty secret still signs;
// the collector decides whether unsigned-equivalent requests are accepted.
func New(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign returns the hex signature and the timestamp string to send with it.
// The signed message is "{unix-seconds}." followed by the exact body bytes.
func (s *Signer) Sign(body []byte, now time.Time) (signature, timestamp string) {
	timestamp = strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), timestamp
}

// Verify checks a signature produced by Sign. Used by tests and by any
// embedded mock collector; comparison is constant time.
func (s *Signer) Verify(body []byte, timestamp, signature string) bool {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expect := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expect), []byte(signature))
}
