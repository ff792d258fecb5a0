package domain

import "strings"

// SubmissionToken is the ephemeral credential returned by the collector's
// token endpoint. It is fetched per submission and never persisted.
type SubmissionToken struct {
	Token string `json:"token"`
	PoW   struct {
		Difficulty int `json:"difficulty"`
	} `json:"pow"`
}

const tokenLength = 32

// Usable reports whether the token has the expected 32-hex-character shape.
// Placeholder or malformed tokens mean "proceed without a token", not an
// error: the server may be running with the token feature half-deployed.
func (t SubmissionToken) Usable() bool {
	v := strings.TrimSpace(t.Token)
	if len(v) != tokenLength {
		return false
	}
	for _, c := range v {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
