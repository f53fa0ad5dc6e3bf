package gateway

import (
	"crypto/sha256"
	"encoding/hex"
)

// sign computes the exchange's double-SHA256 request signature, the same
// scheme as the teacher's bitunix.Sign: sha256(nonce+ts+apiKey), then
// sha256(hex(that)+secret).
func sign(secret, nonce, apiKey, ts string) string {
	h1 := sha256.Sum256([]byte(nonce + ts + apiKey))
	h2 := sha256.Sum256([]byte(hex.EncodeToString(h1[:]) + secret))
	return hex.EncodeToString(h2[:])
}
