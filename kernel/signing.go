package kernel

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/lexlapax/go-llmspell/core"
)

// SignatureScheme is the only supported wire signature scheme.
const SignatureScheme = "hmac-sha256"

// Signer authenticates wire frames with HMAC-SHA256 over the four JSON
// segments (header, parent_header, metadata, content), in that order.
type Signer struct {
	key []byte
}

// NewSigner creates a signer from the shared connection key. An empty key
// disables signing: Sign returns "" and Verify accepts everything, matching
// kernels launched with an empty connection file key.
func NewSigner(key string) *Signer {
	return &Signer{key: []byte(key)}
}

// NewRandomKey generates a fresh 32-byte key, hex-encoded for the connection
// file.
func NewRandomKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", core.NewComponentError("kernel", "key generation failed", err)
	}
	return hex.EncodeToString(raw), nil
}

// Sign returns the hex HMAC over the given segments.
func (s *Signer) Sign(header, parentHeader, metadata, content []byte) string {
	if len(s.key) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(header)
	mac.Write(parentHeader)
	mac.Write(metadata)
	mac.Write(content)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the segments. Comparison is
// constant time.
func (s *Signer) Verify(signature string, header, parentHeader, metadata, content []byte) bool {
	if len(s.key) == 0 {
		return true
	}
	expected := s.Sign(header, parentHeader, metadata, content)
	return hmac.Equal([]byte(expected), []byte(signature))
}
