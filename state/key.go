package state

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/lexlapax/go-llmspell/core"
)

const (
	maxKeyLength       = 256
	maxScopedKeyLength = 512
)

// ValidateKey normalizes the key to NFC and enforces the boundary rules:
// non-empty, at most 256 characters, no path traversal or control sequences,
// and no reserved "__" / "$$" prefixes. Invalid keys are rejected, never
// sanitized for storage.
func ValidateKey(key string) (string, error) {
	if key == "" {
		return "", core.NewValidationError("key", "key must not be empty")
	}
	nfc := norm.NFC.String(key)
	if utf8.RuneCountInString(nfc) > maxKeyLength {
		return "", core.NewValidationError("key", "key exceeds 256 characters")
	}
	for _, forbidden := range []string{"..", `\\`, "//", "\x00", "\n"} {
		if strings.Contains(nfc, forbidden) {
			return "", core.NewValidationError("key", "key contains forbidden sequence")
		}
	}
	if strings.HasPrefix(nfc, "__") || strings.HasPrefix(nfc, "$$") {
		return "", core.NewValidationError("key", "key uses a reserved prefix")
	}
	return nfc, nil
}

// ScopedKey validates the key and joins it with the scope prefix. The scoped
// form is limited to 512 characters.
func ScopedKey(scope Scope, key string) (string, error) {
	nfc, err := ValidateKey(key)
	if err != nil {
		return "", err
	}
	scoped := scope.Prefix() + nfc
	if utf8.RuneCountInString(scoped) > maxScopedKeyLength {
		return "", core.NewValidationError("key", "scoped key exceeds 512 characters")
	}
	return scoped, nil
}

// ExtractKey strips the scope prefix from a scoped key, returning the bare
// NFC key and whether the scoped key actually belongs to the scope.
func ExtractKey(scopedKey string, scope Scope) (string, bool) {
	prefix := scope.Prefix()
	if !strings.HasPrefix(scopedKey, prefix) {
		return "", false
	}
	return scopedKey[len(prefix):], true
}

// BelongsToScope reports whether a scoped key falls inside the given scope's
// namespace. Every key belongs to Global; a Step key also belongs to its
// enclosing Workflow scope.
func BelongsToScope(scopedKey string, scope Scope) bool {
	return strings.HasPrefix(scopedKey, scope.Prefix())
}
