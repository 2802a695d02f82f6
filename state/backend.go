package state

// Backend is the pluggable persistence layer beneath the state manager. Keys
// arriving here are already validated, NFC-normalized scoped keys; values are
// opaque serialized bytes. Implementations must be safe for concurrent use.
//
// The in-memory, sqlite and any future backends are interchangeable at this
// boundary.
type Backend interface {
	// Get returns the stored bytes and whether the key exists.
	Get(key string) ([]byte, bool, error)

	// Set stores the bytes under the key, overwriting any previous value.
	Set(key string, value []byte) error

	// Delete removes the key, reporting whether it existed.
	Delete(key string) (bool, error)

	// ListKeys returns all stored keys with the given prefix.
	ListKeys(prefix string) ([]string, error)

	// Close releases backend resources.
	Close() error
}
