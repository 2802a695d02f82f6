// Package session provides lifecycle-managed conversational contexts that own
// content-addressed artifacts and their version histories. Sessions expire;
// dropping a session removes everything it owns unless the manager was
// configured with a persistent store.
package session

import (
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusActive marks a live session.
	StatusActive Status = "active"
	// StatusCompleted marks an orderly finished session.
	StatusCompleted Status = "completed"
	// StatusExpired marks a session past its expiry deadline.
	StatusExpired Status = "expired"
)

// Data is the session record. SessionData carries arbitrary caller payload as
// the host value union.
type Data struct {
	SessionID     string     `json:"session_id"`
	Status        Status     `json:"status"`
	SessionData   any        `json:"session_data,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	ArtifactCount int        `json:"artifact_count"`
}

// Expired reports whether the session has an expiry in the past relative to now.
func (d *Data) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && now.After(*d.ExpiresAt)
}

// ArtifactMetadata describes one stored artifact. Artifacts are addressed by
// content hash; Version is the position in the per-(session, name) history.
type ArtifactMetadata struct {
	Hash    string `json:"hash"`
	Version uint32 `json:"version"`
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Mime    string `json:"mime"`
}

// VersionHistory tracks every stored version of a named artifact within a
// session. Versions start at 1.
type VersionHistory struct {
	Name           string            `json:"name"`
	CurrentVersion uint32            `json:"current_version"`
	Versions       map[uint32]string `json:"versions"`       // version -> artifact id (hash)
	VersionHashes  map[uint32]string `json:"version_hashes"` // version -> content hash
}

// NewVersionHistory creates an empty history for the artifact name.
func NewVersionHistory(name string) *VersionHistory {
	return &VersionHistory{
		Name:          name,
		Versions:      map[uint32]string{},
		VersionHashes: map[uint32]string{},
	}
}

// Record appends a new version pointing at the artifact hash and returns the
// assigned version number.
func (h *VersionHistory) Record(hash string) uint32 {
	h.CurrentVersion++
	h.Versions[h.CurrentVersion] = hash
	h.VersionHashes[h.CurrentVersion] = hash
	return h.CurrentVersion
}

// Clone returns a deep copy safe for independent mutation.
func (h *VersionHistory) Clone() *VersionHistory {
	clone := NewVersionHistory(h.Name)
	clone.CurrentVersion = h.CurrentVersion
	for k, v := range h.Versions {
		clone.Versions[k] = v
	}
	for k, v := range h.VersionHashes {
		clone.VersionHashes[k] = v
	}
	return clone
}
