package session

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/lexlapax/go-llmspell/core"
	"github.com/lexlapax/go-llmspell/logging"
	"github.com/lexlapax/go-llmspell/state"
)

// Options configures a Manager.
type Options struct {
	// DefaultTTL is applied to new sessions when no explicit expiry is given.
	// Zero means sessions never expire.
	DefaultTTL time.Duration
	// Persistent, when set, receives version histories under
	// "versions/<session>/<name>" in a stable binary encoding so histories
	// survive the manager.
	Persistent state.Backend
	// Logger receives structured diagnostics.
	Logger logging.Logger
}

// Manager owns sessions, their artifacts and their version histories.
// Deleting a session removes all of them; only the optional persistent store
// outlives the manager.
type Manager struct {
	mu        sync.RWMutex
	sessions  map[string]*Data
	artifacts map[string]map[string][]byte          // sessionID -> hash -> bytes
	metadata  map[string]map[string]ArtifactMetadata // sessionID -> hash -> metadata
	histories map[string]map[string]*VersionHistory  // sessionID -> name -> history
	opts      Options

	*core.LoggerAdapter
}

// NewManager creates a session manager with optional overrides.
func NewManager(optFns ...func(o *Options)) *Manager {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Manager{
		sessions:      make(map[string]*Data),
		artifacts:     make(map[string]map[string][]byte),
		metadata:      make(map[string]map[string]ArtifactMetadata),
		histories:     make(map[string]map[string]*VersionHistory),
		opts:          opts,
		LoggerAdapter: core.NewLoggerAdapter(opts.Logger),
	}
}

// Create starts a new active session and returns a snapshot of its record.
func (m *Manager) Create(sessionData any) *Data {
	now := time.Now().UTC()
	d := &Data{
		SessionID:   core.NewID(),
		Status:      StatusActive,
		SessionData: sessionData,
		CreatedAt:   now,
	}
	if m.opts.DefaultTTL > 0 {
		expires := now.Add(m.opts.DefaultTTL)
		d.ExpiresAt = &expires
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[d.SessionID] = d
	snapshot := *d
	return &snapshot
}

// Get returns a snapshot of the session record or NotFound.
func (m *Manager) Get(sessionID string) (*Data, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.sessions[sessionID]
	if !ok {
		return nil, core.NewNotFoundError("session", "session not found: "+sessionID)
	}
	snapshot := *d
	return &snapshot, nil
}

// Complete marks the session as completed.
func (m *Manager) Complete(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.sessions[sessionID]
	if !ok {
		return core.NewNotFoundError("session", "session not found: "+sessionID)
	}
	d.Status = StatusCompleted
	return nil
}

// ExpireDue transitions every session past its deadline to Expired and
// returns the IDs it touched.
func (m *Manager) ExpireDue(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []string
	for id, d := range m.sessions {
		if d.Status == StatusActive && d.Expired(now) {
			d.Status = StatusExpired
			expired = append(expired, id)
		}
	}
	return expired
}

// Delete removes the session and everything it owns: artifacts, metadata and
// version histories. Reports whether the session existed.
func (m *Manager) Delete(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	delete(m.artifacts, sessionID)
	delete(m.metadata, sessionID)
	delete(m.histories, sessionID)
	return ok
}

// StoreArtifact saves artifact bytes under the session, addressed by content
// hash, and records a new version in the (session, name) history.
func (m *Manager) StoreArtifact(sessionID, name, mime string, data []byte) (ArtifactMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.sessions[sessionID]
	if !ok {
		return ArtifactMetadata{}, core.NewNotFoundError("session", "session not found: "+sessionID)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if m.artifacts[sessionID] == nil {
		m.artifacts[sessionID] = make(map[string][]byte)
		m.metadata[sessionID] = make(map[string]ArtifactMetadata)
		m.histories[sessionID] = make(map[string]*VersionHistory)
	}

	history := m.histories[sessionID][name]
	if history == nil {
		history = NewVersionHistory(name)
		m.histories[sessionID][name] = history
	}
	version := history.Record(hash)

	cp := make([]byte, len(data))
	copy(cp, data)
	m.artifacts[sessionID][hash] = cp

	meta := ArtifactMetadata{
		Hash:    hash,
		Version: version,
		Name:    name,
		Size:    int64(len(data)),
		Mime:    mime,
	}
	m.metadata[sessionID][hash] = meta
	d.ArtifactCount = len(m.artifacts[sessionID])

	if err := m.persistHistoryLocked(sessionID, history); err != nil {
		m.LogWarn("version history persist failed", "session", sessionID, "name", name, "error", err)
	}
	return meta, nil
}

// GetArtifact returns the artifact bytes and metadata for a content hash.
func (m *Manager) GetArtifact(sessionID, hash string) ([]byte, ArtifactMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.artifacts[sessionID][hash]
	if !ok {
		return nil, ArtifactMetadata{}, core.NewNotFoundError("session", "artifact not found: "+hash)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, m.metadata[sessionID][hash], nil
}

// GetArtifactVersion resolves a (name, version) pair through the history.
func (m *Manager) GetArtifactVersion(sessionID, name string, version uint32) ([]byte, ArtifactMetadata, error) {
	m.mu.RLock()
	history, ok := m.histories[sessionID][name]
	if !ok {
		m.mu.RUnlock()
		return nil, ArtifactMetadata{}, core.NewNotFoundError("session", "no versions for artifact: "+name)
	}
	hash, ok := history.Versions[version]
	m.mu.RUnlock()
	if !ok {
		return nil, ArtifactMetadata{}, core.NewNotFoundError("session", fmt.Sprintf("version %d not found for %s", version, name))
	}
	return m.GetArtifact(sessionID, hash)
}

// History returns a copy of the version history for (session, name).
func (m *Manager) History(sessionID, name string) (*VersionHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history, ok := m.histories[sessionID][name]
	if !ok {
		return nil, core.NewNotFoundError("session", "no versions for artifact: "+name)
	}
	return history.Clone(), nil
}

// persistHistoryLocked writes the history to the persistent backend under the
// stable "versions/<session>/<name>" layout. Gob gives a stable binary
// encoding for the map-based history record.
func (m *Manager) persistHistoryLocked(sessionID string, history *VersionHistory) error {
	if m.opts.Persistent == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(history); err != nil {
		return fmt.Errorf("encode version history: %w", err)
	}
	key := fmt.Sprintf("versions/%s/%s", sessionID, history.Name)
	return m.opts.Persistent.Set(key, buf.Bytes())
}

// LoadHistory reads a persisted version history back from the backend.
func LoadHistory(backend state.Backend, sessionID, name string) (*VersionHistory, error) {
	raw, ok, err := backend.Get(fmt.Sprintf("versions/%s/%s", sessionID, name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.NewNotFoundError("session", "no persisted history for: "+name)
	}
	var history VersionHistory
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&history); err != nil {
		return nil, fmt.Errorf("decode version history: %w", err)
	}
	return &history, nil
}
