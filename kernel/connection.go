package kernel

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/lexlapax/go-llmspell/core"
)

// ConnectionFile is the discovery document written next to a running kernel.
// Field order is fixed so serialize/parse/re-serialize is byte-stable.
type ConnectionFile struct {
	Transport       string `json:"transport"`
	IP              string `json:"ip"`
	ShellPort       int    `json:"shell_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	ControlPort     int    `json:"control_port"`
	HeartbeatPort   int    `json:"hb_port"`
	Key             string `json:"key"`
	SignatureScheme string `json:"signature_scheme"`
	KernelName      string `json:"kernel_name"`
}

// NewConnectionFile builds a connection document with the defaults the
// discovery format mandates. Ports start at 0 and are rewritten once the
// transport has bound its sockets.
func NewConnectionFile(key, kernelName string) ConnectionFile {
	return ConnectionFile{
		Transport:       "tcp",
		IP:              "127.0.0.1",
		Key:             key,
		SignatureScheme: SignatureScheme,
		KernelName:      kernelName,
	}
}

// SetPort rewrites the port for one channel after bind.
func (c *ConnectionFile) SetPort(channel Channel, port int) {
	switch channel {
	case ChannelShell:
		c.ShellPort = port
	case ChannelIOPub:
		c.IOPubPort = port
	case ChannelStdin:
		c.StdinPort = port
	case ChannelControl:
		c.ControlPort = port
	case ChannelHeartbeat:
		c.HeartbeatPort = port
	}
}

// Port returns the port bound for one channel.
func (c ConnectionFile) Port(channel Channel) int {
	switch channel {
	case ChannelShell:
		return c.ShellPort
	case ChannelIOPub:
		return c.IOPubPort
	case ChannelStdin:
		return c.StdinPort
	case ChannelControl:
		return c.ControlPort
	case ChannelHeartbeat:
		return c.HeartbeatPort
	default:
		return 0
	}
}

// Marshal serializes the document. Output is deterministic for a given
// value.
func (c ConnectionFile) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return nil, core.NewComponentError("kernel", "connection file encode failed", err)
	}
	return buf.Bytes(), nil
}

// ParseConnectionFile parses a connection document.
func ParseConnectionFile(data []byte) (ConnectionFile, error) {
	var c ConnectionFile
	if err := json.Unmarshal(data, &c); err != nil {
		return ConnectionFile{}, core.NewValidationError("connection_file", "decode failed: "+err.Error())
	}
	return c, nil
}

// DefaultPath returns the predictable location for a kernel id:
// ~/.llmspell/kernels/kernel-<id>.json.
func DefaultPath(kernelID string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", core.NewComponentError("kernel", "home directory lookup failed", err)
	}
	return filepath.Join(home, ".llmspell", "kernels", "kernel-"+kernelID+".json"), nil
}

// Write persists the document at path, creating parent directories.
func (c ConnectionFile) Write(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return core.NewComponentError("kernel", "connection directory create failed", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return core.NewComponentError("kernel", "connection file write failed", err)
	}
	return nil
}

// ReadConnectionFile loads and parses the document at path.
func ReadConnectionFile(path string) (ConnectionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ConnectionFile{}, core.NewNotFoundError("kernel", "connection file not found: "+path)
	}
	return ParseConnectionFile(data)
}
