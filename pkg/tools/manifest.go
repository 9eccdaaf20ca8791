// Package tools manages tool manifests and the capability surface exposed to
// the pipeline. New tools are validated before being added to a registry so
// unsafe permissions or malformed manifests never land on disk.
package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ManifestFileName is the file each registered tool directory contains.
const ManifestFileName = "manifest.json"

// Manifest describes one registered tool: where it lives, what it accepts
// and produces, and what it is allowed to do.
type Manifest struct {
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	Entrypoint   string         `json:"entrypoint"`
	InputSchema  map[string]any `json:"input_schema,omitempty"`
	OutputSchema map[string]any `json:"output_schema,omitempty"`
	Permissions  []string       `json:"permissions,omitempty"`
	Tests        []string       `json:"tests,omitempty"`
}

// Validate checks the structural requirements of a manifest.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("tool manifest requires a name")
	}
	if m.Version == "" {
		return fmt.Errorf("tool manifest %q requires a version", m.Name)
	}
	if m.Entrypoint == "" {
		return fmt.Errorf("tool manifest %q requires an entrypoint", m.Name)
	}
	return nil
}

// ParseManifest decodes and validates a manifest from JSON. Unknown fields
// are rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := strictUnmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid tool manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// MarshalIndent renders the manifest as pretty-printed JSON for disk storage.
func (m *Manifest) MarshalIndent() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest %q: %w", m.Name, err)
	}
	return data, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
