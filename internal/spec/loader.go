package spec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes every YAML document in data into a normalized spec.
// Structural validation is left to the registry so callers can decide which
// external categories apply.
func ParseYAML(data []byte) ([]ArchitectureSpec, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("spec: definition payload is empty")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var specs []ArchitectureSpec
	for idx := 0; ; idx++ {
		var s ArchitectureSpec
		err := dec.Decode(&s)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("spec: decode document %d: %w", idx, err)
		}
		specs = append(specs, s.Normalized())
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("spec: definition payload is empty")
	}
	return specs, nil
}

// ParseOneYAML decodes a payload that must contain exactly one spec.
func ParseOneYAML(data []byte) (ArchitectureSpec, error) {
	specs, err := ParseYAML(data)
	if err != nil {
		return ArchitectureSpec{}, err
	}
	if len(specs) != 1 {
		return ArchitectureSpec{}, fmt.Errorf("spec: expected one document, found %d", len(specs))
	}
	return specs[0], nil
}

// LoadReader reads spec documents from r.
func LoadReader(r io.Reader) ([]ArchitectureSpec, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("spec: read definition: %w", err)
	}
	return ParseYAML(content)
}

// MarshalYAML encodes a spec as a single YAML document.
func MarshalYAML(s ArchitectureSpec) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("spec: encode %s: %w", s.ID, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("spec: encode %s: %w", s.ID, err)
	}
	return buf.Bytes(), nil
}
