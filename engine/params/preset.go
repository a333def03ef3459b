package params

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Preset is a set of parameter values keyed by parameter name. Bool parameters hold bools, float
// parameters hold numbers, and enum and texture parameters hold labels or names.
type Preset map[string]any

// ParsePreset decodes a TOML preset.
//
// Parameters:
//   - data: the TOML document
//
// Returns:
//   - Preset: the decoded preset
//   - error: an error if the document is not valid TOML
func ParsePreset(data []byte) (Preset, error) {
	p := Preset{}
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse preset: %w", err)
	}
	return p, nil
}

// LoadPreset reads and decodes a TOML preset file.
func LoadPreset(path string) (Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset: %w", err)
	}
	return ParsePreset(data)
}

// Encode returns the preset as a TOML document with sorted keys.
func (p Preset) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(map[string]any(p)); err != nil {
		return nil, fmt.Errorf("failed to encode preset: %w", err)
	}
	return buf.Bytes(), nil
}

// SavePreset writes a preset to a TOML file.
func SavePreset(path string, p Preset) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preset: %w", err)
	}
	return nil
}

// valueOf converts a decoded preset value to a Value of the descriptor kind.
func (d Descriptor) valueOf(raw any) (Value, error) {
	switch d.Kind {
	case KindBool:
		switch v := raw.(type) {
		case bool:
			return Bool(v), nil
		case int64:
			return Bool(v != 0), nil
		case float64:
			return Bool(v != 0), nil
		}
	case KindFloat:
		if f, ok := number(raw); ok {
			return Float(f), nil
		}
	case KindEnum:
		if s, ok := raw.(string); ok {
			return Text(s), nil
		}
		if f, ok := number(raw); ok {
			return Float(f), nil
		}
	case KindTexture:
		if s, ok := raw.(string); ok {
			return Text(s), nil
		}
	}
	return Value{}, fmt.Errorf("invalid %s value %v for %q", d.Kind, raw, d.Name)
}

func number(raw any) (float32, bool) {
	switch v := raw.(type) {
	case int64:
		return float32(v), true
	case float64:
		return float32(v), true
	case int:
		return float32(v), true
	case float32:
		return v, true
	}
	return 0, false
}
