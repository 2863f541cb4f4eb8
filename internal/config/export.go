package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Export writes cfg to path. The format follows the extension: .yaml/.yml,
// .json, anything else TOML.
func Export(path string, cfg *Config) error {
	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var data []byte
	switch formatOf(path) {
	case "yaml":
		data, err = yaml.Marshal(sanitized)
		if err != nil {
			return fmt.Errorf("encode config YAML: %w", err)
		}
	case "json":
		data, err = json.MarshalIndent(sanitized, "", "  ")
		if err != nil {
			return fmt.Errorf("encode config JSON: %w", err)
		}
	default:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(sanitized); err != nil {
			return fmt.Errorf("encode config TOML: %w", err)
		}
		data = buf.Bytes()
	}
	return writeAtomic(path, data)
}

// Import reads a configuration exported by Export. Missing fields keep their defaults.
func Import(path string) (*Config, error) {
	format := formatOf(path)
	if format == "toml" {
		return Load(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if format == "json" {
		return MergeJSON(DefaultConfig(), data)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config YAML: %w", err)
	}
	return NormalizeAndValidate(cfg)
}

// MergeJSON decodes a full or partial JSON document over a copy of base.
// Fields the document omits keep base's values. Presets and drives are
// replaced as whole lists when present, since encoding/json would otherwise
// fill the new entries in on top of base's existing elements.
func MergeJSON(base *Config, data []byte) (*Config, error) {
	var present struct {
		Presets    json.RawMessage `json:"presets"`
		Collection struct {
			Drives json.RawMessage `json:"drives"`
		} `json:"collection"`
	}
	if err := json.Unmarshal(data, &present); err != nil {
		return nil, fmt.Errorf("decode config JSON: %w", err)
	}

	next := base.Clone()
	if present.Presets != nil {
		next.Presets = nil
	}
	if present.Collection.Drives != nil {
		next.Collection.Drives = nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(next); err != nil {
		return nil, fmt.Errorf("decode config JSON: %w", err)
	}
	return NormalizeAndValidate(next)
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return "toml"
	}
}
