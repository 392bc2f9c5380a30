package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads, expands, parses, and validates one configuration file.
// ${VAR} references anywhere in the file are replaced from the
// environment before parsing, so keys can stay out of the file itself.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes a single-document YAML configuration.
func Parse(data []byte) (*Config, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		if err == io.EOF {
			cfg = Config{}
		} else {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}

	normalized := make(map[string]ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		normalized[strings.ToLower(strings.TrimSpace(name))] = p
	}
	cfg.Providers = normalized

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
