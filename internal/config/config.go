// Package config loads the YAML configuration of the utf8stream command.
//
// All values are optional; command-line flags override them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chronos-tachyon/go-utf8stream"
)

// Config represents a utf8stream.yaml file.
type Config struct {
	Policy                 string `yaml:"policy"`
	Replacement            string `yaml:"replacement"`
	AllowRedundantEncoding bool   `yaml:"allow_redundant_encoding"`
	ChunkSize              int    `yaml:"chunk_size"`
	Jobs                   int    `yaml:"jobs"`
	Format                 string `yaml:"format"`
	LogLevel               string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Policy:      "ignore",
		Replacement: utf8stream.ReplacementCharacter,
		ChunkSize:   utf8stream.DefaultBlockSize,
		Jobs:        1,
		Format:      "text",
		LogLevel:    "info",
	}
}

// Load reads a YAML config file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate checks the values that can be checked without building anything.
func (c *Config) Validate() error {
	if _, err := ParsePolicy(c.Policy, c.Replacement); err != nil {
		return err
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be >= 1, got %d", c.ChunkSize)
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be >= 1, got %d", c.Jobs)
	}
	return nil
}

// DecoderPolicy returns the invalid-sequence policy named by the config.
func (c *Config) DecoderPolicy() (utf8stream.Policy, error) {
	return ParsePolicy(c.Policy, c.Replacement)
}

// ErrPolicyFailed is the error configured on the "fail" policy.
var ErrPolicyFailed = errors.New("input is not valid UTF-8")

// ParsePolicy maps a policy name to a utf8stream.Policy.  replacement is
// only used by "replace".
func ParsePolicy(name, replacement string) (utf8stream.Policy, error) {
	switch strings.ToLower(name) {
	case "", "ignore":
		return utf8stream.Ignore(), nil
	case "fail":
		return utf8stream.Fail(ErrPolicyFailed), nil
	case "replace":
		return utf8stream.Replace(replacement), nil
	default:
		return nil, fmt.Errorf("invalid policy: %q (must be ignore, fail, or replace)", name)
	}
}
