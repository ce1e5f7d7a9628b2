package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format represents an output format of the decode command.
type Format string

// Supported formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses a format string.  Empty means FormatText.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid format: %q (must be text, json, or yaml)", s)
	}
}

// Renderer writes decode results.
type Renderer struct {
	format Format
	out    io.Writer
}

// NewRenderer creates a renderer for the named format.
func NewRenderer(format string, out io.Writer) (*Renderer, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return &Renderer{format: f, out: out}, nil
}

// Render outputs results in the configured format.  The text format writes
// the decoded text of each input, one after the other, and nothing else.
func (r *Renderer) Render(results []Result) error {
	switch r.format {
	case FormatText:
		for _, res := range results {
			if _, err := io.WriteString(r.out, res.Text); err != nil {
				return err
			}
		}
		return nil
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}
