// Package frontmatter splits and assembles Markdown files with a YAML
// frontmatter header.
package frontmatter

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// Split separates YAML frontmatter (between leading --- delimiters) from
// the Markdown body. If no frontmatter is found, or the YAML block does
// not parse, the entire content is returned as body with nil metadata.
func Split(data []byte) (map[string]any, string) {
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	// Find end delimiter.
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		// No closing delimiter — treat everything as body.
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	// Body starts after closing delimiter line.
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}

	return fm, body
}

// Assemble renders metadata and body back into a single Markdown file.
func Assemble(metadata map[string]any, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(delim + "\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(metadata); err != nil {
		return nil, fmt.Errorf("frontmatter: encode metadata: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("frontmatter: close encoder: %w", err)
	}

	buf.WriteString(delim + "\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// Int64 reads an integer-valued metadata key, tolerating the int/int64/
// uint64 variants the YAML decoder may produce.
func Int64(fm map[string]any, key string) (int64, bool) {
	raw, ok := fm[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	}
	return 0, false
}

// String reads a string-valued metadata key.
func String(fm map[string]any, key string) (string, bool) {
	raw, ok := fm[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}
