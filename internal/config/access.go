package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const redacted = "<redacted>"

// GetPath returns the value at a dot-separated path of YAML key names,
// e.g. "binder.call_timeout" or "api.tokens.0.scopes". Token secrets are
// redacted.
func (c *Config) GetPath(path string) (any, error) {
	view := *c
	view.API.Tokens = make([]APITokenConfig, len(c.API.Tokens))
	for i, t := range c.API.Tokens {
		view.API.Tokens[i] = APITokenConfig{Token: redacted, Scopes: t.Scopes}
	}

	var doc yaml.Node
	if err := doc.Encode(&view); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	node, err := walk(&doc, path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, fmt.Errorf("path %q: %w", path, err)
	}
	return v, nil
}

func walk(node *yaml.Node, path string) (*yaml.Node, error) {
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		switch node.Kind {
		case yaml.MappingNode:
			next := child(node, part)
			if next == nil {
				return nil, fmt.Errorf("path %q: key %q not found", path, part)
			}
			node = next
		case yaml.SequenceNode:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node.Content) {
				return nil, fmt.Errorf("path %q: index %q not found", path, part)
			}
			node = node.Content[i]
		default:
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}
	}
	return node, nil
}

// child finds key in a mapping node, whose Content alternates key, value.
func child(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
