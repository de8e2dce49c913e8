package policy

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// yamlDocument is the on-disk authoring format for a rule set: operators
// write rules in YAML rather than assembling []Rule literals, the same way
// rules are typically staged before CreateBundle publishes them.
type yamlDocument struct {
	Metadata map[string]string `yaml:"metadata"`
	Rules    []Rule            `yaml:"rules"`
}

// ParseRulesYAML parses a YAML byte slice into a rule set plus its bundle
// metadata, ready to hand to Store.CreateBundle.
func ParseRulesYAML(data []byte) ([]Rule, map[string]string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil, fmt.Errorf("policy: empty rule document")
	}

	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("policy: yaml: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, nil, fmt.Errorf("policy: document has no rules")
	}
	for _, r := range doc.Rules {
		if r.ID == "" {
			return nil, nil, fmt.Errorf("policy: rule missing id")
		}
	}

	return doc.Rules, doc.Metadata, nil
}

// ParseRulesYAMLFromReader reads r to completion and delegates to
// ParseRulesYAML.
func ParseRulesYAMLFromReader(r io.Reader) ([]Rule, map[string]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("policy: read rule document: %w", err)
	}
	return ParseRulesYAML(data)
}

// MarshalBundleYAML serializes a published bundle back to the same
// rules/metadata YAML shape, for operators exporting the active bundle to
// review or re-stage as a new one.
func MarshalBundleYAML(b *Bundle) ([]byte, error) {
	return yaml.Marshal(yamlDocument{Metadata: b.Metadata, Rules: b.Rules})
}
