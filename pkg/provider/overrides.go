package provider

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// overrideFile is the YAML shape for operator-supplied provider overrides.
type overrideFile struct {
	Providers map[string]struct {
		Capabilities *Capabilities `yaml:"capabilities"`
		RatePolicy   *RatePolicy   `yaml:"rate_policy"`
	} `yaml:"providers"`
}

// LoadOverrides layers capability and rate-policy overrides from a YAML file
// onto the built-in tables. Providers absent from the file keep their
// built-in entries.
func (r *Registry) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("provider: read overrides %q: %w", path, err)
	}

	var file overrideFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("provider: parse overrides %q: %w", path, err)
	}

	caps := make(map[string]Capabilities)
	rates := make(map[string]RatePolicy)
	for id, entry := range file.Providers {
		if entry.Capabilities != nil {
			caps[normalize(id)] = *entry.Capabilities
		}
		if entry.RatePolicy != nil {
			rates[normalize(id)] = *entry.RatePolicy
		}
	}
	r.capOverrides = caps
	r.rateOverrides = rates
	return nil
}
