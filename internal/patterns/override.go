package patterns

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Override is one YAML-declared catalogue adjustment: disable a built-in
// pattern by id, or add a supplementary one. Grounded on the pattern
// library shape a teacher example used for validating a redaction engine's
// regex overlays, adapted here to layer on top of the fixed Go catalogue
// instead of replacing it.
type Override struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Regex      string `yaml:"regex"`
	Confidence float64 `yaml:"confidence"`
	Countries  []Locale `yaml:"countries"`
	Disabled   bool   `yaml:"disabled"`
}

// overrideFile is the top-level YAML document shape.
type overrideFile struct {
	Overrides []Override `yaml:"overrides"`
}

// LoadOverrides reads a YAML overlay file and returns the additional
// patterns it declares plus the set of built-in ids it disables. A missing
// path is not an error — the overlay is optional.
func LoadOverrides(path string) (additions []Pattern, disabledIDs map[string]bool, err error) {
	disabledIDs = map[string]bool{}
	if path == "" {
		return nil, disabledIDs, nil
	}
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, disabledIDs, nil
		}
		return nil, disabledIDs, fmt.Errorf("patterns: read overlay %s: %w", path, readErr)
	}
	var doc overrideFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, disabledIDs, fmt.Errorf("patterns: parse overlay %s: %w", path, err)
	}
	for _, o := range doc.Overrides {
		if o.ID == "" {
			return nil, disabledIDs, fmt.Errorf("patterns: overlay entry missing id")
		}
		if o.Disabled {
			disabledIDs[o.ID] = true
			continue
		}
		if o.Regex == "" {
			return nil, disabledIDs, fmt.Errorf("patterns: overlay entry %q missing regex", o.ID)
		}
		compiled, err := regexp.Compile(o.Regex)
		if err != nil {
			return nil, disabledIDs, fmt.Errorf("patterns: overlay entry %q: %w", o.ID, err)
		}
		confidence := o.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = 0.5
		}
		p := Pattern{
			ID:         o.ID,
			Name:       o.Name,
			Regex:      compiled,
			Confidence: confidence,
		}
		if len(o.Countries) > 0 {
			p.Countries = countries(o.Countries...)
		}
		additions = append(additions, p)
	}
	return additions, disabledIDs, nil
}

// AllWithOverlay is like All but excludes disabledIDs and appends
// additions, used by callers that loaded an overlay at startup.
func AllWithOverlay(locale Locale, additions []Pattern, disabledIDs map[string]bool) []Pattern {
	base := All(locale)
	out := make([]Pattern, 0, len(base)+len(additions))
	for _, p := range base {
		if disabledIDs[p.ID] {
			continue
		}
		out = append(out, p)
	}
	for _, p := range additions {
		if p.appliesTo(locale) {
			out = append(out, p)
		}
	}
	return out
}
