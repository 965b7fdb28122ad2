package profile

import (
	"fmt"
	"maps"
	"sort"
	"strings"
)

// Profile bundles the regulatory context fed to story generation: a
// constraints line, a glossary, the actors who use the system, and extra
// authoring rules for the model.
type Profile struct {
	Name        string
	Description string
	Constraints string
	Glossary    map[string]string
	Actors      map[string]string
	StoryRules  []string
}

// Get returns the built-in profile for the given name.
func Get(name string) (*Profile, error) {
	switch name {
	case "general", "":
		return general(), nil
	case "hipaa":
		return hipaa(), nil
	case "fda-part11":
		return fdaPart11(), nil
	case "samd":
		return samd(), nil
	default:
		return nil, fmt.Errorf("unknown profile %q: valid profiles are %s", name, strings.Join(Names(), ", "))
	}
}

// Names lists the built-in profile names.
func Names() []string {
	return []string{"general", "hipaa", "fda-part11", "samd"}
}

// WithOverrides returns a copy of p with non-empty overrides applied.
// Glossary and actor entries are merged key by key.
func (p *Profile) WithOverrides(constraints string, glossary, actors map[string]string) *Profile {
	out := *p
	out.Glossary = maps.Clone(p.Glossary)
	out.Actors = maps.Clone(p.Actors)
	if out.Glossary == nil {
		out.Glossary = map[string]string{}
	}
	if out.Actors == nil {
		out.Actors = map[string]string{}
	}
	if constraints != "" {
		out.Constraints = constraints
	}
	maps.Copy(out.Glossary, glossary)
	maps.Copy(out.Actors, actors)
	return &out
}

// FormatRulesForPrompt returns a string suitable for injection into the LLM system prompt.
func (p *Profile) FormatRulesForPrompt() string {
	if len(p.StoryRules) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Profile: %s\n", p.Name))
	sb.WriteString("\nAuthoring rules:\n")
	for _, r := range p.StoryRules {
		sb.WriteString(fmt.Sprintf("- %s\n", r))
	}
	return sb.String()
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
