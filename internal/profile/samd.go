package profile

func samd() *Profile {
	return &Profile{
		Name:        "samd",
		Description: "Software as a Medical Device developed under IEC 62304",
		Constraints: "IEC 62304, ISO 14971, ISO 13485",
		Glossary: map[string]string{
			"SaMD":   "Software as a Medical Device",
			"SOUP":   "Software of Unknown Provenance",
			"Hazard": "Potential source of harm",
		},
		Actors: map[string]string{
			"Clinician":        "Acts on device output",
			"Service Engineer": "Installs and maintains the software",
			"Risk Manager":     "Owns hazard analysis and mitigations",
		},
		StoryRules: []string{
			"Trace every story to its source requirement id",
			"State the hazard mitigated, if any, in non_functional",
			"Acceptance criteria must be verifiable as test evidence",
		},
	}
}
