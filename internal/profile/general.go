package profile

func general() *Profile {
	return &Profile{
		Name:        "general",
		Description: "Healthcare software with HIPAA and FDA 21 CFR Part 11 constraints",
		Constraints: "HIPAA, FDA 21 CFR Part 11",
		Glossary: map[string]string{
			"EHR": "Electronic Health Record",
			"HL7": "Data exchange standard",
		},
		Actors: map[string]string{
			"Doctor":  "Reviews patient data",
			"Nurse":   "Updates vitals",
			"Patient": "Views reports",
		},
		StoryRules: []string{
			"Write one user story per requirement in the form \"As a <role>, I want <capability> so that <benefit>.\"",
			"Every acceptance criterion must be independently testable",
		},
	}
}
