package profile

func hipaa() *Profile {
	return &Profile{
		Name:        "hipaa",
		Description: "Systems that store or transmit protected health information",
		Constraints: "HIPAA Privacy Rule, HIPAA Security Rule (45 CFR 164.312)",
		Glossary: map[string]string{
			"PHI":  "Protected Health Information",
			"ePHI": "Electronic Protected Health Information",
			"EHR":  "Electronic Health Record",
			"BAA":  "Business Associate Agreement",
		},
		Actors: map[string]string{
			"Clinician":       "Reads and updates patient records",
			"Patient":         "Views their own records and disclosures",
			"Privacy Officer": "Reviews access logs and disclosures",
		},
		StoryRules: []string{
			"Name the PHI each story touches in non_functional",
			"Access to PHI must be role based and logged; state both in acceptance criteria where relevant",
			"Transmission of ePHI must be encrypted in transit",
		},
	}
}
