package profile

func fdaPart11() *Profile {
	return &Profile{
		Name:        "fda-part11",
		Description: "Electronic records and signatures under FDA 21 CFR Part 11",
		Constraints: "FDA 21 CFR Part 11, ISO 13485",
		Glossary: map[string]string{
			"Audit trail":          "Secure, time-stamped record of record creation, modification and deletion",
			"Electronic signature": "Signature executed by an individual, legally binding equivalent of a handwritten one",
			"Electronic record":    "Text, data or images created, modified or archived in digital form",
		},
		Actors: map[string]string{
			"Quality Reviewer": "Approves records with an electronic signature",
			"Operator":         "Creates and edits controlled records",
			"Auditor":          "Inspects audit trails",
		},
		StoryRules: []string{
			"Changes to electronic records must produce an audit trail entry; include it in acceptance criteria",
			"Approvals require an electronic signature bound to the signer and timestamp",
			"Previously recorded information must never be obscured by a change",
		},
	}
}
