package compliance

import (
	"regexp"

	"github.com/dshills/storytrace/internal/schema"
)

// Clause is one regulatory clause summary in the knowledge base. Summaries
// are paraphrases, not quotations of the standards.
type Clause struct {
	Standard string
	Clause   string
	Title    string
	Summary  string
	Controls []schema.ControlTag
}

// Text is the string embedded for similarity retrieval.
func (c Clause) Text() string {
	return c.Standard + " " + c.Clause + " " + c.Title + " :: " + c.Summary
}

// KnowledgeBase is the built-in clause set.
var KnowledgeBase = []Clause{
	{
		Standard: "FDA 21 CFR Part 11",
		Clause:   "11.10(e)",
		Title:    "Audit trails for electronic records",
		Summary:  "Secure, computer-generated, time-stamped audit trails to independently record the date and time of operator entries and actions that create, modify, or delete electronic records.",
		Controls: []schema.ControlTag{schema.ControlAuditTrail, schema.ControlDataIntegrity, schema.ControlTraceability},
	},
	{
		Standard: "FDA 21 CFR Part 11",
		Clause:   "11.100",
		Title:    "Electronic signatures (identity verification)",
		Summary:  "Electronic signatures are unique to individuals and verified; binding equivalent to handwritten signatures.",
		Controls: []schema.ControlTag{schema.ControlESignature, schema.ControlRBAC},
	},
	{
		Standard: "IEC 62304",
		Clause:   "5.1",
		Title:    "Software development planning",
		Summary:  "Define processes, activities, and tasks including verification/validation appropriate to safety class.",
		Controls: []schema.ControlTag{schema.ControlVerificationValidation, schema.ControlTraceability, schema.ControlRiskManagement},
	},
	{
		Standard: "ISO 13485",
		Clause:   "4.2.5",
		Title:    "Document control & records",
		Summary:  "Control of documents/records to ensure data integrity, retention, and retrieval.",
		Controls: []schema.ControlTag{schema.ControlDataIntegrity, schema.ControlAuditTrail, schema.ControlTraceability},
	},
	{
		Standard: "ISO 27001",
		Clause:   "A.9",
		Title:    "Access control (RBAC)",
		Summary:  "Limit access to information and systems based on business/role requirements.",
		Controls: []schema.ControlTag{schema.ControlRBAC},
	},
	{
		Standard: "ISO 27001",
		Clause:   "A.10",
		Title:    "Cryptography",
		Summary:  "Use of encryption to protect confidentiality and integrity.",
		Controls: []schema.ControlTag{schema.ControlEncryption, schema.ControlDataIntegrity},
	},
	{
		Standard: "ISO 9001",
		Clause:   "8.5.1",
		Title:    "Production & service provision control",
		Summary:  "Controlled conditions including monitoring and measurement to ensure conformity.",
		Controls: []schema.ControlTag{schema.ControlVerificationValidation, schema.ControlTraceability},
	},
}

var controlPatterns = map[schema.ControlTag][]*regexp.Regexp{
	schema.ControlAuditTrail:             compile(`\baudit trail\b`, `\blog(ging|s)?\b`, `\bimmutable\b`, `\bchange history\b`),
	schema.ControlRBAC:                   compile(`\brole[- ]?based\b`, `\baccess control\b`, `\bprivilege(s)?\b`, `\bauthori[sz]ation\b`),
	schema.ControlESignature:             compile(`\be(-| )?sig(nature)?\b`, `\belectronic signature\b`, `\bsign[- ]off\b`),
	schema.ControlDataIntegrity:          compile(`\bdata integrity\b`, `\bchecksum\b`, `\bhmac\b`, `\btimestamp(ed)?\b`),
	schema.ControlEncryption:             compile(`\bencrypt(ed|ion)\b`, `\btls\b`, `\baes\b`),
	schema.ControlPIIProtection:          compile(`\bphi\b`, `\bpii\b`, `\bde-?identif(y|ication)\b`, `\bpseudonymi[sz]ation\b`),
	schema.ControlTraceability:           compile(`\btraceab(le|ility)\b`, `\brequirement id\b`, `\blinkage\b`, `\bprovenance\b`),
	schema.ControlVerificationValidation: compile(`\bverification\b`, `\bvalidation\b`, `\bv&v\b`, `\btest evidence\b`),
	schema.ControlRiskManagement:         compile(`\brisk\b`, `\bhazard\b`, `\bmitigation\b`, `\bseverity\b`, `\bprobability\b`),
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// mentions reports whether any pattern of tag matches text.
func mentions(tag schema.ControlTag, text string) bool {
	for _, rx := range controlPatterns[tag] {
		if rx.MatchString(text) {
			return true
		}
	}
	return false
}

// DetectControls returns the control tags textually evidenced in text.
func DetectControls(text string) schema.ControlSet {
	found := make(schema.ControlSet)
	if text == "" {
		return found
	}
	for _, tag := range schema.AllControlTags {
		if mentions(tag, text) {
			found[tag] = struct{}{}
		}
	}
	return found
}
