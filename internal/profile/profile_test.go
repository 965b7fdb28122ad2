package profile

import (
	"strings"
	"testing"
)

func TestGet_AllNamedProfiles(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			p, err := Get(name)
			if err != nil {
				t.Fatalf("Get(%q): %v", name, err)
			}
			if p == nil {
				t.Fatalf("Get(%q) returned nil profile", name)
			}
			if p.Name != name {
				t.Errorf("profile name = %q, want %q", p.Name, name)
			}
			if p.Constraints == "" {
				t.Errorf("profile %q has no constraints", name)
			}
			if len(p.Actors) == 0 {
				t.Errorf("profile %q has no actors", name)
			}
		})
	}
}

func TestGet_EmptyNameReturnsGeneral(t *testing.T) {
	p, err := Get("")
	if err != nil {
		t.Fatalf("Get(''): %v", err)
	}
	if p.Name != "general" {
		t.Errorf("expected general, got %q", p.Name)
	}
	if p.Constraints != "HIPAA, FDA 21 CFR Part 11" {
		t.Errorf("general constraints = %q", p.Constraints)
	}
}

func TestGet_UnknownName(t *testing.T) {
	_, err := Get("nonexistent-profile")
	if err == nil {
		t.Fatal("expected error for unknown profile, got nil")
	}
	if !strings.Contains(err.Error(), "fda-part11") {
		t.Errorf("error should list valid profiles: %v", err)
	}
}

func TestFormatRulesForPrompt_ContainsRules(t *testing.T) {
	p, _ := Get("fda-part11")
	rules := p.FormatRulesForPrompt()
	if !strings.Contains(rules, "electronic signature") {
		t.Errorf("expected fda-part11 rules in prompt: %q", rules)
	}
	if !strings.HasPrefix(rules, "Profile: fda-part11") {
		t.Errorf("rules should start with profile name: %q", rules)
	}
}

func TestFormatRulesForPrompt_EmptyWithoutRules(t *testing.T) {
	p := &Profile{Name: "bare"}
	if got := p.FormatRulesForPrompt(); got != "" {
		t.Errorf("expected empty rules, got %q", got)
	}
}

func TestWithOverrides_MergesWithoutMutating(t *testing.T) {
	base, _ := Get("general")
	p := base.WithOverrides("ISO 27001", map[string]string{"FHIR": "HL7 REST standard"}, map[string]string{"Nurse": "Administers medication"})

	if p.Constraints != "ISO 27001" {
		t.Errorf("constraints = %q", p.Constraints)
	}
	if p.Glossary["FHIR"] == "" || p.Glossary["EHR"] == "" {
		t.Errorf("glossary not merged: %v", p.Glossary)
	}
	if p.Actors["Nurse"] != "Administers medication" {
		t.Errorf("actor override not applied: %v", p.Actors)
	}
	if base.Actors["Nurse"] != "Updates vitals" {
		t.Errorf("base profile mutated: %v", base.Actors)
	}
	if _, ok := base.Glossary["FHIR"]; ok {
		t.Errorf("base glossary mutated")
	}

	same := base.WithOverrides("", nil, nil)
	if same.Constraints != base.Constraints {
		t.Errorf("empty override changed constraints")
	}
}

func TestSortedKeys(t *testing.T) {
	got := strings.Join(SortedKeys(map[string]string{"b": "", "a": "", "c": ""}), ",")
	if got != "a,b,c" {
		t.Errorf("SortedKeys = %q", got)
	}
}
