package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/storytrace/internal/profile"
	"github.com/dshills/storytrace/internal/schema"
)

// AbstainResponse is the exact JSON the model must return when the supplied
// context does not support a story.
const AbstainResponse = `{
  "epic": "",
  "story_id": "",
  "user_story": "",
  "acceptance_criteria": [],
  "priority": "",
  "dependencies": [],
  "non_functional": [],
  "source_requirement_ids": [],
  "assumptions": [
    "Insufficient context"
  ],
  "open_questions": [
    "Need clarification"
  ],
  "citations": []
}`

const storySchemaExample = `{
  "epic": "",
  "story_id": "",
  "user_story": "As a <role>, I want <capability> so that <benefit>.",
  "acceptance_criteria": [
    {
      "given": "",
      "when": "",
      "then": ""
    }
  ],
  "priority": "Must|Should|Could|Won't",
  "dependencies": [],
  "non_functional": [],
  "source_requirement_ids": [],
  "assumptions": [],
  "open_questions": [],
  "citations": [
    {
      "page": 0,
      "snippet": ""
    }
  ]
}`

const systemPromptBase = `You are a senior BA in healthcare software.
Use ONLY the provided glossary, actors, constraints, and CONTEXT SNIPPETS.
Cite which page(s) you used in the 'citations' field; include a short snippet from each page.
If the context is insufficient or unrelated, return EXACTLY this JSON:
` + AbstainResponse + `
Return ONLY valid JSON with this schema (no markdown, no commentary):
` + storySchemaExample

// BuildSystemPrompt constructs the story-generation system prompt with
// optional profile authoring rules.
func BuildSystemPrompt(p *profile.Profile) string {
	var sb strings.Builder
	sb.WriteString(systemPromptBase)

	if p != nil {
		rules := p.FormatRulesForPrompt()
		if rules != "" {
			sb.WriteString("\n\n")
			sb.WriteString(rules)
		}
	}

	return sb.String()
}

// StoryPrompt carries everything the user prompt embeds for one requirement.
type StoryPrompt struct {
	Requirement schema.Requirement
	Glossary    map[string]string
	Actors      map[string]string
	Constraints string
	Snippets    []schema.Citation
}

// BuildUserPrompt renders the per-requirement user prompt. Maps are written
// as JSON so key order is stable.
func BuildUserPrompt(sp StoryPrompt) string {
	snippets := sp.Snippets
	if snippets == nil {
		snippets = []schema.Citation{}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("GLOSSARY: %s\n", mustJSON(sp.Glossary)))
	sb.WriteString(fmt.Sprintf("ACTORS: %s\n", mustJSON(sp.Actors)))
	sb.WriteString(fmt.Sprintf("CONSTRAINTS: %s\n", sp.Constraints))
	sb.WriteString(fmt.Sprintf("CONTEXT SNIPPETS: %s\n", mustJSON(snippets)))
	sb.WriteString(fmt.Sprintf("REQUIREMENT (ID: %s): %s", sp.Requirement.ReqID, sp.Requirement.Text))
	return sb.String()
}

func mustJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "{}"
	}
	out := strings.TrimSpace(buf.String())
	if out == "null" {
		return "{}"
	}
	return out
}
