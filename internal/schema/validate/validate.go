package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"

	"github.com/dshills/storytrace/internal/schema"
)

var (
	// ErrMalformedJSON means no JSON object could be recovered from the response.
	ErrMalformedJSON = errors.New("malformed JSON")
	// ErrAbstain means the model returned the abstain sentinel.
	ErrAbstain = errors.New("model abstained: insufficient context")
)

// FieldError is a schema violation located at a JSON pointer path.
type FieldError struct {
	Path   string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Path, e.Reason)
}

// trailingCommaPattern matches trailing commas before ] or }.
var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

// abstainMarker is the assumption text the prompt asks the model to return
// when it abstains.
const abstainMarker = "insufficient context"

// ParseStory strips markdown fences, decodes the first JSON object in raw,
// validates it against the story schema and returns the typed story.
// The returned error wraps ErrMalformedJSON, ErrAbstain or a *FieldError.
func ParseStory(raw string) (*schema.Story, error) {
	cleaned := StripFences(raw)

	doc, err := decode(cleaned)
	if err != nil {
		salvaged := ExtractObject(cleaned)
		if salvaged == "" {
			return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
		}
		doc, err = decode(salvaged)
		if err != nil {
			doc, err = decode(trailingCommaPattern.ReplaceAllString(salvaged, "$1"))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
			}
		}
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &FieldError{Path: "/", Reason: "expected a JSON object"}
	}
	if isAbstain(obj) {
		return nil, ErrAbstain
	}
	normalizePriority(obj)

	if err := storySchema().Validate(obj); err != nil {
		return nil, toFieldError(err)
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("re-encoding story: %w", err)
	}
	var story schema.Story
	if err := json.Unmarshal(data, &story); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return &story, nil
}

// StripFences removes leading/trailing markdown code fences (```json ... ``` or ``` ... ```).
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimLeft(strings.TrimPrefix(s, "```"), "jsonJSON")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	if strings.Contains(s, "```") {
		s = strings.NewReplacer("```json", "", "```JSON", "", "```", "").Replace(s)
	}
	return strings.TrimSpace(s)
}

// ExtractObject returns the first balanced {...} block in s, ignoring braces
// inside JSON strings. If the block never closes, the remainder from the
// first brace is returned. Returns "" when s contains no brace.
func ExtractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

func decode(s string) (any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("empty response")
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader([]byte(s)))
}

// isAbstain reports whether obj is the abstain sentinel: no narrative, no
// acceptance criteria and the fixed "Insufficient context" assumption.
func isAbstain(obj map[string]any) bool {
	if us, _ := obj["user_story"].(string); strings.TrimSpace(us) != "" {
		return false
	}
	if acs, _ := obj["acceptance_criteria"].([]any); len(acs) > 0 {
		return false
	}
	assumptions, _ := obj["assumptions"].([]any)
	for _, a := range assumptions {
		if s, ok := a.(string); ok && strings.EqualFold(strings.TrimSpace(s), abstainMarker) {
			return true
		}
	}
	return false
}

// normalizePriority maps case and apostrophe variants onto the canonical
// MoSCoW spelling so that "must" or "WONT" still validate.
func normalizePriority(obj map[string]any) {
	p, ok := obj["priority"].(string)
	if !ok {
		return
	}
	switch strings.ToLower(strings.NewReplacer("’", "'", " ", "").Replace(strings.TrimSpace(p))) {
	case "must":
		obj["priority"] = string(schema.PriorityMust)
	case "should":
		obj["priority"] = string(schema.PriorityShould)
	case "could":
		obj["priority"] = string(schema.PriorityCould)
	case "won't", "wont":
		obj["priority"] = string(schema.PriorityWont)
	}
}

// toFieldError reduces a jsonschema validation error to its first leaf cause.
func toFieldError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &FieldError{Path: "/", Reason: err.Error()}
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	path := "/" + strings.Join(leaf.InstanceLocation, "/")
	reason := "violates " + strings.Join(leaf.ErrorKind.KeywordPath(), "/")
	if req, ok := leaf.ErrorKind.(*kind.Required); ok && len(req.Missing) > 0 {
		path = strings.TrimSuffix(path, "/") + "/" + req.Missing[0]
		reason = "required field is missing"
	}
	return &FieldError{Path: path, Reason: reason}
}
