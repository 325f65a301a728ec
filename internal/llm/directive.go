package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type Action string

const (
	ActionReply    Action = "reply"
	ActionSearch   Action = "search"
	ActionSchedule Action = "schedule"
)

// Directive is the decoded tool-routing decision. Only the fields belonging
// to Action are set. The zero Directive means "nothing to send".
type Directive struct {
	Action  Action `json:"action"`
	Content string `json:"content,omitempty"`
	Query   string `json:"query,omitempty"`
	When    string `json:"when,omitempty"`
	What    string `json:"what,omitempty"`
}

func (d Directive) IsZero() bool {
	return d.Action == ""
}

func Reply(content string) Directive {
	return Directive{Action: ActionReply, Content: content}
}

var (
	ErrNoDirective      = errors.New("no directive object in model output")
	ErrInvalidDirective = errors.New("invalid directive")
)

const directiveSchema = `{
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": {"enum": ["reply", "search", "schedule"]}
  },
  "oneOf": [
    {
      "properties": {"action": {"const": "reply"}, "content": {"type": "string", "minLength": 1}},
      "required": ["content"]
    },
    {
      "properties": {"action": {"const": "search"}, "query": {"type": "string", "minLength": 1}},
      "required": ["query"]
    },
    {
      "properties": {
        "action": {"const": "schedule"},
        "when": {"type": "string", "minLength": 1},
        "what": {"type": "string", "minLength": 1}
      },
      "required": ["when", "what"]
    }
  ]
}`

var directiveValidator = jsonschema.MustCompileString("directive.json", directiveSchema)

// DecodeDirective extracts and validates the JSON directive in raw. Code
// fences and prose around the object are tolerated.
func DecodeDirective(raw string) (Directive, error) {
	obj, ok := extractObject(raw)
	if !ok {
		return Directive{}, ErrNoDirective
	}

	var doc any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return Directive{}, fmt.Errorf("%w: %v", ErrInvalidDirective, err)
	}
	if err := directiveValidator.Validate(doc); err != nil {
		return Directive{}, fmt.Errorf("%w: %v", ErrInvalidDirective, err)
	}

	var d Directive
	if err := json.Unmarshal([]byte(obj), &d); err != nil {
		return Directive{}, fmt.Errorf("%w: %v", ErrInvalidDirective, err)
	}

	out := Directive{Action: d.Action}
	switch d.Action {
	case ActionReply:
		out.Content = strings.TrimSpace(d.Content)
	case ActionSearch:
		out.Query = strings.TrimSpace(d.Query)
	case ActionSchedule:
		out.When = strings.TrimSpace(d.When)
		out.What = strings.TrimSpace(d.What)
	}
	return out, nil
}

// extractObject returns the outermost {...} span of s.
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
