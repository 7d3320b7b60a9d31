package provider

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Action is a parsed planner directive: which tool to run and with what
// arguments. name "complete" is the terminal action that finishes a
// goal.
type Action struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// bareActionRe matches a line-leading `action <name>` directive, the
// loosest grammar accepted.
var bareActionRe = regexp.MustCompile(`(?mi)^\s*action[:\s]+([a-zA-Z_][a-zA-Z0-9_.-]*)\s*$`)

// ExtractAction attempts to recover an action from free text, tried
// only after structured output yields nothing. The grammar ladder is
// strict to loose: a complete JSON object carrying a "name" or "action"
// key, then an `action: {json}` pattern, then a bare `action <name>`
// directive. Returns nil when nothing matches.
func ExtractAction(text string) *Action {
	for _, candidate := range findJSONCandidates(text) {
		if a := decodeAction(candidate); a != nil {
			return a
		}
	}

	if idx := strings.Index(strings.ToLower(text), "action:"); idx >= 0 {
		rest := text[idx+len("action:"):]
		for _, candidate := range findJSONCandidates(rest) {
			if a := decodeAction(candidate); a != nil {
				return a
			}
		}
	}

	if m := bareActionRe.FindStringSubmatch(text); m != nil {
		return &Action{Name: m[1]}
	}

	return nil
}

// decodeAction interprets one JSON candidate as an action. Accepts
// either {"name": ..., "params": ...} directly or the same shape nested
// under an "action" key.
func decodeAction(candidate string) *Action {
	var envelope struct {
		Action *Action                `json:"action"`
		Name   string                 `json:"name"`
		Params map[string]interface{} `json:"params"`
	}
	if err := json.Unmarshal([]byte(candidate), &envelope); err != nil {
		return nil
	}
	if envelope.Action != nil && envelope.Action.Name != "" {
		return envelope.Action
	}
	if envelope.Name != "" {
		return &Action{Name: envelope.Name, Params: envelope.Params}
	}
	return nil
}

// findJSONCandidates scans the input for top-level JSON object
// candidates, handling nested braces and string escaping to identify
// boundaries. Byte iteration is safe for ASCII delimiters because UTF-8
// never embeds ASCII bytes inside multi-byte sequences.
func findJSONCandidates(s string) []string {
	var candidates []string
	var depth int
	start := -1
	var inString bool
	var escape bool

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}

		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}

		if b == '"' {
			inString = true
			continue
		}

		if b == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if b == '}' {
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}

	return candidates
}
