// Package action turns raw model output into the next step of the agent
// loop: code to execute, a final answer, or a parse failure.
package action

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Kind tags what the model asked for.
type Kind string

const (
	KindExecuteCode  Kind = "execute_code"
	KindFinalAnswer  Kind = "final_answer"
	KindParseFailure Kind = "parse_failure"
)

const (
	actionInputMarker = "Action Input:"
	finalAnswerMarker = "Final Answer:"
	thoughtMarker     = "Thought:"
)

// Action is one parsed model response.
type Action struct {
	Kind    Kind
	Code    string
	Answer  string
	Thought string
	// Raw is the unmodified model output.
	Raw string
	// Reason explains a parse failure.
	Reason string
}

// fencePattern matches the first fenced block.
var fencePattern = regexp.MustCompile("(?s)```(.*?)```")

// languageTag matches the info string of an opening fence ("go", "golang").
var languageTag = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_+-]*$`)

// jsonPayload is the structured alternative some models emit instead of
// the text markers.
type jsonPayload struct {
	Action      string `json:"action"`
	Code        string `json:"code"`
	Thought     string `json:"thought"`
	FinalAnswer string `json:"final_answer"`
}

// Parse classifies raw. It never fails: unrecognised output becomes a
// parse failure carrying the raw text.
func Parse(raw string) Action {
	if idx := strings.Index(raw, actionInputMarker); idx >= 0 {
		thought := thoughtBefore(raw, idx)
		code, ok := fencedCode(raw[idx+len(actionInputMarker):])
		if !ok {
			return Action{
				Kind:    KindParseFailure,
				Thought: thought,
				Raw:     raw,
				Reason:  "no code block found after " + actionInputMarker,
			}
		}
		return Action{Kind: KindExecuteCode, Code: code, Thought: thought, Raw: raw}
	}

	if idx := strings.Index(raw, finalAnswerMarker); idx >= 0 {
		return Action{
			Kind:    KindFinalAnswer,
			Answer:  strings.TrimSpace(raw[idx+len(finalAnswerMarker):]),
			Thought: thoughtBefore(raw, idx),
			Raw:     raw,
		}
	}

	if a, ok := parseJSON(raw); ok {
		return a
	}

	if code, ok := fencedCode(raw); ok {
		return Action{Kind: KindExecuteCode, Code: code, Thought: strings.TrimSpace(raw[:strings.Index(raw, "```")]), Raw: raw}
	}

	return Action{
		Kind:   KindParseFailure,
		Raw:    raw,
		Reason: "no " + actionInputMarker + " or " + finalAnswerMarker + " found",
	}
}

// thoughtBefore returns the text between a Thought marker and end.
func thoughtBefore(raw string, end int) string {
	head := raw[:end]
	if idx := strings.LastIndex(head, thoughtMarker); idx >= 0 {
		return strings.TrimSpace(head[idx+len(thoughtMarker):])
	}
	return strings.TrimSpace(head)
}

func fencedCode(s string) (string, bool) {
	m := fencePattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	inner := m[1]
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		first := strings.TrimSpace(inner[:nl])
		if first == "" || languageTag.MatchString(first) {
			inner = inner[nl+1:]
		}
	}
	code := strings.TrimSpace(inner)
	if code == "" {
		return "", false
	}
	return code, true
}

// parseJSON accepts a JSON object anywhere in raw, repairing common
// syntax damage first.
func parseJSON(raw string) (Action, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 {
		return Action{}, false
	}
	var candidate string
	if end > start {
		candidate = raw[start : end+1]
	} else {
		candidate = raw[start:]
	}

	var p jsonPayload
	if err := json.Unmarshal([]byte(candidate), &p); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(candidate)
		if repairErr != nil {
			return Action{}, false
		}
		if err := json.Unmarshal([]byte(repaired), &p); err != nil {
			return Action{}, false
		}
	}

	switch {
	case p.FinalAnswer != "":
		return Action{Kind: KindFinalAnswer, Answer: strings.TrimSpace(p.FinalAnswer), Thought: p.Thought, Raw: raw}, true
	case strings.EqualFold(p.Action, string(KindExecuteCode)) && strings.TrimSpace(p.Code) != "":
		return Action{Kind: KindExecuteCode, Code: strings.TrimSpace(p.Code), Thought: p.Thought, Raw: raw}, true
	}
	return Action{}, false
}
