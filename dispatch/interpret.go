package dispatch

import (
	"encoding/json"
	"strings"
)

// OutcomeKind classifies an agent reply.
type OutcomeKind int

const (
	// OutcomeUnstructured means neither marker was present. Not an error:
	// the reply is kept verbatim for human review and the task stays on
	// its current status.
	OutcomeUnstructured OutcomeKind = iota
	// OutcomeNeedsInfo means the agent asked for clarification.
	OutcomeNeedsInfo
	// OutcomeCompleted means the agent claims the task is done.
	OutcomeCompleted
)

// String returns the kind's wire name.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNeedsInfo:
		return "needs_info"
	case OutcomeCompleted:
		return "completed"
	default:
		return "unstructured"
	}
}

// Outcome is the structured reading of one agent reply.
type Outcome struct {
	Kind      OutcomeKind
	Questions string // extracted after NEEDS_INFO:
	Summary   string // extracted after TASK_COMPLETE:
	Output    string // effective reply text, stored verbatim on the task
}

// Interpret classifies raw agent output.
//
// Marker search is an explicit case-insensitive scan for the two literal
// tokens, not a pattern match. NEEDS_INFO: takes precedence when both
// markers appear in either order: a request for clarification outranks a
// premature completion claim.
func Interpret(raw string) Outcome {
	out := unwrapEnvelope(strings.TrimSpace(raw))
	lower := strings.ToLower(out)

	if i := strings.Index(lower, strings.ToLower(MarkerNeedsInfo)); i >= 0 {
		rest := out[i+len(MarkerNeedsInfo):]
		// Questions run up to a trailing completion marker, if any.
		if j := strings.Index(strings.ToLower(rest), strings.ToLower(MarkerTaskComplete)); j >= 0 {
			rest = rest[:j]
		}
		return Outcome{Kind: OutcomeNeedsInfo, Questions: strings.TrimSpace(rest), Output: out}
	}

	if i := strings.Index(lower, strings.ToLower(MarkerTaskComplete)); i >= 0 {
		summary := strings.TrimSpace(out[i+len(MarkerTaskComplete):])
		return Outcome{Kind: OutcomeCompleted, Summary: summary, Output: out}
	}

	return Outcome{Kind: OutcomeUnstructured, Output: out}
}

// unwrapEnvelope accommodates agents that wrap their answer in a JSON
// envelope. The first non-empty of reply, content, or message substitutes
// for the raw text; anything unparseable passes through unchanged.
func unwrapEnvelope(raw string) string {
	var env struct {
		Reply   string `json:"reply"`
		Content string `json:"content"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return raw
	}
	switch {
	case env.Reply != "":
		return env.Reply
	case env.Content != "":
		return env.Content
	case env.Message != "":
		return env.Message
	}
	return raw
}
