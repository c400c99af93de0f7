// Package dispatch implements the task dispatch pipeline: composing a
// briefing, launching the agent process, interpreting its reply, and
// applying the resulting state transition.
package dispatch

import (
	"fmt"
	"strings"

	"github.com/camster91/openclaw-hq/crm"
	"github.com/camster91/openclaw-hq/task"
)

// Protocol markers an agent reply may contain. The briefing footer tells the
// agent about both; Interpret scans for them.
const (
	MarkerNeedsInfo    = "NEEDS_INFO:"
	MarkerTaskComplete = "TASK_COMPLETE:"
)

// ComposeBriefing renders the text prompt delivered to an agent for one
// dispatch. Pure transformation: same task and context always produce the
// same briefing. The instruction footer is always included; reply parsing
// depends on the agent having seen it.
func ComposeBriefing(t *task.Task, client *crm.Client, project *crm.Project) string {
	var lines []string
	add := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	add("=== TASK BRIEFING ===")
	add("TASK #%d: %s", t.ID, t.Title)
	add("PRIORITY: %s", t.Priority)
	add("CATEGORY: %s", t.Category)

	if client != nil {
		add("")
		add("CLIENT: %s", client.Name)
		if client.Platform != "" {
			add("PLATFORM: %s", client.Platform)
		}
		if client.ShopifyStore != "" {
			add("SHOPIFY: %s", client.ShopifyStore)
		}
		if client.WPLoginURL != "" {
			add("WP LOGIN: %s", client.WPLoginURL)
		}
		if client.Notes != "" {
			add("CLIENT NOTES: %s", client.Notes)
		}
	}

	if project != nil {
		add("")
		add("PROJECT: %s", project.Name)
		if project.ProjectType != "" {
			add("TYPE: %s", project.ProjectType)
		}
		if project.Description != "" {
			add("PROJECT DESCRIPTION: %s", project.Description)
		}
	}

	add("")
	if t.Description != "" {
		add("DESCRIPTION: %s", t.Description)
	} else {
		add("DESCRIPTION: (none provided)")
	}

	if t.Requirements != "" {
		add("")
		add("REQUIREMENTS:")
		lines = append(lines, t.Requirements)
	}

	// Give the agent memory of its own prior attempt on re-dispatch.
	if t.AgentOutput != "" && t.DispatchCount > 0 {
		add("")
		add("PREVIOUS AGENT OUTPUT:")
		lines = append(lines, t.AgentOutput)
	}

	if t.Notes != "" {
		add("")
		add("NOTES: %s", t.Notes)
	}

	add("")
	add("=== INSTRUCTIONS ===")
	add("Execute this task. Work through it step by step.")
	add("If you need more information or clarification from the project owner before you can proceed, respond with your output so far, then on a new line write %s followed by your specific questions (one per line).", MarkerNeedsInfo)
	add("If you complete the task, end with %s followed by a brief summary of what was done.", MarkerTaskComplete)

	return strings.Join(lines, "\n")
}
