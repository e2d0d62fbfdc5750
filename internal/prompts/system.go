package prompts

import (
	"fmt"
	"strings"
)

// baseSystemTemplate frames the model as a tool-using briefing agent.
// %[1]s receives the skills section (possibly empty) and %[2]s the
// side-effect tool name.
const baseSystemTemplate = `You are an MCP tool-using assistant that researches topics and writes briefings.
%[1]s
Hard rules:
- Use tools when necessary. Never call the same tool repeatedly unless the previous attempt failed.
- %[2]s is a side-effect tool: call it at most once per user request.
- After %[2]s succeeds, stop calling tools and produce the final user-facing response.`

// skillsSection wraps the skills contract.
const skillsSection = `
Below is the project's Skills Contract (skills.md). Follow it strictly when deciding which tools to call and when to stop.

--- BEGIN skills.md ---
%s
--- END skills.md ---
`

// SystemPrompt returns the base system prompt. skills is the loaded
// skills contract; when empty the contract section is left out.
// sideEffectTool names the tool that may succeed at most once.
func SystemPrompt(skills, sideEffectTool string) string {
	section := ""
	if s := strings.TrimSpace(skills); s != "" {
		section = fmt.Sprintf(skillsSection, s)
	}
	return fmt.Sprintf(baseSystemTemplate, section, sideEffectTool)
}

// AlreadySavedDirective is appended to the system prompt once the
// side-effect tool has succeeded in the current query.
const AlreadySavedDirective = "The briefing has already been saved successfully. Do NOT call any tools. Answer now."

// WithAlreadySaved returns system with [AlreadySavedDirective] appended.
func WithAlreadySaved(system string) string {
	return system + "\n\n" + AlreadySavedDirective
}
