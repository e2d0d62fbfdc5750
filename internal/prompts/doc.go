// Package prompts contains the prompt text briefer sends to the model.
//
// Prompt text is Go code rather than config files because it is program
// logic: the loop's stop rules and the side-effect guard live here and
// are checked by tests. The one user-supplied part, the skills contract,
// is read from disk by [LoadSkills] and embedded by [SystemPrompt].
package prompts
