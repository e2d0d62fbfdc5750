package prompts

// SavedControlNote is the transient control message appended after the
// tool results of the round in which the side-effect tool succeeded.
// It is stripped from history before the next model call; the
// persistent signal is [AlreadySavedDirective] in the system prompt.
const SavedControlNote = "The briefing has been successfully saved. " +
	"Do NOT call any more tools. " +
	"Provide the final user-facing response now, including the saved briefing title and id if available."

// ForcedStopNotice is appended to the partial answer when a query
// exhausts its tool-calling rounds.
const ForcedStopNotice = "Stopped: too many tool-calling rounds (possible loop)."

// ForcedStopEmpty is the whole answer when a query exhausts its rounds
// without the model producing any text.
const ForcedStopEmpty = "Stopped: too many tool-calling rounds (possible infinite loop)."

// AlreadySavedResult is returned to the model in place of a repeat call
// to the side-effect tool when the hard guard is enabled.
const AlreadySavedResult = `{"skipped": true, "reason": "already saved in this request; not saving again"}`
