package prompts

import _ "embed"

// Subtasks is the text/template used to ask the model for a subtask
// checklist. It receives .Title and .Description.
//
//go:embed subtasks.md
var Subtasks string
