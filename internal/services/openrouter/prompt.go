package openrouter

import (
	"strings"

	"recap/internal/enrich"
)

const shortPrompt = `You summarize video transcripts. Produce a concise summary of the
transcript the user provides: three to five sentences covering the main
topic, the key claims or steps, and any stated conclusion. Do not invent
details that are not in the transcript. Respond with plain text only.`

const detailedPrompt = `You summarize video transcripts. Produce a structured summary of the
transcript the user provides: an opening paragraph stating the topic and
purpose, followed by short paragraphs covering each major section in
order, and a closing line with the stated conclusion or call to action.
Do not invent details that are not in the transcript. Respond with plain
text only.`

// summaryPrompt builds the system prompt for a summarization request.
// Custom instructions are appended verbatim so a custom run can reshape
// the output.
func summaryPrompt(detail enrich.DetailLevel, instructions string) string {
	prompt := shortPrompt
	if detail == enrich.DetailDetailed {
		prompt = detailedPrompt
	}
	if instructions = strings.TrimSpace(instructions); instructions != "" {
		prompt += "\n\nAdditional instructions from the requester:\n" + instructions
	}
	return prompt
}
