package services

// PromptMode selects one of the two system instructions sent with every
// completion.
type PromptMode int

const (
	// ModeAnswer answers a question strictly from the supplied context.
	ModeAnswer PromptMode = iota
	// ModeSummary condenses the supplied context into a short summary.
	ModeSummary
)

const answerSystemPrompt = `You are a document assistant that answers questions about the user's uploaded documents.

Answer using only the text between <Context Starts> and </Context Ends>, together with the previous conversation when the question refers back to it.
If the context does not contain the answer, say so plainly and do not invent information.
Keep answers clear and concise; for complex topics, break the explanation into short parts.`

const summarySystemPrompt = `You are a document assistant that summarizes document content.

Summarize the text between <Context Starts> and </Context Ends>. Focus on the main points, keep it clear and keep the summary short.`

// GetSystemPrompt returns the system instruction for a mode.
func GetSystemPrompt(mode PromptMode) string {
	if mode == ModeSummary {
		return summarySystemPrompt
	}
	return answerSystemPrompt
}
