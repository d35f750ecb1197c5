package query

import "strings"

// NoRelevantChunks is the string-mode answer when retrieval retains nothing.
const NoRelevantChunks = "No relevant chunks found."

const (
	promptHeader    = "Use the information between the delimiters to answer the question.\n\n---\n"
	promptDelimiter = "\n---\n\nQuestion: "
)

// BuildPrompt frames the retained chunk texts, joined by blank lines, and the question.
func BuildPrompt(texts []string, question string) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString(strings.Join(texts, "\n\n"))
	b.WriteString(promptDelimiter)
	b.WriteString(question)
	return b.String()
}
