// Package generator holds what the answer generators share: the grounded
// prompt and the default generation timeout.
package generator

import (
	"strings"
	"time"
)

// DefaultTimeout bounds a single generation call.
const DefaultTimeout = 30 * time.Second

// SystemInstruction tells the model to stay inside the retrieved context.
const SystemInstruction = "Based on the following context from documents, answer the question. If the answer isn't in the context, say so."

// BuildPrompt renders the single-turn prompt sent to completion-style models.
func BuildPrompt(question, context string) string {
	var b strings.Builder
	b.WriteString(SystemInstruction)
	b.WriteString("\n\nContext:\n")
	b.WriteString(context)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
