package answer

import (
	"strings"

	"github.com/cortexa-labs/ragserve/internal/domain"
	"github.com/cortexa-labs/ragserve/internal/vectorstore"
)

const contextInstruction = "Use the following pieces of context to answer the question at the end. " +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer."

// emptyIndexAnswer is returned without a model call when the tenant has no
// indexed knowledge yet.
const emptyIndexAnswer = "I don't have any knowledge for this workspace yet. " +
	"Please add documents or websites first, then ask again."

// buildMessages assembles the stuff prompt: one system message carrying the
// retrieved chunks verbatim, the prior conversation turns, then the question.
func buildMessages(matches []vectorstore.Match, history []domain.Message, question string) []domain.Message {
	var b strings.Builder
	b.WriteString(contextInstruction)
	b.WriteString("\n\n")
	for i, m := range matches {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Chunk.Text)
	}

	msgs := make([]domain.Message, 0, len(history)+2)
	msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: b.String()})
	msgs = append(msgs, history...)
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: question})
	return msgs
}
