package retrieval

import "strings"

// DefaultContextBudget caps the retrieved context carried into a prompt.
const DefaultContextBudget = 6000

const persona = `You are Ferb, an AI assistant specialized in financial analysis for Finore branch data.

Rules:
- Answer only from the financial context provided below. If the question is outside that data, reply exactly: "Lo siento, solo puedo responder preguntas sobre los datos financieros de Finore."
- Always respond in Spanish.
- Be friendly and professional; keep answers concise but informative.
- Never invent figures that are not in the context.`

// Assembler builds the instruction block for the completion call: persona and
// behavioral rules first, retrieved context after.
type Assembler struct {
	ContextBudget int
}

func NewAssembler(budget int) *Assembler {
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	return &Assembler{ContextBudget: budget}
}

// Build renders the system prompt. Context beyond the budget is trimmed from
// the bottom of the ranking: the lowest-ranked chunks are truncated or
// dropped first and the highest-ranked survive intact.
func (a *Assembler) Build(rctx Context) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\nContext:\n")

	if len(rctx.Chunks) == 0 {
		b.WriteString(NoContextSentinel)
		return b.String()
	}

	remaining := a.ContextBudget
	for i, chunk := range rctx.Chunks {
		if remaining <= 0 {
			break
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		runes := []rune(chunk)
		if len(runes) > remaining {
			runes = runes[:remaining]
		}
		b.WriteString(string(runes))
		remaining -= len(runes)
	}
	return b.String()
}
