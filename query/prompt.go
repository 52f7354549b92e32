package query

import (
	"fmt"
	"strings"

	"github.com/aperture-oss/knowledge/core"
)

// defaultContextBudget caps the total characters of retrieved text placed
// in the prompt. The first record that does not fit is truncated to the
// remaining budget and later records are dropped.
const defaultContextBudget = 6000

const answerPromptTemplate = `You are an expert research assistant helping users find information in a knowledge repository.

Based on the following retrieved information, please answer the user's question.

Context:
%s

User Question: %s

Please provide a comprehensive answer based on the context above. If the context doesn't contain enough information to fully answer the question, acknowledge this and provide what information is available. Include references to specific collections when relevant.`

// noContextAnswer is returned without calling the generation model when
// retrieval finds nothing.
const noContextAnswer = "I could not find any relevant information in the knowledge base to answer your question."

// buildAnswerPrompt composes the generation prompt from the question and
// the retrieved records, bounded by budget characters of context.
func buildAnswerPrompt(question string, results []core.ScoredRecord, budget int) string {
	if budget <= 0 {
		budget = defaultContextBudget
	}

	var blocks []string
	remaining := budget
	for _, result := range results {
		if remaining <= 0 {
			break
		}
		text := result.Record.Text
		if len(text) > remaining {
			text = text[:remaining]
		}
		blocks = append(blocks, fmt.Sprintf("[Collection: %s]\n%s", result.Record.CollectionId, text))
		remaining -= len(text)
	}

	return fmt.Sprintf(answerPromptTemplate, strings.Join(blocks, "\n\n"), question)
}
