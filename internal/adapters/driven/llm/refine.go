// Package llm holds prompt handling shared by the language model adapters
// in its subpackages.
package llm

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// DefaultRefinePrompt is used when no PromptStore is configured.
// It expects %s (passages) then %s (question).
const DefaultRefinePrompt = `You improve search queries for a document retrieval system.

Passages retrieved for the question:
%s

Question: %s

Rewrite the question so that it retrieves the most relevant passages.
Keep the user's intent and use the vocabulary of the passages.
Return ONLY the rewritten question on a single line.`

// RefineTemperature keeps rewrites close to deterministic.
const RefineTemperature = 0.2

// RefineMaxTokens bounds the length of a rewritten query.
const RefineMaxTokens = 128

// LoadPrompt loads a prompt from the store, falling back when unavailable.
func LoadPrompt(store driven.PromptStore, name, fallback string) string {
	if store == nil {
		return fallback
	}
	prompt, err := store.Load(name)
	if err != nil || prompt == "" {
		return fallback
	}
	return prompt
}

// RefinePrompt renders the query refinement prompt.
func RefinePrompt(store driven.PromptStore, query string, passages []string) string {
	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.TrimSpace(p))
	}
	tmpl := LoadPrompt(store, driven.PromptQueryRefine, DefaultRefinePrompt)
	if strings.Count(tmpl, "%s") != 2 {
		tmpl = DefaultRefinePrompt
	}
	return fmt.Sprintf(tmpl, b.String(), query)
}

// CleanRewrite extracts the rewritten query from a model reply: the first
// non-empty line, without a leading label or surrounding quotes.
func CleanRewrite(reply string) string {
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, label := range []string{"Rewritten:", "Query:", "Question:"} {
			if len(line) >= len(label) && strings.EqualFold(line[:len(label)], label) {
				line = strings.TrimSpace(line[len(label):])
			}
		}
		return strings.Trim(line, "\"'` ")
	}
	return ""
}
