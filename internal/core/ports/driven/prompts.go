package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations should return a sensible default
	// or an error, depending on whether the prompt is required.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names.
const (
	// PromptAnswer grounds the generated answer in the selected passages.
	// The template expects %s (context) then %s (question).
	PromptAnswer = "answer"

	// PromptQueryRefine rewrites a query using the top selected passages.
	// The template expects %s (passages) then %s (question).
	PromptQueryRefine = "query_refine"
)

// PromptStoreAware is an optional interface for services that can use custom prompts.
type PromptStoreAware interface {
	// SetPromptStore sets the prompt store for loading customisable prompts.
	// If not set, the service uses built-in default prompts.
	SetPromptStore(store PromptStore)
}
