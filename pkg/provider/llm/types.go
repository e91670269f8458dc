package llm

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is the input to [Provider.Complete].
type CompletionRequest struct {
	// SystemPrompt, when non-empty, is sent as the first system message.
	SystemPrompt string

	Messages []Message

	// Temperature is passed through when non-zero.
	Temperature float64

	// MaxTokens caps the response length when positive.
	MaxTokens int

	// JSONMode asks the backend to constrain output to a JSON object, where
	// supported. Prompts must still ask for JSON explicitly.
	JSONMode bool
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the output of [Provider.Complete].
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// ModelCapabilities describes the limits of a model.
type ModelCapabilities struct {
	ContextWindow    int
	MaxOutputTokens  int
	SupportsJSONMode bool
}
