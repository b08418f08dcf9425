package domain

const (
	DefaultMaxTokens  = 16384
	DefaultAPIVersion = "2024-10-21"
)

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float64
	MaxTokens    int
	JSONMode     bool
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Completion struct {
	Content  string     `json:"content"`
	Model    string     `json:"model"`
	Usage    TokenUsage `json:"usage"`
	Provider string     `json:"provider"`
}

// JSONCompletion carries the decoded object of a JSON-mode completion. Parsed
// is nil when the content could not be decoded.
type JSONCompletion struct {
	Completion
	Parsed map[string]any `json:"parsed"`
}
