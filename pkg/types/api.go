package types

// GenerationRequest carries the sampling knobs shared by /chat, /chat/ws and
// /completion. Pointer fields distinguish "absent" from zero so that server
// defaults apply only to omitted fields.
type GenerationRequest struct {
	// Required prompt text.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Maximum number of new tokens. Defaults to 512.
	// example: 128
	MaxTokens *int `json:"max_tokens,omitempty" example:"128"`
	// Alias of max_tokens used by llama.cpp clients.
	NPredict *int `json:"n_predict,omitempty" example:"128"`
	// Sampling temperature. Defaults to 0.7.
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability. Defaults to 0.95.
	// example: 0.95
	TopP *float64 `json:"top_p,omitempty" example:"0.95"`
	// Minimum probability relative to the top token. Defaults to 0.
	// example: 0.05
	MinP *float64 `json:"min_p,omitempty" example:"0.05"`
	// Repetition penalty; 1.0 disables it. Defaults to 1.1.
	// example: 1.1
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty" example:"1.1"`
	// Window the repetition penalty looks back over. Defaults to 64.
	// example: 64
	RepeatLastN *int `json:"repeat_last_n,omitempty" example:"64"`
	// Alias of repeat_last_n.
	RepetitionContextSize *int `json:"repetition_context_size,omitempty" example:"64"`
}

// ChatRequest is the body of POST /chat and the first frame of /chat/ws.
// The prompt is wrapped in the model chat template.
type ChatRequest struct {
	GenerationRequest
}

// CompletionRequest is the llama.cpp-compatible body of POST /completion.
// The prompt is used verbatim.
type CompletionRequest struct {
	GenerationRequest
	// Stop strings; generation ends once any appears in the output.
	// example: ["\n\n","END"]
	Stop []string `json:"stop,omitempty" example:"[\"\\n\\n\",\"END\"]"`
	// Only streaming is implemented; false is answered with 501.
	// example: true
	Stream *bool `json:"stream,omitempty" example:"true"`
}

// UnsupportedSamplingFields are accepted for llama.cpp compatibility but ignored.
var UnsupportedSamplingFields = []string{
	"top_k",
	"mirostat",
	"tfs_z",
	"typical_p",
	"penalize_nl",
	"dry_multiplier",
	"presence_penalty",
	"frequency_penalty",
}

// TokenizeRequest is the body of POST /tokenize.
type TokenizeRequest struct {
	// Text to tokenize.
	// example: Hello world
	Content string `json:"content" example:"Hello world"`
	// Return {id, piece} pairs instead of bare ids.
	// example: false
	WithPieces bool `json:"with_pieces,omitempty" example:"false"`
	// Add BOS and other special tokens. Defaults to true.
	// example: true
	AddSpecial *bool `json:"add_special,omitempty" example:"true"`
}

// TokenPiece is one token with its decoded text.
type TokenPiece struct {
	ID    int32  `json:"id" example:"9906"`
	Piece string `json:"piece" example:"Hello"`
}

// TokenizeResponse is returned by POST /tokenize. Tokens holds []int32, or
// []TokenPiece when with_pieces was set.
type TokenizeResponse struct {
	Tokens any `json:"tokens" swaggertype:"array,object"`
	// example: 2
	Count int `json:"count" example:"2"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
