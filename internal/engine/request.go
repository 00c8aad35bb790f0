package engine

import (
	"strings"

	"llmgate/pkg/types"
)

// Mode selects how the prompt is rendered.
type Mode int

const (
	// ModeChat wraps the prompt in the model chat template.
	ModeChat Mode = iota
	// ModeCompletion feeds the prompt verbatim.
	ModeCompletion
)

func (m Mode) String() string {
	if m == ModeCompletion {
		return "completion"
	}
	return "chat"
}

// Request is a validated generation request with defaults applied.
type Request struct {
	Mode          Mode
	Prompt        string
	MaxTokens     int // negative means no limit
	Temperature   float64
	TopP          float64
	MinP          float64
	RepeatPenalty float64
	RepeatLastN   int
	Stop          []string
}

// NewChatRequest resolves a /chat body. max_tokens wins over n_predict and a
// non-positive budget falls back to the default.
func NewChatRequest(r types.ChatRequest) (Request, error) {
	req := resolve(ModeChat, r.GenerationRequest, firstInt(r.MaxTokens, r.NPredict))
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	return req, req.validate()
}

// NewCompletionRequest resolves a /completion body. n_predict wins over
// max_tokens as in llama.cpp, and a negative budget means no limit.
func NewCompletionRequest(r types.CompletionRequest) (Request, error) {
	req := resolve(ModeCompletion, r.GenerationRequest, firstInt(r.NPredict, r.MaxTokens))
	if req.MaxTokens == 0 {
		req.MaxTokens = DefaultMaxTokens
	} else if req.MaxTokens < 0 {
		req.MaxTokens = -1
	}
	for _, s := range r.Stop {
		if s != "" {
			req.Stop = append(req.Stop, s)
		}
	}
	if err := req.validate(); err != nil {
		return req, err
	}
	if r.Stream != nil && !*r.Stream {
		return req, notImplementedError{msg: "Non-streaming completion not implemented"}
	}
	return req, nil
}

func resolve(mode Mode, g types.GenerationRequest, maxTokens *int) Request {
	req := Request{
		Mode:          mode,
		Prompt:        g.Prompt,
		MaxTokens:     DefaultMaxTokens,
		Temperature:   floatOr(g.Temperature, DefaultTemperature),
		TopP:          floatOr(g.TopP, DefaultTopP),
		MinP:          floatOr(g.MinP, DefaultMinP),
		RepeatPenalty: floatOr(g.RepeatPenalty, DefaultRepeatPenalty),
		RepeatLastN:   DefaultRepeatLastN,
	}
	if maxTokens != nil {
		req.MaxTokens = *maxTokens
	}
	if n := firstInt(g.RepeatLastN, g.RepetitionContextSize); n != nil {
		req.RepeatLastN = *n
	}
	return req
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrValidation("Prompt is required")
	}
	if r.Temperature < 0 {
		return ErrValidation("temperature must not be negative")
	}
	if r.TopP < 0 || r.TopP > 1 || r.MinP < 0 || r.MinP > 1 {
		return ErrValidation("top_p and min_p must be within [0, 1]")
	}
	return nil
}

func firstInt(vals ...*int) *int {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
