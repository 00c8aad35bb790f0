// Package backend defines the minimal contracts the gateway needs from a
// text-generation runtime: a tokenizer, a stepwise generator and a loader.
// Keep this surface small; sampling and model math stay in the runtime.
package backend

import (
	"context"
)

// TokenID is a vocabulary id. Runtimes that hand back tensors or floats must
// convert at this boundary.
type TokenID int32

// Message is one chat turn handed to the chat-template renderer.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Decoder turns a token id sequence back into text.
type Decoder interface {
	Decode(ctx context.Context, ids []TokenID, skipSpecial bool) (string, error)
}

// Tokenizer is the text side of a loaded model.
type Tokenizer interface {
	Decoder
	Encode(ctx context.Context, text string, addSpecial bool) ([]TokenID, error)
	// ApplyChatTemplate renders messages with the model's chat template and
	// appends the generation prompt.
	ApplyChatTemplate(ctx context.Context, msgs []Message) (string, error)
	// EOS returns the end-of-sequence sentinel reported by steppers.
	EOS() TokenID
}

// SamplerConfig captures the sampling parameters forwarded to the runtime.
type SamplerConfig struct {
	Temperature float64
	TopP        float64
	MinP        float64
	// MaxTokens bounds the runtime side of the generation; <0 means unbounded.
	MaxTokens int
}

// Processor is a logit post-processor descriptor applied by the runtime.
type Processor interface {
	processor()
}

// RepetitionPenalty penalizes tokens seen in the last LastN positions.
type RepetitionPenalty struct {
	Penalty float64
	LastN   int
}

func (RepetitionPenalty) processor() {}

// Step is one generated token with its raw score when the runtime reports one.
type Step struct {
	ID      TokenID
	Logprob float64
}

// Stepper yields one token per call. Implementations report end of sequence by
// returning the tokenizer's EOS id or io.EOF, and must return when ctx is done.
type Stepper interface {
	Next(ctx context.Context) (Step, error)
	Close() error
}

// Model starts generations from already-encoded prompts.
type Model interface {
	Start(ctx context.Context, prompt []TokenID, sampler SamplerConfig, procs ...Processor) (Stepper, error)
}

// Loader brings a model up from a path on disk.
type Loader interface {
	Load(ctx context.Context, path string) (Model, Tokenizer, error)
	// PID is the process hosting the weights, or 0 when it is this process or unknown.
	PID() int
	Close() error
}
