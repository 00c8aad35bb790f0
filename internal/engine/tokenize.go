package engine

import (
	"context"
	"fmt"

	"llmgate/internal/backend"
	"llmgate/pkg/types"
)

// Tokenize encodes req.Content. It runs alongside generations and only
// needs the model loaded.
func (e *Engine) Tokenize(ctx context.Context, req types.TokenizeRequest) (types.TokenizeResponse, error) {
	if req.Content == "" {
		return types.TokenizeResponse{}, ErrValidation("Content is required")
	}
	if err := e.gate.ReadyErr(); err != nil {
		return types.TokenizeResponse{}, err
	}
	_, tok := e.backend()
	if tok == nil {
		return types.TokenizeResponse{}, errNotLoaded
	}
	addSpecial := req.AddSpecial == nil || *req.AddSpecial
	ids, err := tok.Encode(ctx, req.Content, addSpecial)
	if err != nil {
		return types.TokenizeResponse{}, fmt.Errorf("tokenize: %w", err)
	}
	if !req.WithPieces {
		out := make([]int32, len(ids))
		for i, id := range ids {
			out[i] = int32(id)
		}
		return types.TokenizeResponse{Tokens: out, Count: len(ids)}, nil
	}
	pieces := make([]types.TokenPiece, len(ids))
	for i, id := range ids {
		pieces[i] = types.TokenPiece{ID: int32(id), Piece: piece(ctx, tok, ids, i)}
	}
	return types.TokenizeResponse{Tokens: pieces, Count: len(ids)}, nil
}

// piece decodes ids[i] alone. When that fails it takes the difference of the
// prefix decodes, and as a last resort a <token_N> placeholder.
func piece(ctx context.Context, tok backend.Tokenizer, ids []backend.TokenID, i int) string {
	if s, err := tok.Decode(ctx, ids[i:i+1], false); err == nil {
		return s
	}
	if i > 0 {
		prev, perr := tok.Decode(ctx, ids[:i], false)
		cur, cerr := tok.Decode(ctx, ids[:i+1], false)
		if perr == nil && cerr == nil && len(cur) >= len(prev) {
			return cur[len(prev):]
		}
	}
	return fmt.Sprintf("<token_%d>", ids[i])
}
