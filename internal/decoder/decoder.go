// Package decoder turns a growing token-id sequence into text deltas that are
// safe to stream: concatenating every delta reproduces the full decode with
// special markup removed, and no delta ever splits a multi-byte character.
package decoder

import (
	"context"
	"regexp"
	"strings"

	"llmgate/internal/backend"
	"llmgate/internal/logx"
)

// specialMarkup matches chat-template control tokens such as <|eot_id|>.
var specialMarkup = regexp.MustCompile(`<\|[^|]*\|>`)

const replacementChar = "\uFFFD"

// Decoder re-decodes the whole id prefix on every push and diffs it against
// the text already emitted. It is owned by one generation and is not safe for
// concurrent use.
type Decoder struct {
	tok      backend.Decoder
	ids      []backend.TokenID
	previous string
}

// New returns a Decoder backed by tok.
func New(tok backend.Decoder) *Decoder {
	return &Decoder{tok: tok}
}

// Push appends id and returns the newly decodable text, which may be empty.
func (d *Decoder) Push(ctx context.Context, id backend.TokenID) string {
	d.ids = append(d.ids, id)
	current, ok := d.decode(ctx)
	if !ok {
		return ""
	}
	current = strings.TrimRight(current, replacementChar)
	return d.advance(current)
}

// Flush returns the tail of the full decode that Push held back, such as a
// trailing replacement character for bytes that never completed.
func (d *Decoder) Flush(ctx context.Context) string {
	if len(d.ids) == 0 {
		return ""
	}
	current, ok := d.decode(ctx)
	if !ok {
		return ""
	}
	return d.advance(current)
}

// Text is everything emitted so far.
func (d *Decoder) Text() string { return d.previous }

// Len is the number of ids pushed.
func (d *Decoder) Len() int { return len(d.ids) }

func (d *Decoder) decode(ctx context.Context) (string, bool) {
	text, err := d.tok.Decode(ctx, d.ids, true)
	if err != nil {
		logx.Log.Debug().Err(err).Int("ids", len(d.ids)).Msg("incremental decode failed")
		return "", false
	}
	return specialMarkup.ReplaceAllString(text, ""), true
}

// advance emits current's extension of previous. A decode that rewrote
// already-emitted text yields nothing and leaves previous untouched.
func (d *Decoder) advance(current string) string {
	if !strings.HasPrefix(current, d.previous) {
		return ""
	}
	delta := current[len(d.previous):]
	if delta != "" {
		d.previous = current
	}
	return delta
}
