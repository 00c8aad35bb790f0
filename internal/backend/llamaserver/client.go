package llamaserver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"llmgate/internal/backend"
	"llmgate/internal/logx"
)

// EOS is the sentinel id reported when the server ends a completion with
// stop_type "eos". llama-server never streams the eos token itself.
const EOS backend.TokenID = -1

// Client talks to a running llama.cpp server over its native HTTP API.
// It implements both backend.Tokenizer and backend.Model.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a client for baseURL.
func NewClient(baseURL, apiKey string, connectTimeout time.Duration) *Client {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout stays 0: completion streams are unbounded, every call carries a context.
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Transport: tr, Timeout: 0},
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

// EOS implements backend.Tokenizer.
func (c *Client) EOS() backend.TokenID { return EOS }

// Healthy reports whether /health answers 200.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// WaitReady polls /health until it answers 200, ctx ends or timeout elapses.
func (c *Client) WaitReady(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	for {
		probe, cancel := context.WithTimeout(ctx, time.Second)
		ok := c.Healthy(probe)
		cancel()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("llama-server not ready at %s: %w", c.baseURL, ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

type tokenizeRequest struct {
	Content    string `json:"content"`
	AddSpecial bool   `json:"add_special"`
}

type tokenizeResponse struct {
	Tokens []backend.TokenID `json:"tokens"`
}

// Encode implements backend.Tokenizer.
func (c *Client) Encode(ctx context.Context, text string, addSpecial bool) ([]backend.TokenID, error) {
	var out tokenizeResponse
	if err := c.postJSON(ctx, "/tokenize", tokenizeRequest{Content: text, AddSpecial: addSpecial}, &out); err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

type detokenizeRequest struct {
	Tokens []backend.TokenID `json:"tokens"`
}

type detokenizeResponse struct {
	Content string `json:"content"`
}

// Decode implements backend.Decoder. The server has no skip-special switch;
// special markup is left in place and stripped by the caller.
func (c *Client) Decode(ctx context.Context, ids []backend.TokenID, skipSpecial bool) (string, error) {
	if len(ids) == 0 {
		return "", nil
	}
	var out detokenizeResponse
	if err := c.postJSON(ctx, "/detokenize", detokenizeRequest{Tokens: ids}, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

type applyTemplateRequest struct {
	Messages []backend.Message `json:"messages"`
}

type applyTemplateResponse struct {
	Prompt string `json:"prompt"`
}

// ApplyChatTemplate implements backend.Tokenizer.
func (c *Client) ApplyChatTemplate(ctx context.Context, msgs []backend.Message) (string, error) {
	var out applyTemplateResponse
	if err := c.postJSON(ctx, "/apply-template", applyTemplateRequest{Messages: msgs}, &out); err != nil {
		return "", err
	}
	if out.Prompt == "" {
		return "", errors.New("apply-template returned an empty prompt")
	}
	return out.Prompt, nil
}

// completionRequest is the native /completion payload. The prompt is sent as
// token ids so the server generates from exactly what the gateway encoded.
type completionRequest struct {
	Prompt        []backend.TokenID `json:"prompt"`
	NPredict      int               `json:"n_predict"`
	Temperature   float64           `json:"temperature"`
	TopP          float64           `json:"top_p"`
	MinP          float64           `json:"min_p"`
	RepeatPenalty float64           `json:"repeat_penalty"`
	RepeatLastN   int               `json:"repeat_last_n"`
	Stream        bool              `json:"stream"`
	ReturnTokens  bool              `json:"return_tokens"`
	CachePrompt   bool              `json:"cache_prompt"`
}

type completionChunk struct {
	Content  string            `json:"content"`
	Tokens   []backend.TokenID `json:"tokens"`
	Stop     bool              `json:"stop"`
	StopType string            `json:"stop_type"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Start implements backend.Model.
func (c *Client) Start(ctx context.Context, prompt []backend.TokenID, sampler backend.SamplerConfig, procs ...backend.Processor) (backend.Stepper, error) {
	payload := completionRequest{
		Prompt:        prompt,
		NPredict:      sampler.MaxTokens,
		Temperature:   sampler.Temperature,
		TopP:          sampler.TopP,
		MinP:          sampler.MinP,
		RepeatPenalty: 1.0,
		Stream:        true,
		ReturnTokens:  true,
		CachePrompt:   true,
	}
	if payload.NPredict == 0 {
		payload.NPredict = -1
	}
	for _, p := range procs {
		if rp, ok := p.(backend.RepetitionPenalty); ok {
			payload.RepeatPenalty = rp.Penalty
			payload.RepeatLastN = rp.LastN
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("llama-server http error: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	return &stepper{body: resp.Body, r: bufio.NewReader(resp.Body)}, nil
}

// stepper consumes a /completion SSE stream lazily. One chunk may carry
// several ids; they are handed out one per Next call.
type stepper struct {
	body    io.ReadCloser
	r       *bufio.Reader
	pending []backend.TokenID
	// end is the terminal result once the server sent stop:true.
	end    error
	endID  bool
	closed bool
}

func (s *stepper) Next(ctx context.Context) (backend.Step, error) {
	for {
		if len(s.pending) > 0 {
			id := s.pending[0]
			s.pending = s.pending[1:]
			return backend.Step{ID: id}, nil
		}
		if s.endID {
			s.endID = false
			s.end = io.EOF
			return backend.Step{ID: EOS}, nil
		}
		if s.end != nil {
			return backend.Step{}, s.end
		}
		if err := s.readChunk(ctx); err != nil {
			return backend.Step{}, err
		}
	}
}

func (s *stepper) readChunk(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// A blocked read only returns once the body is closed.
	stop := context.AfterFunc(ctx, func() { _ = s.body.Close() })
	defer stop()
	for {
		line, err := s.r.ReadString('\n')
		if l := strings.TrimSpace(line); l != "" && strings.HasPrefix(l, "data:") {
			data := strings.TrimSpace(l[len("data:"):])
			if data == "[DONE]" {
				s.end = io.EOF
				return nil
			}
			var chunk completionChunk
			if jerr := json.Unmarshal([]byte(data), &chunk); jerr != nil {
				logx.Log.Debug().Str("line", l).Msg("llama-server: unparsable stream line")
				continue
			}
			if chunk.Error != nil {
				s.end = fmt.Errorf("llama-server: %s", chunk.Error.Message)
				return nil
			}
			s.pending = append(s.pending, chunk.Tokens...)
			if chunk.Stop {
				if chunk.StopType == "eos" {
					s.endID = true
				} else {
					s.end = io.EOF
				}
			}
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				s.end = io.EOF
				return nil
			}
			return fmt.Errorf("read completion stream: %w", err)
		}
	}
}

func (s *stepper) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("llama-server %s: %s: %s", path, resp.Status, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("llama-server %s: decode: %w", path, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
