// Package llamatest provides an in-process fake of the llama.cpp server HTTP
// API for tests. Its vocabulary is byte level: every UTF-8 byte is one token,
// so multi-byte characters span several ids.
package llamatest

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"llmgate/internal/backend"
)

const (
	// BOS is prepended by /tokenize when add_special is set.
	BOS backend.TokenID = 1
	// EOT decodes to special markup.
	EOT backend.TokenID = 2

	byteOffset = 10
)

// Encode maps text to byte-level ids.
func Encode(text string) []backend.TokenID {
	ids := make([]backend.TokenID, 0, len(text))
	for i := 0; i < len(text); i++ {
		ids = append(ids, backend.TokenID(text[i])+byteOffset)
	}
	return ids
}

// Decode maps ids back to text. Special ids render as <|...|> markup.
// Invalid trailing bytes stay as they are; JSON encoding turns them into U+FFFD.
func Decode(ids []backend.TokenID) string {
	var b strings.Builder
	for _, id := range ids {
		switch {
		case id == BOS:
			b.WriteString("<|begin_of_text|>")
		case id == EOT:
			b.WriteString("<|eot_id|>")
		case id >= byteOffset && id < byteOffset+256:
			b.WriteByte(byte(id - byteOffset))
		}
	}
	return b.String()
}

// Server is a scripted llama-server.
type Server struct {
	mu          sync.Mutex
	reply       string
	stopType    string
	loading     bool
	tokenDelay  time.Duration
	hold        chan struct{}
	completions int
	lastRequest map[string]any
}

// New returns a ready server answering every completion with reply.
func New(reply string) *Server {
	return &Server{reply: reply, stopType: "eos"}
}

// SetReply changes the scripted completion text.
func (s *Server) SetReply(reply string) {
	s.mu.Lock()
	s.reply = reply
	s.mu.Unlock()
}

// SetLoading makes /health answer 503 while true.
func (s *Server) SetLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// SetTokenDelay sleeps between streamed chunks.
func (s *Server) SetTokenDelay(d time.Duration) {
	s.mu.Lock()
	s.tokenDelay = d
	s.mu.Unlock()
}

// Hold makes completions pause after their first chunk until the returned
// func is called.
func (s *Server) Hold() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.hold = ch
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Completions returns how many /completion calls were served.
func (s *Server) Completions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completions
}

// LastRequest returns the last /completion payload.
func (s *Server) LastRequest() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRequest
}

// Handler returns the HTTP surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.health)
	mux.HandleFunc("/tokenize", s.tokenize)
	mux.HandleFunc("/detokenize", s.detokenize)
	mux.HandleFunc("/apply-template", s.applyTemplate)
	mux.HandleFunc("/completion", s.completion)
	return mux
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	loading := s.loading
	s.mu.Unlock()
	if loading {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": map[string]any{"code": 503, "message": "Loading model"}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) tokenize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content    string `json:"content"`
		AddSpecial bool   `json:"add_special"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ids := Encode(req.Content)
	if req.AddSpecial {
		ids = append([]backend.TokenID{BOS}, ids...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": ids})
}

func (s *Server) detokenize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tokens []backend.TokenID `json:"tokens"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"content": Decode(req.Tokens)})
}

func (s *Server) applyTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []backend.Message `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var b strings.Builder
	for _, m := range req.Messages {
		fmt.Fprintf(&b, "<|%s|>%s", m.Role, m.Content)
	}
	b.WriteString("<|assistant|>")
	writeJSON(w, http.StatusOK, map[string]any{"prompt": b.String()})
}

func (s *Server) completion(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.completions++
	s.lastRequest = req
	reply, stopType, delay, hold := s.reply, s.stopType, s.tokenDelay, s.hold
	s.mu.Unlock()

	limit := -1
	if n, ok := req["n_predict"].(float64); ok && n >= 0 {
		limit = int(n)
	}
	ids := Encode(reply)
	if limit >= 0 && len(ids) > limit {
		ids = ids[:limit]
		stopType = "limit"
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	send := func(v any) bool {
		b, _ := json.Marshal(v)
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}
	for i, id := range ids {
		if !send(map[string]any{"content": Decode([]backend.TokenID{id}), "tokens": []backend.TokenID{id}, "stop": false}) {
			return
		}
		if i == 0 && hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
	}
	send(map[string]any{"content": "", "stop": true, "stop_type": stopType})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
