// Package main implements a mock chat-completion server for local importer
// development and wiring tests. It serves OpenAI-compatible
// /v1/chat/completions responses from JSON fixture files, routing by the
// "model" field in the request, so the free-text extractor can run fast,
// deterministic, and offline.
//
// Usage:
//
//	mock-llm -fixtures /path/to/fixtures -port 11434
//
// Fixture files are JSON named by model (e.g., "mock-extractor.json" maps to
// model "mock-extractor"); the file content is returned as the assistant
// message. A model with no fixture gets a built-in canned recipe, so importd
// pointed at this server works with no setup at all.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// defaultRecipe is returned for models without a fixture. It satisfies the
// extractor's output schema.
const defaultRecipe = `{
  "name": "Mock Pancakes",
  "ingredients": ["2 cups flour", "2 eggs", "1 cup milk"],
  "instructions": ["Whisk everything together.", "Fry until golden."],
  "prepTimeMinutes": 10,
  "cookTimeMinutes": 15,
  "servings": 4,
  "notes": null
}`

// --- OpenAI-compatible types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Server ---

// capturedRequest stores the key fields of an incoming request so tests can
// verify which prompt the extractor actually sent.
type capturedRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Timestamp int64         `json:"timestamp"`
}

type server struct {
	fixtures map[string]string // model name → response content
	calls    atomic.Int64

	requestsMu sync.Mutex
	requests   map[string][]capturedRequest
}

func newServer(fixtures map[string]string) *server {
	return &server{
		fixtures: fixtures,
		requests: make(map[string][]capturedRequest),
	}
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files")
	port := flag.Int("port", 11434, "port to listen on")
	flag.Parse()

	if envDir := os.Getenv("MOCK_LLM_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}

	fixtures := map[string]string{}
	if *fixtureDir != "" {
		var err error
		fixtures, err = loadFixtures(*fixtureDir)
		if err != nil {
			log.Fatalf("Failed to load fixtures from %s: %v", *fixtureDir, err)
		}
		log.Printf("Loaded %d fixture model(s) from %s", len(fixtures), *fixtureDir)
	} else {
		log.Printf("No fixture directory, serving the built-in recipe for every model")
	}

	s := newServer(fixtures)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock LLM server listening on %s", addr)
	if err := http.ListenAndServe(addr, s.mux()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (s *server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/requests", s.handleRequests)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 {
		http.Error(w, "messages required", http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	log.Printf("[call %d] model=%s messages=%d", callNum, req.Model, len(req.Messages))

	s.captureRequest(req)

	content, ok := s.fixtures[req.Model]
	if !ok {
		content, ok = s.fixtures[strings.TrimPrefix(req.Model, "mock-")]
	}
	if !ok {
		content = defaultRecipe
	}

	resp := chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{
			{
				Index: 0,
				Message: chatMessage{
					Role:    "assistant",
					Content: content,
				},
				FinishReason: "stop",
			},
		},
		Usage: chatUsage{
			PromptTokens:     len(content) / 4, // rough estimate
			CompletionTokens: len(content) / 4,
			TotalTokens:      len(content) / 2,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleStats reports total calls served.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int64{"calls": s.calls.Load()})
}

// handleRequests returns captured requests, optionally filtered with ?model=.
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	s.requestsMu.Lock()
	defer s.requestsMu.Unlock()

	model := r.URL.Query().Get("model")
	var out []capturedRequest
	if model != "" {
		out = s.requests[model]
	} else {
		for _, reqs := range s.requests {
			out = append(out, reqs...)
		}
	}
	if out == nil {
		out = []capturedRequest{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *server) captureRequest(req chatRequest) {
	s.requestsMu.Lock()
	defer s.requestsMu.Unlock()
	s.requests[req.Model] = append(s.requests[req.Model], capturedRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		Timestamp: time.Now().UnixMilli(),
	})
}

// loadFixtures reads every .json file in dir and maps its base name to its
// content.
func loadFixtures(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	fixtures := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read fixture %s: %w", entry.Name(), err)
		}
		model := strings.TrimSuffix(entry.Name(), ".json")
		fixtures[model] = string(data)
	}
	return fixtures, nil
}
