package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
}

func TestLoadFixtures(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-extractor.json", `{"name":"Soup"}`)
	writeFixture(t, dir, "gpt-4o-mini.json", `{"name":"Toast"}`)
	writeFixture(t, dir, "notes.txt", "ignored")

	fixtures, err := loadFixtures(dir)
	if err != nil {
		t.Fatalf("loadFixtures: %v", err)
	}

	if len(fixtures) != 2 {
		t.Fatalf("expected 2 models, got %d", len(fixtures))
	}
	if !strings.Contains(fixtures["mock-extractor"], "Soup") {
		t.Errorf("mock-extractor fixture wrong: %s", fixtures["mock-extractor"])
	}
	if !strings.Contains(fixtures["gpt-4o-mini"], "Toast") {
		t.Errorf("gpt-4o-mini fixture wrong: %s", fixtures["gpt-4o-mini"])
	}
}

func TestLoadFixtures_MissingDir(t *testing.T) {
	if _, err := loadFixtures("/nonexistent/fixtures"); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func doChat(t *testing.T, s *server, model, prompt string) chatResponse {
	t.Helper()
	body := `{"model":"` + model + `","messages":[{"role":"user","content":"` + prompt + `"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestChatCompletions_Fixture(t *testing.T) {
	s := newServer(map[string]string{
		"mock-extractor": `{"name":"Carbonara","ingredients":["eggs"]}`,
	})

	resp := doChat(t, s, "mock-extractor", "Extract the recipe")

	if len(resp.Choices) != 1 {
		t.Fatalf("expected 1 choice, got %d", len(resp.Choices))
	}
	if !strings.Contains(resp.Choices[0].Message.Content, "Carbonara") {
		t.Errorf("expected fixture content, got: %s", resp.Choices[0].Message.Content)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Errorf("finish reason = %q", resp.Choices[0].FinishReason)
	}
	if resp.Model != "mock-extractor" {
		t.Errorf("model = %q", resp.Model)
	}
}

func TestChatCompletions_DefaultRecipe(t *testing.T) {
	s := newServer(map[string]string{})

	resp := doChat(t, s, "unknown-model", "Extract the recipe")

	content := resp.Choices[0].Message.Content
	if !strings.Contains(content, "Mock Pancakes") {
		t.Errorf("expected built-in recipe, got: %s", content)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		t.Fatalf("built-in recipe is not valid JSON: %v", err)
	}
	if _, ok := parsed["ingredients"]; !ok {
		t.Error("built-in recipe missing ingredients")
	}
}

func TestChatCompletions_MockPrefixFallback(t *testing.T) {
	s := newServer(map[string]string{
		"extractor": `{"name":"Stew"}`,
	})

	resp := doChat(t, s, "mock-extractor", "go")
	if !strings.Contains(resp.Choices[0].Message.Content, "Stew") {
		t.Errorf("mock- prefix should fall back to bare model fixture, got: %s",
			resp.Choices[0].Message.Content)
	}
}

func TestChatCompletions_BadRequests(t *testing.T) {
	s := newServer(nil)
	mux := s.mux()

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "{not json", http.StatusBadRequest},
		{"no messages", http.MethodPost, `{"model":"m","messages":[]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/chat/completions", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequestCapture(t *testing.T) {
	s := newServer(nil)

	doChat(t, s, "mock-extractor", "first prompt")
	doChat(t, s, "mock-extractor", "second prompt")
	doChat(t, s, "other-model", "unrelated")

	req := httptest.NewRequest(http.MethodGet, "/requests?model=mock-extractor", nil)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	var captured []capturedRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &captured); err != nil {
		t.Fatalf("decode captured requests: %v", err)
	}
	if len(captured) != 2 {
		t.Fatalf("expected 2 captured requests, got %d", len(captured))
	}
	if captured[0].Messages[0].Content != "first prompt" {
		t.Errorf("first captured prompt = %q", captured[0].Messages[0].Content)
	}
}

func TestStats(t *testing.T) {
	s := newServer(nil)
	doChat(t, s, "m", "one")
	doChat(t, s, "m", "two")

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	var stats map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats["calls"] != 2 {
		t.Errorf("calls = %d, want 2", stats["calls"])
	}
}
