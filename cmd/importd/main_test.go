package main

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/plateful/importer/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "anthropic"
	cfg.LLM.Model = "claude-sonnet-4-5"
	cfg.LLM.URL = "https://api.anthropic.com"
	cfg.Import.MonthlyLimit = 7
	cfg.Import.GCInterval = 6 * time.Hour
	return cfg
}

func TestBuildComponentsMapsConfig(t *testing.T) {
	apiComp, workerComp, err := buildComponents(testConfig(), nil, slog.Default())
	if err != nil {
		t.Fatalf("buildComponents: %v", err)
	}
	if apiComp == nil || workerComp == nil {
		t.Fatal("expected both components")
	}
	if got := apiComp.Meta().Name; got != "import-api" {
		t.Errorf("api component name = %q", got)
	}
	if got := workerComp.Meta().Name; got != "import-worker" {
		t.Errorf("worker component name = %q", got)
	}
}

func TestHealthHandlerUnhealthyBeforeStart(t *testing.T) {
	apiComp, workerComp, err := buildComponents(testConfig(), nil, slog.Default())
	if err != nil {
		t.Fatalf("buildComponents: %v", err)
	}

	rec := httptest.NewRecorder()
	healthHandler(apiComp, workerComp)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before start, got %d", rec.Code)
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command: %v", err)
	}
}
