package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_FileSizeLimit(t *testing.T) {
	tmpDir := t.TempDir()

	// Create a large file (> 1MB)
	largeFile := filepath.Join(tmpDir, "large.yaml")
	data := strings.Repeat("x: value\n", 200000) // ~1.6MB
	err := os.WriteFile(largeFile, []byte(data), 0600)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	_, err = LoadConfig(largeFile)
	if err == nil {
		t.Error("expected error for large file")
	}
	if !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected 'too large' error, got: %v", err)
	}
}

func TestLoadConfig_ValidFile(t *testing.T) {
	tmpDir := t.TempDir()

	validConfig := `
user_id: user-123
openai_key: test-key
analysis:
  backend: openai
  timeout: 30s
storage:
  provider: redis
  redis_addr: localhost:6379
`

	validFile := filepath.Join(tmpDir, "valid.yaml")
	err := os.WriteFile(validFile, []byte(validConfig), 0600)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	cfg, err := LoadConfig(validFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UserID != "user-123" {
		t.Errorf("expected user 'user-123', got %s", cfg.UserID)
	}
	if cfg.Analysis.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.Analysis.Timeout)
	}
	if cfg.Storage.Provider != "redis" {
		t.Errorf("expected redis provider, got %s", cfg.Storage.Provider)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	tmpDir := t.TempDir()

	minimal := "user_id: user-123\n"
	path := filepath.Join(tmpDir, "minimal.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Analysis.Backend != "openai" {
		t.Errorf("default backend = %s, want openai", cfg.Analysis.Backend)
	}
	if cfg.Analysis.Timeout != 45*time.Second {
		t.Errorf("default timeout = %v, want 45s", cfg.Analysis.Timeout)
	}
	if cfg.Storage.Provider != "file" {
		t.Errorf("default storage provider = %s, want file", cfg.Storage.Provider)
	}
	if cfg.Sweeper.Schedule != "@hourly" {
		t.Errorf("default sweeper schedule = %s, want @hourly", cfg.Sweeper.Schedule)
	}
	if cfg.Observability.Addr != ":9090" {
		t.Errorf("default observability addr = %s, want :9090", cfg.Observability.Addr)
	}
}

func TestLoadConfig_NonexistentFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()

	invalidYAML := `
user_id: user-123
invalid yaml here: [[[
`

	invalidFile := filepath.Join(tmpDir, "invalid.yaml")
	err := os.WriteFile(invalidFile, []byte(invalidYAML), 0600)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	_, err = LoadConfig(invalidFile)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "missing user",
			cfg:     Config{Analysis: AnalysisConfig{Backend: "mock"}},
			wantErr: true,
		},
		{
			name:    "mock backend needs no key",
			cfg:     Config{UserID: "u", Analysis: AnalysisConfig{Backend: "mock"}},
			wantErr: false,
		},
		{
			name:    "openai backend without key",
			cfg:     Config{UserID: "u", Analysis: AnalysisConfig{Backend: "openai"}},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			cfg:     Config{UserID: "u", Analysis: AnalysisConfig{Backend: "watson"}},
			wantErr: true,
		},
		{
			name: "firestore without project",
			cfg: Config{
				UserID:          "u",
				Analysis:        AnalysisConfig{Backend: "mock"},
				RecordsProvider: "firestore",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
