package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("IN_PROCESS_LAUNCH_MODE", "true")
	t.Setenv("NATS_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIPort != "8080" {
		t.Fatalf("expected default api port 8080, got %q", cfg.APIPort)
	}
	if cfg.StorageBackend != "local" {
		t.Fatalf("expected default storage backend local, got %q", cfg.StorageBackend)
	}
	if cfg.OCRLang != "ko" {
		t.Fatalf("expected default ocr lang ko, got %q", cfg.OCRLang)
	}
	if cfg.OCRMinTextLen != 20 {
		t.Fatalf("expected default ocr min text len 20, got %d", cfg.OCRMinTextLen)
	}
	if cfg.NATSSubject != "bills.queued" {
		t.Fatalf("expected default nats subject bills.queued, got %q", cfg.NATSSubject)
	}
}

func TestLoadParsesOverridesAndTemplateIDs(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("OCR_TEMPLATE_IDS", " 1204, 1205 ,")
	t.Setenv("API_RATE_LIMIT_RPS", "25.5")
	t.Setenv("OCR_MIN_TEXT_LEN", "40")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	ids := cfg.TemplateIDList()
	if len(ids) != 2 || ids[0] != "1204" || ids[1] != "1205" {
		t.Fatalf("template ids = %v", ids)
	}
	if cfg.APIRateLimitRPS != 25.5 {
		t.Fatalf("rate limit rps = %v", cfg.APIRateLimitRPS)
	}
	if cfg.OCRMinTextLen != 40 {
		t.Fatalf("ocr min text len = %d", cfg.OCRMinTextLen)
	}
}

func TestLoadRejectsAzureWithoutConnectionString(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("NATS_URL", "nats://broker:4222")
	t.Setenv("STORAGE_BACKEND", "azure")
	t.Setenv("AZURE_STORAGE_CONNECTION_STRING", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for azure backend without connection string")
	}
}

func TestLoadAppliesYAMLFileWithEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "api_port: \"9999\"\nocr_lang: ja\nnats_url: nats://from-file:4222\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("API_PORT", "7070")
	t.Setenv("OCR_LANG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIPort != "7070" {
		t.Fatalf("env should win over file, got %q", cfg.APIPort)
	}
	if cfg.OCRLang != "ja" {
		t.Fatalf("file value should apply when env empty, got %q", cfg.OCRLang)
	}
	if cfg.NATSURL != "nats://from-file:4222" {
		t.Fatalf("nats url from file = %q", cfg.NATSURL)
	}
}
