package schema

import "testing"

func TestNormalizeServiceConfigDefaults(t *testing.T) {
	cfg, err := NormalizeServiceConfig(ServiceConfig{})
	if err != nil {
		t.Fatalf("NormalizeServiceConfig: %v", err)
	}
	if cfg.RepoRoot == "" || cfg.StateDir == "" {
		t.Fatalf("expected default directories, got %+v", cfg)
	}
	if cfg.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Fatalf("expected default upload cap, got %d", cfg.MaxUploadBytes)
	}
	if len(cfg.DocExtensions) == 0 {
		t.Fatalf("expected default document extensions")
	}
	if cfg.DocsDir != "docs" {
		t.Fatalf("expected default docs dir, got %q", cfg.DocsDir)
	}
}

func TestNormalizeServiceConfigRejectsBadExtension(t *testing.T) {
	_, err := NormalizeServiceConfig(ServiceConfig{DocExtensions: []string{"docx"}})
	if err == nil {
		t.Fatalf("expected error for extension without dot")
	}
}
