package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("UPLOAD_BATCH_SIZE", "")
	t.Setenv("PROGRESS_POLL_INTERVAL_SECONDS", "")
	t.Setenv("ALLOW_FALLBACK_SIGN_MESSAGE", "")

	cfg := Load()
	if cfg.UploadBatchSize != 10 {
		t.Errorf("UploadBatchSize = %d, want 10", cfg.UploadBatchSize)
	}
	if cfg.ProgressPollInterval != 8*time.Second {
		t.Errorf("ProgressPollInterval = %s, want 8s", cfg.ProgressPollInterval)
	}
	if !cfg.AllowFallbackSignMessage {
		t.Error("fallback sign message should default to enabled")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("UPLOAD_BATCH_SIZE", "-3")
	t.Setenv("ALLOW_FALLBACK_SIGN_MESSAGE", "false")
	t.Setenv("EVM_DEFAULT_CHAIN_ID", "5115")
	t.Setenv("SESSION_BACKEND", "Redis")

	cfg := Load()
	if cfg.UploadBatchSize != 10 {
		t.Errorf("non-positive batch size should fall back to 10, got %d", cfg.UploadBatchSize)
	}
	if cfg.AllowFallbackSignMessage {
		t.Error("ALLOW_FALLBACK_SIGN_MESSAGE=false not applied")
	}
	if cfg.EVMDefaultChainID != 5115 {
		t.Errorf("EVMDefaultChainID = %d", cfg.EVMDefaultChainID)
	}
	if cfg.SessionBackend != "redis" {
		t.Errorf("SessionBackend = %q", cfg.SessionBackend)
	}
}

func TestParseList(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{" a , ,b ", []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseList(tt.input); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("parseList(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
