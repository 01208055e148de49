package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nft-marketplace/client/internal/config"
	"github.com/nft-marketplace/client/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func testConfig(backend string, t *testing.T) *config.Config {
	return &config.Config{
		APIBaseURL:     "http://127.0.0.1:1",
		SessionBackend: backend,
		SQLitePath:     filepath.Join(t.TempDir(), "session.db"),
		PriceFeedURL:   "http://127.0.0.1:1/price",
	}
}

func TestNew_Backends(t *testing.T) {
	tests := []struct {
		backend  string
		wantRuns bool
		wantErr  bool
	}{
		{backend: "memory"},
		{backend: "sqlite", wantRuns: true},
		{backend: "", wantRuns: true},
		{backend: "etcd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run("backend="+tt.backend, func(t *testing.T) {
			a, err := New(context.Background(), testConfig(tt.backend, t), zap.NewNop())
			if tt.wantErr {
				if err == nil {
					a.Close()
					t.Fatal("expected an error for an unknown backend")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer a.Close()

			if (a.Runs != nil) != tt.wantRuns {
				t.Errorf("upload history present = %v, want %v", a.Runs != nil, tt.wantRuns)
			}
			if a.Sessions == nil || a.Uploads == nil || a.Creation == nil || a.Wizard == nil {
				t.Error("services not wired")
			}
			if a.Sessions.State().Phase() != models.WalletPhaseDisconnected {
				t.Errorf("initial phase = %s", a.Sessions.State().Phase())
			}
			if len(a.Wallets.Kinds()) != 0 {
				t.Errorf("wallets detected without configuration: %v", a.Wallets.Kinds())
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log, err := NewLogger(tt.level)
			if err != nil {
				t.Fatal(err)
			}
			if !log.Core().Enabled(tt.want) {
				t.Errorf("level %s not enabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && log.Core().Enabled(tt.want-1) {
				t.Errorf("level below %s enabled", tt.want)
			}
		})
	}
}
