package backend

import (
	"context"
	"path/filepath"
	"testing"

	"famfunds/internal/config"
	"famfunds/internal/core"
	"famfunds/internal/ledger"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("FromAppConfig(nil) error = nil")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("FromAppConfig(sheets) error = nil, want invalid backend")
	}

	cfg, err := FromAppConfig(&config.Config{DataBackend: "memory", LedgerTimezone: "Europe/Rome", EventBufferSize: 8, SeedDemo: true})
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != MemoryBackend || !cfg.SeedDemo || cfg.EventBufferSize != 8 {
		t.Errorf("FromAppConfig() = %+v", cfg)
	}
	if cfg.Location.String() != "Europe/Rome" {
		t.Errorf("Location = %v, want Europe/Rome", cfg.Location)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown type", Config{Type: "sheets"}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://localhost/", AMQPExchange: "x"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateMemoryBackendSeeded(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, SeedDemo: true})
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	defer res.Cleanup()

	if res.Store != nil {
		t.Error("memory backend has a store")
	}
	if res.Dispatcher == nil {
		t.Fatal("Dispatcher = nil")
	}
	if n := len(res.Engine.Accounts()); n != 4 {
		t.Errorf("accounts = %d, want 4", n)
	}
	if err := res.Ready(context.Background()); err != nil {
		t.Errorf("Ready() error = %v", err)
	}
}

func TestCreateSQLiteBackendRestores(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "famfunds.db"), SeedDemo: true}

	first, err := NewFactory(nil).CreateBackend(ctx, cfg)
	if err != nil {
		t.Fatalf("CreateBackend() error = %v", err)
	}
	tx, err := first.Engine.Propose(ctx, ledger.ProposeRequest{
		SubAccountID: "sub-2", Amount: core.Cents(100_00), Type: core.Credit, Category: "salary",
	})
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if err := first.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}

	second, err := NewFactory(nil).CreateBackend(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen CreateBackend() error = %v", err)
	}
	defer second.Cleanup()

	if err := second.Ready(ctx); err != nil {
		t.Errorf("Ready() error = %v", err)
	}
	got, err := second.Engine.ByID(tx.ID)
	if err != nil {
		t.Fatalf("ByID() error = %v", err)
	}
	if got.Status != core.StatusCompleted {
		t.Errorf("restored status = %s", got.Status)
	}
	acct, err := second.Engine.Account("sub-2")
	if err != nil {
		t.Fatalf("Account() error = %v", err)
	}
	if acct.Balance != core.Cents(4600_00) {
		t.Errorf("restored balance = %v, want 4600.00", acct.Balance)
	}
}
