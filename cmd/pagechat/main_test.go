package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"pagechat/internal/config"
	"pagechat/internal/models"
	"pagechat/internal/secrets"
	"pagechat/internal/storage"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Fatalf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSealAndReseal(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	cfg := &config.Config{Crypto: config.CryptoConfig{CurrentKeyID: "k1", Keys: map[string][]byte{"k1": key}}}

	var out bytes.Buffer
	if err := seal(&out, cfg, []string{"sk-live"}); err != nil {
		t.Fatalf("seal: %v", err)
	}
	sealed := strings.TrimSpace(out.String())
	if !secrets.IsSealed(sealed) {
		t.Fatalf("expected sealed output, got %q", sealed)
	}

	cfg.Crypto.Keys["k2"] = bytes.Repeat([]byte{9}, 32)
	cfg.Crypto.CurrentKeyID = "k2"
	out.Reset()
	if err := reseal(&out, cfg, []string{sealed}); err != nil {
		t.Fatalf("reseal: %v", err)
	}
	if !strings.HasPrefix(out.String(), secrets.Prefix+"k2:") {
		t.Fatalf("expected value under k2, got %q", out.String())
	}

	if err := seal(&out, &config.Config{}, []string{"x"}); !errors.Is(err, secrets.ErrNoKeys) {
		t.Fatalf("expected ErrNoKeys, got %v", err)
	}
	if err := seal(&out, cfg, nil); err == nil {
		t.Fatal("expected error without argument")
	}
}

func TestRecordsCommand(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "chat.db")
	cfg := &config.Config{Store: config.StoreConfig{Driver: config.StoreSQLite, DSN: dsn, AutoMigrate: true}}

	store, err := storage.Open(context.Background(), cfg.Store.Driver, dsn, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	err = store.Put(context.Background(), models.StoredChatData{
		URL:             "https://example.com/a",
		ActiveSessionID: "s1",
		Sessions:        []models.ChatSession{{ID: "s1", URL: "https://example.com/a", Messages: []models.ChatMessage{}}},
	})
	_ = store.Close()
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	var out bytes.Buffer
	if err := records(&out, cfg, nil); err != nil {
		t.Fatalf("records: %v", err)
	}
	if !strings.Contains(out.String(), "https://example.com/a\t1 sessions\tactive=s1") {
		t.Fatalf("unexpected listing %q", out.String())
	}

	if err := records(&out, cfg, []string{"delete", "https://example.com/a"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	out.Reset()
	if err := records(&out, cfg, nil); err != nil {
		t.Fatalf("records after delete: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected empty listing, got %q", out.String())
	}

	if err := records(&out, &config.Config{Store: config.StoreConfig{Driver: config.StoreMemory}}, nil); err == nil {
		t.Fatal("expected error for memory store")
	}
}
