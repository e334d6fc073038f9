package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"marketbot/internal/config"
	"marketbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testConfig points every remote dependency at local servers: the AI base
// URL always answers 500 and the marketplace counts its calls.
func testConfig(t *testing.T) (*config.Config, *atomic.Int32) {
	t.Helper()
	ai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(ai.Close)

	var marketCalls atomic.Int32
	market := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		marketCalls.Add(1)
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(market.Close)

	cfg := config.Defaults()
	cfg.General.EnvFile = ""
	cfg.Memory.DBPath = filepath.Join(t.TempDir(), "marketbot.db")
	cfg.Marketplace.BaseURL = market.URL
	cfg.Properties = map[string]string{config.KeyAPIBase: ai.URL}
	return cfg, &marketCalls
}

func TestNewApp_TextTurnEndToEnd(t *testing.T) {
	cfg, marketCalls := testConfig(t)
	a, err := newApp(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	res := a.orchestrator.Process(context.Background(), domain.Request{SessionID: "s1", MerchantID: "m1", Message: "你好"})
	if !res.Success || res.Intent != domain.IntentGeneralChat || res.AIResponse == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if marketCalls.Load() != 0 {
		t.Fatalf("general chat must not call the marketplace, got %d calls", marketCalls.Load())
	}

	msgs, err := a.store.RecentMessages(context.Background(), "s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].MessageID != res.MessageID || msgs[0].AIResponse != res.AIResponse {
		t.Fatalf("expected the turn to be persisted, got %+v", msgs)
	}
}

func TestNewApp_VoiceWithoutTokenUsesDemo(t *testing.T) {
	cfg, _ := testConfig(t)
	a, err := newApp(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	res := a.orchestrator.Process(context.Background(), domain.Request{
		SessionID:   "s2",
		MessageType: domain.TypeVoice,
		Message:     "[Voice Message]",
		Attachment:  &domain.Attachment{FileID: "abc123", Duration: 3},
	})
	if !res.Success || !res.MultimodalProcessed || res.Transcript == nil || res.Transcript.Text == "" {
		t.Fatalf("expected a demo transcript, got %+v", res)
	}
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	if _, err := openStore(context.Background(), config.MemoryConfig{Driver: "mongo"}, testLogger()); err == nil {
		t.Fatal("expected an error for an unknown driver")
	}
}

func TestTelegramToken(t *testing.T) {
	cfg := config.Defaults()
	cfg.Overrides = map[string]string{config.KeyTelegramToken: "from-property"}
	r := config.NewResolverFromConfig(cfg)

	if got := telegramToken(cfg, r); got != "from-property" {
		t.Fatalf("expected the property token, got %q", got)
	}
	cfg.Channels.Telegram.Token = "from-config"
	if got := telegramToken(cfg, r); got != "from-config" {
		t.Fatalf("expected the channel token to win, got %q", got)
	}
}

func TestNewLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "logs", "marketbot.log")
	l, closeLog, err := newLogger(config.GeneralConfig{LogLevel: "warn", LogFile: logFile})
	if err != nil {
		t.Fatal(err)
	}
	l.Info("hidden")
	l.Warn("shown")
	closeLog()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "hidden") || !strings.Contains(string(data), "shown") {
		t.Fatalf("unexpected log contents: %s", data)
	}
}

func TestDoctorChecks(t *testing.T) {
	logger = testLogger()
	cfg, _ := testConfig(t)

	var out bytes.Buffer
	rep := &doctorReport{out: &out}
	runDoctorChecks(context.Background(), cfg, rep)

	if rep.failed != 0 {
		t.Fatalf("expected no failures:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "[PASS] Dialogue store") || !strings.Contains(out.String(), "[PASS] Marketplace") {
		t.Fatalf("unexpected report:\n%s", out.String())
	}

	cfg.Channels.Telegram.Enabled = true
	rep = &doctorReport{out: &out}
	runDoctorChecks(context.Background(), cfg, rep)
	if rep.failed != 1 || rep.summary() == nil {
		t.Fatalf("expected the missing telegram token to fail, got %d failures", rep.failed)
	}
}

func TestBackupArchive(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "marketbot.db")
	cfgFile := filepath.Join(dir, "config.yaml")
	os.WriteFile(db, []byte("sqlite"), 0o600)
	os.WriteFile(cfgFile, []byte("general: {}"), 0o600)

	files := existingFiles(db, db+"-wal", cfgFile)
	if len(files) != 2 {
		t.Fatalf("expected missing WAL to be skipped, got %v", files)
	}

	var buf bytes.Buffer
	if err := writeArchive(&buf, files); err != nil {
		t.Fatal(err)
	}
	names, err := archiveNames(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "marketbot.db" || names[1] != "config.yaml" {
		t.Fatalf("unexpected entries %v", names)
	}
}
