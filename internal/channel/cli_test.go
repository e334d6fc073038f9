package channel

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"marketbot/internal/domain"
)

func TestCLI_TextAndMediaTurns(t *testing.T) {
	proc := &fakeProcessor{}
	var out bytes.Buffer
	cli := NewCLI(CLIConfig{
		Processor:  proc,
		MerchantID: "m9",
		Logger:     testLogger(),
		In:         strings.NewReader("查找蔬菜\n\n/voice abc123\n/photo p1 钢材样品\n/photo p2\n/quit\n不会处理\n"),
		Out:        &out,
	})

	if err := cli.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	reqs := proc.requests()
	if len(reqs) != 4 {
		t.Fatalf("expected 4 turns before /quit, got %d", len(reqs))
	}
	for _, r := range reqs {
		if r.SessionID != "cli_m9" || r.MerchantID != "m9" {
			t.Fatalf("unexpected ids %+v", r)
		}
	}
	if !reqs[0].IsText() || reqs[0].Message != "查找蔬菜" || reqs[0].Attachment != nil {
		t.Fatalf("unexpected text turn %+v", reqs[0])
	}
	if reqs[1].MessageType != domain.TypeVoice || reqs[1].Message != voicePlaceholder || reqs[1].Attachment.FileID != "abc123" {
		t.Fatalf("unexpected voice turn %+v", reqs[1])
	}
	if reqs[2].MessageType != domain.TypePhoto || reqs[2].Message != "钢材样品" || reqs[2].Attachment.FileID != "p1" {
		t.Fatalf("unexpected photo turn %+v", reqs[2])
	}
	if reqs[3].Message != photoPlaceholder || reqs[3].Attachment.FileID != "p2" {
		t.Fatalf("unexpected photo turn %+v", reqs[3])
	}

	got := out.String()
	if !strings.Contains(got, "--- GENERAL_CHAT ---") || !strings.Contains(got, "reply: 查找蔬菜") {
		t.Fatalf("unexpected output:\n%s", got)
	}
}

func TestCLI_DefaultsAndEOF(t *testing.T) {
	proc := &fakeProcessor{}
	cli := NewCLI(CLIConfig{Processor: proc, Logger: testLogger(), In: strings.NewReader("hi"), Out: &bytes.Buffer{}})

	if err := cli.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	reqs := proc.requests()
	if len(reqs) != 1 || reqs[0].SessionID != "cli_cli" || reqs[0].MerchantID != "cli" {
		t.Fatalf("unexpected requests %+v", reqs)
	}
}

func TestCLI_CancelledContext(t *testing.T) {
	proc := &fakeProcessor{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cli := NewCLI(CLIConfig{Processor: proc, Logger: testLogger(), In: strings.NewReader("hi\n"), Out: &bytes.Buffer{}})
	if err := cli.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if len(proc.requests()) != 0 {
		t.Fatal("no turn should run after cancellation")
	}
}
