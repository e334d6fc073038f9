package channel

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"marketbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeProcessor records requests and echoes the message.
type fakeProcessor struct {
	mu   sync.Mutex
	reqs []domain.Request
}

func (p *fakeProcessor) Process(_ context.Context, req domain.Request) domain.Result {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()
	return domain.Result{Success: true, SessionID: req.SessionID, Intent: domain.IntentGeneralChat, AIResponse: "reply: " + req.Message}
}

func (p *fakeProcessor) requests() []domain.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Request(nil), p.reqs...)
}

type sentMessage struct {
	chatID    string
	text      string
	parseMode string
}

// fakeBotServer answers Bot API calls and records sendMessage payloads.
type fakeBotServer struct {
	mu          sync.Mutex
	sent        []sentMessage
	rejectParse bool
}

func (f *fakeBotServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	if strings.HasSuffix(r.URL.Path, "/sendMessage") {
		m := sentMessage{chatID: r.Form.Get("chat_id"), text: r.Form.Get("text"), parseMode: r.Form.Get("parse_mode")}
		f.mu.Lock()
		f.sent = append(f.sent, m)
		f.mu.Unlock()
		if f.rejectParse && m.parseMode != "" {
			w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities: unexpected end"}`))
			return
		}
	}
	w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
}

func (f *fakeBotServer) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func newTestTelegram(t *testing.T, proc domain.MessageProcessor, cfg TelegramConfig) (*Telegram, *fakeBotServer) {
	t.Helper()
	fake := &fakeBotServer{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	bot := &tgbotapi.BotAPI{Token: "TOKEN", Client: srv.Client(), Buffer: 100}
	bot.SetAPIEndpoint(srv.URL + "/bot%s/%s")
	bot.Self = tgbotapi.User{ID: 1, UserName: "marketbot_test"}

	cfg.Bot = bot
	cfg.Processor = proc
	cfg.Logger = testLogger()
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	return NewTelegram(cfg), fake
}

func update(msg *tgbotapi.Message) tgbotapi.Update {
	if msg.From == nil {
		msg.From = &tgbotapi.User{ID: 7, UserName: "seller"}
	}
	if msg.Chat == nil {
		msg.Chat = &tgbotapi.Chat{ID: 42, Type: "private"}
	}
	return tgbotapi.Update{UpdateID: 1, Message: msg}
}

// --- Mapping ---

func TestTelegram_TextTurnIsAnswered(t *testing.T) {
	proc := &fakeProcessor{}
	tg, fake := newTestTelegram(t, proc, TelegramConfig{})

	tg.handleUpdate(context.Background(), update(&tgbotapi.Message{Text: " 出售 菠菜 100斤 "}))

	reqs := proc.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one request, got %d", len(reqs))
	}
	want := domain.Request{SessionID: "tg_42", MerchantID: "tg_7", Message: "出售 菠菜 100斤", MessageType: domain.TypeText}
	if reqs[0].SessionID != want.SessionID || reqs[0].MerchantID != want.MerchantID || reqs[0].Message != want.Message || reqs[0].MessageType != want.MessageType {
		t.Fatalf("expected %+v, got %+v", want, reqs[0])
	}

	sent := fake.messages()
	if len(sent) != 1 || sent[0].chatID != "42" || sent[0].text != "reply: 出售 菠菜 100斤" || sent[0].parseMode != "Markdown" {
		t.Fatalf("unexpected sent messages %+v", sent)
	}
}

func TestRequestFromMessage_Media(t *testing.T) {
	from := &tgbotapi.User{ID: 7}
	chat := &tgbotapi.Chat{ID: 42}
	cases := []struct {
		name string
		msg  *tgbotapi.Message
		typ  string
		text string
		att  domain.Attachment
	}{
		{
			name: "voice",
			msg:  &tgbotapi.Message{Voice: &tgbotapi.Voice{FileID: "v1", Duration: 5}},
			typ:  domain.TypeVoice, text: voicePlaceholder,
			att: domain.Attachment{FileID: "v1", Duration: 5},
		},
		{
			name: "audio",
			msg:  &tgbotapi.Message{Audio: &tgbotapi.Audio{FileID: "a1", Duration: 9, FileName: "x.mp3"}},
			typ:  domain.TypeAudio, text: voicePlaceholder,
			att: domain.Attachment{FileID: "a1", Duration: 9, FileName: "x.mp3"},
		},
		{
			name: "photo uses largest size",
			msg: &tgbotapi.Message{Photo: []tgbotapi.PhotoSize{
				{FileID: "small", Width: 90, Height: 60},
				{FileID: "large", Width: 1280, Height: 960},
			}},
			typ: domain.TypePhoto, text: photoPlaceholder,
			att: domain.Attachment{FileID: "large", Width: 1280, Height: 960},
		},
		{
			name: "photo with caption",
			msg:  &tgbotapi.Message{Caption: "钢材样品", Photo: []tgbotapi.PhotoSize{{FileID: "p"}}},
			typ:  domain.TypePhoto, text: "钢材样品",
			att: domain.Attachment{FileID: "p"},
		},
		{
			name: "document",
			msg:  &tgbotapi.Message{Document: &tgbotapi.Document{FileID: "d1", FileName: "报价单.pdf"}},
			typ:  domain.TypeDocument, text: "[Document: 报价单.pdf]",
			att: domain.Attachment{FileID: "d1", FileName: "报价单.pdf"},
		},
		{
			name: "sticker",
			msg:  &tgbotapi.Message{Sticker: &tgbotapi.Sticker{FileID: "s1"}},
			typ:  "sticker", text: "",
			att: domain.Attachment{FileID: "s1"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.msg.From, tc.msg.Chat = from, chat
			req, ok := requestFromMessage(tc.msg)
			if !ok {
				t.Fatal("expected a request")
			}
			if req.MessageType != tc.typ || req.Message != tc.text {
				t.Fatalf("expected %s %q, got %s %q", tc.typ, tc.text, req.MessageType, req.Message)
			}
			if req.Attachment == nil || *req.Attachment != tc.att {
				t.Fatalf("expected attachment %+v, got %+v", tc.att, req.Attachment)
			}
		})
	}
}

func TestRequestFromMessage_EmptyTextIgnored(t *testing.T) {
	_, ok := requestFromMessage(&tgbotapi.Message{Text: "   ", From: &tgbotapi.User{ID: 1}, Chat: &tgbotapi.Chat{ID: 2}})
	if ok {
		t.Fatal("blank text should be ignored")
	}
}

// --- Access ---

func TestTelegram_UnauthorizedUser(t *testing.T) {
	proc := &fakeProcessor{}
	tg, fake := newTestTelegram(t, proc, TelegramConfig{AllowFrom: []string{"99", " 100 "}})

	tg.handleUpdate(context.Background(), update(&tgbotapi.Message{Text: "hi"}))

	if len(proc.requests()) != 0 {
		t.Fatal("processor must not be called for unauthorized users")
	}
	sent := fake.messages()
	if len(sent) != 1 || !strings.Contains(sent[0].text, "未授权") {
		t.Fatalf("expected unauthorized reply, got %+v", sent)
	}

	tg.handleUpdate(context.Background(), update(&tgbotapi.Message{Text: "hi", From: &tgbotapi.User{ID: 100}}))
	if len(proc.requests()) != 1 {
		t.Fatal("allowed user should reach the processor")
	}
}

func TestTelegram_ThrottledChat(t *testing.T) {
	proc := &fakeProcessor{}
	tg, fake := newTestTelegram(t, proc, TelegramConfig{Limiter: NewLimiter(1, 1)})

	tg.handleUpdate(context.Background(), update(&tgbotapi.Message{Text: "one"}))
	tg.handleUpdate(context.Background(), update(&tgbotapi.Message{Text: "two"}))

	if len(proc.requests()) != 1 {
		t.Fatalf("expected one processed turn, got %d", len(proc.requests()))
	}
	sent := fake.messages()
	if len(sent) != 2 || !strings.Contains(sent[1].text, "太频繁") {
		t.Fatalf("expected throttle reply, got %+v", sent)
	}
}

func TestTelegram_HelpCommand(t *testing.T) {
	proc := &fakeProcessor{}
	tg, fake := newTestTelegram(t, proc, TelegramConfig{})

	tg.handleUpdate(context.Background(), update(&tgbotapi.Message{
		Text:     "/help",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}},
	}))

	if len(proc.requests()) != 0 {
		t.Fatal("commands are not dialogue turns")
	}
	if sent := fake.messages(); len(sent) != 1 || sent[0].text != telegramHelp {
		t.Fatalf("expected help text, got %+v", sent)
	}
}

// --- Sending ---

func TestTelegram_ParseErrorFallsBackToPlainText(t *testing.T) {
	tg, fake := newTestTelegram(t, &fakeProcessor{}, TelegramConfig{})
	fake.rejectParse = true

	tg.sendMessage(context.Background(), 42, "**bold")

	sent := fake.messages()
	if len(sent) != 2 {
		t.Fatalf("expected two attempts, got %+v", sent)
	}
	if sent[0].parseMode != "Markdown" || sent[1].parseMode != "" || sent[1].text != "**bold" {
		t.Fatalf("unexpected attempts %+v", sent)
	}
}

func TestSplitMessage(t *testing.T) {
	long := strings.Repeat("供应菠菜", 500) // 6000 bytes, no newlines
	chunks := splitMessage(long, 1000)
	if strings.Join(chunks, "") != long {
		t.Fatal("chunks must reassemble to the original")
	}
	for i, c := range chunks {
		if len(c) > 1000 || !utf8.ValidString(c) {
			t.Fatalf("chunk %d invalid: %d bytes", i, len(c))
		}
	}

	withBreak := strings.Repeat("a", 700) + "\n" + strings.Repeat("b", 700)
	chunks = splitMessage(withBreak, 1000)
	if len(chunks) != 2 || chunks[0] != strings.Repeat("a", 700) {
		t.Fatalf("expected a cut at the newline, got %d chunks", len(chunks))
	}

	if got := splitMessage("", 10); len(got) != 0 {
		t.Fatalf("expected no chunks, got %v", got)
	}
	if got := splitMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("unexpected %v", got)
	}
}
