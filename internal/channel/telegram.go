package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"marketbot/internal/domain"
	"marketbot/internal/metrics"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramConcurrency    = 3
	defaultTurnTimeout     = 90 * time.Second

	photoPlaceholder = "[Photo Message]"
	voicePlaceholder = "[Voice Message]"
)

// Telegram implements domain.Channel for a Telegram bot. Every update is
// turned into a domain.Request and answered with the processor's reply.
type Telegram struct {
	token       string
	apiEndpoint string
	client      *http.Client
	allowFrom   []int64 // empty = allow all
	parseMode   string
	concurrency int
	turnTimeout time.Duration

	bot       *tgbotapi.BotAPI
	processor domain.MessageProcessor
	limiter   *Limiter
	logger    *slog.Logger

	inflight sync.WaitGroup
}

type TelegramConfig struct {
	Token       string
	AllowFrom   []string // user IDs as strings
	ParseMode   string
	APIEndpoint string       // defaults to tgbotapi.APIEndpoint
	Client      *http.Client // defaults to http.DefaultClient
	Bot         *tgbotapi.BotAPI
	Processor   domain.MessageProcessor
	Limiter     *Limiter
	Concurrency int
	TurnTimeout time.Duration
	Logger      *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = telegramConcurrency
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:       cfg.Token,
		apiEndpoint: cfg.APIEndpoint,
		client:      cfg.Client,
		allowFrom:   allowed,
		parseMode:   cfg.ParseMode,
		concurrency: cfg.Concurrency,
		turnTimeout: cfg.TurnTimeout,
		bot:         cfg.Bot,
		processor:   cfg.Processor,
		limiter:     cfg.Limiter,
		logger:      cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is cancelled.
// Updates are handled concurrently, at most Concurrency at a time.
func (t *Telegram) Start(ctx context.Context) error {
	if t.bot == nil {
		bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.apiEndpoint, t.client)
		if err != nil {
			return fmt.Errorf("telegram bot init: %w", err)
		}
		t.bot = bot
	}
	t.logger.Info("telegram bot connected", "username", t.bot.Self.UserName, "id", t.bot.Self.ID)
	metrics.ActiveChannels.Inc()
	defer metrics.ActiveChannels.Dec()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)
	sem := make(chan struct{}, t.concurrency)

	t.logger.Info("telegram polling started", "concurrency", t.concurrency)
	defer t.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			sem <- struct{}{}
			t.inflight.Add(1)
			go func(u tgbotapi.Update) {
				defer func() { <-sem; t.inflight.Done() }()
				t.handleUpdate(ctx, u)
			}(update)
		}
	}
}

// Stop is a no-op: polling ends when Start's context is cancelled, and
// StopReceivingUpdates panics when called twice.
func (t *Telegram) Stop() error { return nil }

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	userID, chatID := msg.From.ID, msg.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user", "user_id", userID, "username", msg.From.UserName)
		t.sendMessage(ctx, chatID, "⛔ 未授权用户，您的ID不在允许列表中。")
		return
	}
	if msg.IsCommand() {
		t.handleCommand(ctx, chatID, msg)
		return
	}

	req, ok := requestFromMessage(msg)
	if !ok {
		return
	}
	if !t.limiter.Allow(strconv.FormatInt(chatID, 10)) {
		t.logger.Warn("telegram chat throttled", "chat_id", chatID)
		t.sendMessage(ctx, chatID, "⏳ 消息太频繁了，请稍后再试。")
		return
	}

	t.logger.Info("telegram message received",
		"user_id", userID,
		"chat_id", chatID,
		"type", req.MessageType,
		"text_len", len(req.Message),
	)
	_, _ = t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	turnCtx, cancel := context.WithTimeout(ctx, t.turnTimeout)
	defer cancel()
	res := t.processor.Process(turnCtx, req)
	t.sendMessage(ctx, chatID, res.AIResponse)
}

// requestFromMessage maps a Telegram message to a dialogue request. Chats
// are sessions and senders are merchants. Media sent without a caption
// gets a placeholder text.
func requestFromMessage(msg *tgbotapi.Message) (domain.Request, bool) {
	req := domain.Request{
		SessionID:  "tg_" + strconv.FormatInt(msg.Chat.ID, 10),
		MerchantID: "tg_" + strconv.FormatInt(msg.From.ID, 10),
		Message:    strings.TrimSpace(msg.Caption),
	}

	switch {
	case msg.Voice != nil:
		req.MessageType = domain.TypeVoice
		req.Attachment = &domain.Attachment{FileID: msg.Voice.FileID, Duration: msg.Voice.Duration}
		req.Message = orDefault(req.Message, voicePlaceholder)
	case msg.Audio != nil:
		req.MessageType = domain.TypeAudio
		req.Attachment = &domain.Attachment{FileID: msg.Audio.FileID, Duration: msg.Audio.Duration, FileName: msg.Audio.FileName}
		req.Message = orDefault(req.Message, voicePlaceholder)
	case len(msg.Photo) > 0:
		// sizes are ascending; the last is the original
		p := msg.Photo[len(msg.Photo)-1]
		req.MessageType = domain.TypePhoto
		req.Attachment = &domain.Attachment{FileID: p.FileID, Width: p.Width, Height: p.Height}
		req.Message = orDefault(req.Message, photoPlaceholder)
	case msg.Document != nil:
		req.MessageType = domain.TypeDocument
		req.Attachment = &domain.Attachment{FileID: msg.Document.FileID, FileName: msg.Document.FileName}
		req.Message = orDefault(req.Message, "[Document: "+msg.Document.FileName+"]")
	case msg.Video != nil:
		req.MessageType = "video"
		req.Attachment = &domain.Attachment{FileID: msg.Video.FileID, Duration: msg.Video.Duration, Width: msg.Video.Width, Height: msg.Video.Height}
	case msg.Sticker != nil:
		req.MessageType = "sticker"
		req.Attachment = &domain.Attachment{FileID: msg.Sticker.FileID}
	default:
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			return domain.Request{}, false
		}
		req.MessageType = domain.TypeText
		req.Message = text
	}
	return req, true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func (t *Telegram) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		t.sendMessage(ctx, chatID, telegramHelp)
	case "status":
		t.sendMessage(ctx, chatID, fmt.Sprintf("🟢 marketbot 运行中\n\nBot: @%s\n您的ID: %d\n会话: tg_%d", t.bot.Self.UserName, msg.From.ID, chatID))
	default:
		t.sendMessage(ctx, chatID, "未知命令，输入 /help 查看可用命令。")
	}
}

const telegramHelp = "👋 您好！我是智能供需撮合助手。\n\n" +
	"您可以直接发送：\n" +
	"📦 供应信息，例如「出售 菠菜 100斤 3元」\n" +
	"🛒 采购需求，例如「求购 白菜 50公斤」\n" +
	"🔍 搜索、匹配推荐、数据统计\n" +
	"🎙️ 语音或 📷 图片也可以\n\n" +
	"命令：\n/status 查看状态\n/help 显示帮助"

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func (t *Telegram) sendMessage(ctx context.Context, chatID int64, text string) {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		t.sendChunk(ctx, chatID, chunk)
	}
}

// splitMessage cuts text into chunks of at most maxLen bytes, preferring a
// newline in the second half of the window and never splitting a rune.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for len(text) > maxLen {
		cutAt := strings.LastIndex(text[:maxLen], "\n")
		if cutAt < maxLen/2 {
			cutAt = maxLen
			for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
				cutAt--
			}
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// sendChunk sends one chunk. It tries the configured parse mode first,
// falls back to plain text on a parse error, and backs off on 429s and
// transient errors.
func (t *Telegram) sendChunk(ctx context.Context, chatID int64, text string) {
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && t.parseMode != "" {
			msg.ParseMode = t.parseMode
		}

		_, err := t.bot.Send(msg)
		if err == nil {
			return
		}
		errStr := err.Error()

		var backoff time.Duration
		switch {
		case strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429"):
			backoff = time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off", "retry_after", backoff, "attempt", attempt+1)
		case attempt == 0 && msg.ParseMode != "" && strings.Contains(errStr, "can't parse entities"):
			t.logger.Warn("telegram markdown parse error, retrying as plain text", "err", err, "parseMode", t.parseMode)
			continue
		case attempt < telegramMaxSendRetries:
			backoff = time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
		default:
			t.logger.Error("telegram send failed after retries", "err", err, "attempts", attempt+1)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}
