// Package media resolves and downloads attachments that arrive through a
// messaging platform, and holds the helpers shared by the speech and vision
// pipelines.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"marketbot/internal/domain"
)

const (
	defaultFileTimeout = 30 * time.Second
	maxDownloadBytes   = 20 << 20 // Telegram bots cannot fetch files above 20MB anyway
)

// TelegramFiles implements domain.FileSource on top of the Bot API getFile
// call. The bot is never asked for its own identity, so constructing one
// performs no network I/O.
type TelegramFiles struct {
	bot          *tgbotapi.BotAPI
	fileEndpoint string
	client       *http.Client
	logger       *slog.Logger
}

type TelegramFilesConfig struct {
	Token        string
	APIEndpoint  string // defaults to tgbotapi.APIEndpoint
	FileEndpoint string // defaults to tgbotapi.FileEndpoint
	Client       *http.Client
	Logger       *slog.Logger
}

func NewTelegramFiles(cfg TelegramFilesConfig) *TelegramFiles {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: defaultFileTimeout}
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.FileEndpoint == "" {
		cfg.FileEndpoint = tgbotapi.FileEndpoint
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	bot := &tgbotapi.BotAPI{
		Token:  cfg.Token,
		Client: cfg.Client,
		Buffer: 100,
	}
	bot.SetAPIEndpoint(cfg.APIEndpoint)

	return &TelegramFiles{
		bot:          bot,
		fileEndpoint: cfg.FileEndpoint,
		client:       cfg.Client,
		logger:       cfg.Logger,
	}
}

// FileURL asks the Bot API for the file's relative path and turns it into
// a token-bound download URL.
func (t *TelegramFiles) FileURL(ctx context.Context, fileID string) (string, error) {
	if t.bot.Token == "" {
		return "", fmt.Errorf("telegram bot token: %w", domain.ErrMissingCredential)
	}
	if fileID == "" {
		return "", errors.New("empty file id")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	file, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("get file %s: %w", fileID, err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("get file %s: no file_path in response", fileID)
	}

	t.logger.Debug("resolved telegram file", "file_id", fileID, "path", file.FilePath)
	return fmt.Sprintf(t.fileEndpoint, t.bot.Token, file.FilePath), nil
}

// Download fetches url and returns its body.
func (t *TelegramFiles) Download(ctx context.Context, url string) ([]byte, error) {
	return Fetch(ctx, t.client, url)
}

// Fetch performs a bounded GET and fails on any non-200 status.
func Fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultFileTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}
