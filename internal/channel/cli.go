package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"marketbot/internal/domain"
)

// CLI is an interactive terminal session against the processor. Lines are
// text turns; "/voice <fileId>" and "/photo <fileId> [caption]" send media
// turns referencing platform file ids.
type CLI struct {
	processor  domain.MessageProcessor
	sessionID  string
	merchantID string
	logger     *slog.Logger
	in         io.Reader
	out        io.Writer
}

type CLIConfig struct {
	Processor  domain.MessageProcessor
	SessionID  string
	MerchantID string
	Logger     *slog.Logger
	In         io.Reader
	Out        io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.MerchantID == "" {
		cfg.MerchantID = "cli"
	}
	if cfg.SessionID == "" {
		cfg.SessionID = "cli_" + cfg.MerchantID
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{
		processor:  cfg.Processor,
		sessionID:  cfg.SessionID,
		merchantID: cfg.MerchantID,
		logger:     cfg.Logger,
		in:         cfg.In,
		out:        cfg.Out,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the REPL until EOF, /quit or ctx cancellation.
func (c *CLI) Start(ctx context.Context) error {
	fmt.Fprintf(c.out, "marketbot CLI (session %s). Type /quit to exit.\n", c.sessionID)
	fmt.Fprint(c.out, "You> ")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			return scanner.Err() // nil on EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(c.out, "You> ")
			continue
		}
		if line == "/quit" || line == "/exit" || line == "/q" {
			c.logger.Info("user requested quit")
			return nil
		}

		res := c.processor.Process(ctx, c.request(line))
		fmt.Fprintf(c.out, "--- %s ---\n", res.Intent)
		fmt.Fprintln(c.out, res.AIResponse)
		if res.Error != "" {
			fmt.Fprintln(c.out, "error:", res.Error)
		}
		fmt.Fprintln(c.out, "----------------")
		fmt.Fprint(c.out, "You> ")
	}
}

func (c *CLI) request(line string) domain.Request {
	req := domain.Request{SessionID: c.sessionID, MerchantID: c.merchantID, Message: line}

	cmd, rest, _ := strings.Cut(line, " ")
	fileID, caption, _ := strings.Cut(strings.TrimSpace(rest), " ")
	switch cmd {
	case "/voice":
		req.MessageType = domain.TypeVoice
		req.Message = voicePlaceholder
	case "/photo":
		req.MessageType = domain.TypePhoto
		req.Message = orDefault(strings.TrimSpace(caption), photoPlaceholder)
	default:
		return req
	}
	req.Attachment = &domain.Attachment{FileID: fileID}
	return req
}

// Stop is a no-op; the REPL ends when Start returns.
func (c *CLI) Stop() error { return nil }
