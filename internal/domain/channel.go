package domain

import "context"

// Channel is a user-facing transport (Telegram, HTTP API).
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// MessageProcessor handles one inbound turn end to end.
type MessageProcessor interface {
	Process(ctx context.Context, req Request) Result
}

// FileSource resolves platform file references to downloadable content.
type FileSource interface {
	// FileURL returns a URL the file can be downloaded from.
	FileURL(ctx context.Context, fileID string) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}
