package domain

import "context"

// TextGenerator produces the natural-language reply for a text turn.
// Implementations never fail: when no remote backend answers they return
// a locally generated reply.
type TextGenerator interface {
	Generate(ctx context.Context, userMessage, conversationContext string, intent Intent) string
}

// Transcriber converts a voice or audio attachment into text. The boolean is
// false only when the attachment carries no file reference.
type Transcriber interface {
	Transcribe(ctx context.Context, att Attachment) (Transcript, bool)
}

// ImageAnalyzer describes the content of a photo attachment.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, att Attachment) (Analysis, bool)
}

// Transcript is the text recovered from a voice message.
type Transcript struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Source   string `json:"source"` // stage that produced the text, "demo" for the fallback
}

// Analysis is the description recovered from a photo.
type Analysis struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	Source      string `json:"source"`
}

// Outcome classifies the result of one stage in a fallback chain.
type Outcome int

const (
	Succeeded Outcome = iota
	Declined          // stage not configured or not applicable; try the next one
	Failed            // stage was attempted and errored
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Declined:
		return "declined"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// StageResult is returned by every stage of a fallback chain.
type StageResult struct {
	Outcome Outcome
	Text    string
	Err     error
}

func Success(text string) StageResult { return StageResult{Outcome: Succeeded, Text: text} }

func Decline(reason error) StageResult { return StageResult{Outcome: Declined, Err: reason} }

func Failure(err error) StageResult { return StageResult{Outcome: Failed, Err: err} }
