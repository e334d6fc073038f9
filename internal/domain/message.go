package domain

import "time"

// Intent is the classified purpose of an inbound message.
type Intent string

const (
	IntentPublishSupply  Intent = "PUBLISH_SUPPLY"
	IntentPublishDemand  Intent = "PUBLISH_DEMAND"
	IntentSearchListings Intent = "SEARCH_LISTINGS"
	IntentViewMatches    Intent = "VIEW_MATCHES"
	IntentGetStats       Intent = "GET_STATS"
	IntentGeneralChat    Intent = "GENERAL_CHAT"

	// Synthetic intents recorded for non-text turns.
	IntentVoice       Intent = "voice_processing"
	IntentImage       Intent = "image_processing"
	IntentDocument    Intent = "document_processing"
	IntentUnsupported Intent = "unsupported_media"
)

// MessageType values accepted on inbound requests.
const (
	TypeText     = "text"
	TypeVoice    = "voice"
	TypeAudio    = "audio"
	TypePhoto    = "photo"
	TypeDocument = "document"
)

// Attachment references a file held by the messaging platform.
type Attachment struct {
	FileID   string `json:"fileId"`
	Duration int    `json:"duration,omitempty"` // seconds
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// Request is one inbound user turn.
type Request struct {
	SessionID   string      `json:"sessionId"`
	MerchantID  string      `json:"merchantId"`
	Message     string      `json:"message"`
	MessageType string      `json:"messageType,omitempty"` // empty means text
	Attachment  *Attachment `json:"attachment,omitempty"`
}

// IsText reports whether the request is a plain text turn.
func (r Request) IsText() bool {
	return r.MessageType == "" || r.MessageType == TypeText
}

// Result is the reply produced for a Request.
type Result struct {
	Success    bool          `json:"success"`
	SessionID  string        `json:"sessionId"`
	MessageID  string        `json:"messageId,omitempty"`
	Intent     Intent        `json:"intent"`
	AIResponse string        `json:"aiResponse"`
	Action     *ActionResult `json:"actionResult,omitempty"`
	Error      string        `json:"error,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`

	// Set for non-text turns.
	MultimodalProcessed bool        `json:"multimodalProcessed,omitempty"`
	OriginalType        string      `json:"originalType,omitempty"`
	Transcript          *Transcript `json:"transcript,omitempty"`
	Analysis            *Analysis   `json:"analysis,omitempty"`
}
