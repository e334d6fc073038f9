package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	claudeAPIVersion = "2023-06-01"
	claudeMaxTokens  = 1024
)

type claude struct{}

func newClaude() *claude { return &claude{} }

func (c *claude) ID() ID               { return Claude }
func (c *claude) EndpointPath() string { return "/v1/messages" }

type claudeRequest struct {
	Model       string      `json:"model"`
	MaxTokens   int         `json:"max_tokens"`
	System      string      `json:"system,omitempty"`
	Messages    []claudeMsg `json:"messages"`
	Temperature float32     `json:"temperature"`
}

type claudeMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *claude) BuildRequest(model string, p Prompt) ([]byte, error) {
	data, err := json.Marshal(claudeRequest{
		Model:       model,
		MaxTokens:   claudeMaxTokens,
		System:      p.System,
		Messages:    []claudeMsg{{Role: "user", Content: p.User}},
		Temperature: p.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return data, nil
}

func (c *claude) Authorize(req *http.Request, apiKey string) {
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", claudeAPIVersion)
}

func (c *claude) ParseReply(body []byte) (string, error) {
	var resp claudeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", errors.New("no text content block")
}
