package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// chatCompletions speaks the OpenAI chat-completions dialect, which Zhipu
// and Xunfei Spark also accept.
type chatCompletions struct {
	id   ID
	path string
}

func newChatCompletions(id ID, path string) *chatCompletions {
	return &chatCompletions{id: id, path: path}
}

func (c *chatCompletions) ID() ID               { return c.id }
func (c *chatCompletions) EndpointPath() string { return c.path }

func (c *chatCompletions) BuildRequest(model string, p Prompt) ([]byte, error) {
	body := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
		Temperature: p.Temperature,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return data, nil
}

func (c *chatCompletions) Authorize(req *http.Request, apiKey string) {
	bearer(req, apiKey)
}

func (c *chatCompletions) ParseReply(body []byte) (string, error) {
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	return firstChoice(resp)
}

func firstChoice(resp openai.ChatCompletionResponse) (string, error) {
	for _, ch := range resp.Choices {
		if ch.Message.Content != "" {
			return ch.Message.Content, nil
		}
	}
	return "", errors.New("no choice with content")
}
