package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// qwen targets the DashScope text-generation API.
type qwen struct{}

func newQwen() *qwen { return &qwen{} }

func (q *qwen) ID() ID               { return Qwen }
func (q *qwen) EndpointPath() string { return "/services/aigc/text-generation/generation" }

type qwenMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type qwenRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []qwenMessage `json:"messages"`
	} `json:"input"`
	Parameters struct {
		Temperature float32 `json:"temperature"`
	} `json:"parameters"`
}

type qwenResponse struct {
	Output struct {
		Text    string `json:"text"`
		Choices []struct {
			Message qwenMessage `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (q *qwen) BuildRequest(model string, p Prompt) ([]byte, error) {
	var body qwenRequest
	body.Model = model
	body.Input.Messages = []qwenMessage{
		{Role: "system", Content: p.System},
		{Role: "user", Content: p.User},
	}
	body.Parameters.Temperature = p.Temperature

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return data, nil
}

func (q *qwen) Authorize(req *http.Request, apiKey string) {
	bearer(req, apiKey)
}

func (q *qwen) ParseReply(body []byte) (string, error) {
	var resp qwenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if resp.Output.Text != "" {
		return resp.Output.Text, nil
	}
	for _, ch := range resp.Output.Choices {
		if ch.Message.Content != "" {
			return ch.Message.Content, nil
		}
	}
	if resp.Code != "" {
		return "", fmt.Errorf("dashscope %s: %s", resp.Code, resp.Message)
	}
	return "", errors.New("no output text")
}
