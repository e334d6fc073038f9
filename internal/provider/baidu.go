package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// baidu targets the ERNIE (Wenxin) chat endpoint, which authenticates with an
// access_token query parameter and takes the system prompt as a top-level field.
type baidu struct{}

func newBaidu() *baidu { return &baidu{} }

func (b *baidu) ID() ID               { return Baidu }
func (b *baidu) EndpointPath() string { return "/wenxinworkshop/chat/completions_pro" }

type baiduMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type baiduRequest struct {
	Messages    []baiduMessage `json:"messages"`
	Temperature float32        `json:"temperature"`
	System      string         `json:"system,omitempty"`
}

type baiduResponse struct {
	Result    string `json:"result"`
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// BuildRequest ignores model: the ERNIE variant is selected by the endpoint path.
func (b *baidu) BuildRequest(_ string, p Prompt) ([]byte, error) {
	data, err := json.Marshal(baiduRequest{
		Messages:    []baiduMessage{{Role: "user", Content: p.User}},
		Temperature: p.Temperature,
		System:      p.System,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return data, nil
}

func (b *baidu) Authorize(req *http.Request, apiKey string) {
	q := req.URL.Query()
	q.Set("access_token", apiKey)
	req.URL.RawQuery = q.Encode()
}

func (b *baidu) ParseReply(body []byte) (string, error) {
	var resp baiduResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if resp.ErrorCode != 0 {
		return "", fmt.Errorf("ernie error %d: %s", resp.ErrorCode, resp.ErrorMsg)
	}
	if resp.Result == "" {
		return "", errors.New("empty result")
	}
	return resp.Result, nil
}
