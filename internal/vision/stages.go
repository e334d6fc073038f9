package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"marketbot/internal/config"
	"marketbot/internal/domain"
	"marketbot/internal/media"
)

const (
	multimodalTimeout = 60 * time.Second
	restTimeout       = 30 * time.Second
	maxLabels         = 5

	DefaultZhipuBaseURL   = "https://open.bigmodel.cn/api/paas/v4"
	DefaultZhipuModel     = "glm-4v-plus"
	DefaultBaiduVisionURL = "https://aip.baidubce.com/rest/2.0/image-classify/v2/advanced_general"
	DefaultGoogleURL      = "https://vision.googleapis.com/v1/images:annotate"

	zhipuInstruction = "请分析这张图片，识别其中的产品、材料或物品。重点识别工业材料、机械设备、建筑材料或商业产品。请用中文描述。"
)

// DefaultStages returns the stages in priority order: Zhipu GLM-4V, Baidu,
// Aliyun, Google.
func DefaultStages(r *config.Resolver, client *http.Client, oauth *media.BaiduOAuth) []Stage {
	return []Stage{
		&ZhipuStage{
			Resolver: r,
			Client:   client,
			BaseURL:  r.Resolve("image.recognition.zhipu.base.url", DefaultZhipuBaseURL),
			Model:    r.Resolve("image.recognition.zhipu.model", DefaultZhipuModel),
		},
		&BaiduStage{
			Resolver: r,
			OAuth:    oauth,
			Client:   client,
			Endpoint: r.Resolve("baidu.vision.url", DefaultBaiduVisionURL),
		},
		&aliyunStage{resolver: r},
		&GoogleStage{
			Resolver: r,
			Client:   client,
			Endpoint: r.Resolve("google.vision.url", DefaultGoogleURL),
		},
	}
}

// ZhipuStage sends the image inline to GLM-4V through Zhipu's
// OpenAI-compatible chat endpoint.
type ZhipuStage struct {
	Resolver *config.Resolver
	Client   *http.Client
	BaseURL  string
	Model    string
}

func (z *ZhipuStage) Name() string { return "zhipu" }

func (z *ZhipuStage) Analyze(ctx context.Context, image *media.Payload) domain.StageResult {
	apiKey := z.Resolver.FirstNonBlank("zhipu.api.key")
	if apiKey == "" {
		return domain.Decline(domain.ErrMissingCredential)
	}
	data, err := image.Bytes(ctx)
	if err != nil {
		return domain.Failure(fmt.Errorf("zhipu: %w", err))
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(z.BaseURL, "/")
	cfg.HTTPClient = z.Client
	client := openai.NewClientWithConfig(cfg)

	ctx, cancel := context.WithTimeout(ctx, multimodalTimeout)
	defer cancel()

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: z.Model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: zhipuInstruction},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data),
				}},
			},
		}},
		Temperature: 0.1,
	})
	if err != nil {
		return domain.Failure(fmt.Errorf("%w: zhipu vision: %w", domain.ErrProviderUnavailable, err))
	}
	for _, ch := range resp.Choices {
		if text := strings.TrimSpace(ch.Message.Content); text != "" {
			return domain.Success(text)
		}
	}
	return domain.Failure(fmt.Errorf("%w: zhipu vision: no content", domain.ErrUnparsableResponse))
}

// BaiduStage calls Baidu general object recognition.
type BaiduStage struct {
	Resolver *config.Resolver
	OAuth    *media.BaiduOAuth
	Client   *http.Client
	Endpoint string
}

func (b *BaiduStage) Name() string { return "baidu" }

type baiduVisionResponse struct {
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
	Result    []struct {
		Keyword string  `json:"keyword"`
		Root    string  `json:"root"`
		Score   float64 `json:"score"`
	} `json:"result"`
}

func (b *BaiduStage) Analyze(ctx context.Context, image *media.Payload) domain.StageResult {
	apiKey := b.Resolver.FirstNonBlank("baidu.vision.api.key")
	secret := b.Resolver.FirstNonBlank("baidu.vision.secret.key")
	if apiKey == "" || secret == "" {
		return domain.Decline(domain.ErrMissingCredential)
	}

	token, err := b.OAuth.Token(ctx, apiKey, secret)
	if err != nil {
		return domain.Failure(err)
	}
	data, err := image.Bytes(ctx)
	if err != nil {
		return domain.Failure(fmt.Errorf("baidu: %w", err))
	}

	form := url.Values{}
	form.Set("image", base64.StdEncoding.EncodeToString(data))
	form.Set("baike_num", "5")

	body, status, err := post(ctx, b.Client, b.Endpoint+"?access_token="+url.QueryEscape(token),
		"application/x-www-form-urlencoded", []byte(form.Encode()))
	if err != nil {
		return domain.Failure(fmt.Errorf("%w: baidu vision: %w", domain.ErrProviderUnavailable, err))
	}
	if status != http.StatusOK {
		return domain.Failure(fmt.Errorf("%w: baidu vision: HTTP %d", domain.ErrProviderUnavailable, status))
	}

	var out baiduVisionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return domain.Failure(fmt.Errorf("%w: baidu vision: %w", domain.ErrUnparsableResponse, err))
	}
	if out.ErrorCode != 0 {
		return domain.Failure(fmt.Errorf("%w: baidu vision %d: %s", domain.ErrProviderUnavailable, out.ErrorCode, out.ErrorMsg))
	}

	labels := make([]string, 0, maxLabels)
	for _, r := range out.Result {
		if r.Keyword != "" {
			labels = append(labels, r.Keyword)
		}
	}
	if len(labels) == 0 {
		return domain.Failure(fmt.Errorf("%w: baidu vision: no keywords", domain.ErrUnparsableResponse))
	}
	return domain.Success(bulletList("识别到的物体：", labels))
}

// aliyunStage needs the Aliyun vision SDK signature scheme, which is not wired.
type aliyunStage struct{ resolver *config.Resolver }

func (a *aliyunStage) Name() string { return "aliyun" }

func (a *aliyunStage) Analyze(context.Context, *media.Payload) domain.StageResult {
	id := a.resolver.FirstNonBlank("aliyun.vision.access.key.id")
	secret := a.resolver.FirstNonBlank("aliyun.vision.access.key.secret")
	if id == "" || secret == "" {
		return domain.Decline(domain.ErrMissingCredential)
	}
	return domain.Decline(fmt.Errorf("aliyun vision: %w", domain.ErrNotImplemented))
}

// GoogleStage calls Cloud Vision images:annotate with label and text
// detection.
type GoogleStage struct {
	Resolver *config.Resolver
	Client   *http.Client
	Endpoint string
}

func (g *GoogleStage) Name() string { return "google" }

type googleFeature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type googleImage struct {
	Content string `json:"content"`
}

type googleImageRequest struct {
	Image    googleImage     `json:"image"`
	Features []googleFeature `json:"features"`
}

type googleAnnotateRequest struct {
	Requests []googleImageRequest `json:"requests"`
}

type googleAnnotation struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

type googleAnnotateResponse struct {
	Responses []struct {
		LabelAnnotations []googleAnnotation `json:"labelAnnotations"`
		TextAnnotations  []googleAnnotation `json:"textAnnotations"`
		Error            *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

func (g *GoogleStage) Analyze(ctx context.Context, image *media.Payload) domain.StageResult {
	apiKey := g.Resolver.FirstNonBlank("google.vision.api.key")
	if apiKey == "" {
		return domain.Decline(domain.ErrMissingCredential)
	}
	data, err := image.Bytes(ctx)
	if err != nil {
		return domain.Failure(fmt.Errorf("google: %w", err))
	}

	payload, err := json.Marshal(googleAnnotateRequest{Requests: []googleImageRequest{{
		Image: googleImage{Content: base64.StdEncoding.EncodeToString(data)},
		Features: []googleFeature{
			{Type: "LABEL_DETECTION", MaxResults: 10},
			{Type: "TEXT_DETECTION", MaxResults: 5},
		},
	}}})
	if err != nil {
		return domain.Failure(fmt.Errorf("marshal: %w", err))
	}

	body, status, err := post(ctx, g.Client, g.Endpoint+"?key="+url.QueryEscape(apiKey), "application/json", payload)
	if err != nil {
		return domain.Failure(fmt.Errorf("%w: google vision: %w", domain.ErrProviderUnavailable, err))
	}
	if status != http.StatusOK {
		return domain.Failure(fmt.Errorf("%w: google vision: HTTP %d", domain.ErrProviderUnavailable, status))
	}

	var out googleAnnotateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return domain.Failure(fmt.Errorf("%w: google vision: %w", domain.ErrUnparsableResponse, err))
	}

	labels := make([]string, 0, maxLabels)
	for _, r := range out.Responses {
		if r.Error != nil {
			return domain.Failure(fmt.Errorf("%w: google vision %d: %s", domain.ErrProviderUnavailable, r.Error.Code, r.Error.Message))
		}
		for _, a := range append(r.LabelAnnotations, r.TextAnnotations...) {
			if a.Description != "" {
				labels = append(labels, a.Description)
			}
		}
	}
	if len(labels) == 0 {
		return domain.Failure(fmt.Errorf("%w: google vision: no annotations", domain.ErrUnparsableResponse))
	}
	return domain.Success(bulletList("识别到的内容：", labels))
}

// bulletList renders up to maxLabels labels under header.
func bulletList(header string, labels []string) string {
	if len(labels) > maxLabels {
		labels = labels[:maxLabels]
	}
	var sb strings.Builder
	sb.WriteString(header + "\n")
	for _, l := range labels {
		sb.WriteString("• " + l + "\n")
	}
	return sb.String()
}

func post(ctx context.Context, client *http.Client, endpoint, contentType string, body []byte) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, restTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return data, resp.StatusCode, nil
}
