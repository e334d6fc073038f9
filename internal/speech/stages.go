package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"marketbot/internal/config"
	"marketbot/internal/domain"
	"marketbot/internal/media"
)

const (
	stageTimeout = 30 * time.Second

	DefaultBaiduASRURL = "https://vop.baidu.com/server_api"

	baiduMandarinPID = 1536
	baiduEnglishPID  = 1737
)

// DefaultStages returns the stages in priority order: Zhipu, Baidu, Aliyun.
func DefaultStages(r *config.Resolver, client *http.Client, oauth *media.BaiduOAuth) []Stage {
	return []Stage{
		&zhipuStage{resolver: r},
		&BaiduStage{
			Resolver: r,
			OAuth:    oauth,
			Client:   client,
			Endpoint: r.Resolve("baidu.speech.url", DefaultBaiduASRURL),
		},
		&aliyunStage{resolver: r},
	}
}

// zhipuStage reserves the first slot for Zhipu speech recognition. Zhipu
// has no public ASR endpoint yet, so after the credential check and the
// download it always declines.
type zhipuStage struct{ resolver *config.Resolver }

func (z *zhipuStage) Name() string { return "zhipu" }

func (z *zhipuStage) Transcribe(ctx context.Context, audio *media.Payload) domain.StageResult {
	if z.resolver.FirstNonBlank("zhipu.api.key") == "" {
		return domain.Decline(domain.ErrMissingCredential)
	}
	if _, err := audio.Bytes(ctx); err != nil {
		return domain.Failure(fmt.Errorf("zhipu: %w", err))
	}
	return domain.Decline(fmt.Errorf("zhipu speech: %w", domain.ErrNotImplemented))
}

// aliyunStage needs the Aliyun SDK signature scheme, which is not wired.
type aliyunStage struct{ resolver *config.Resolver }

func (a *aliyunStage) Name() string { return "aliyun" }

func (a *aliyunStage) Transcribe(context.Context, *media.Payload) domain.StageResult {
	id := a.resolver.FirstNonBlank("aliyun.speech.access.key.id")
	secret := a.resolver.FirstNonBlank("aliyun.speech.access.key.secret")
	if id == "" || secret == "" {
		return domain.Decline(domain.ErrMissingCredential)
	}
	return domain.Decline(fmt.Errorf("aliyun speech: %w", domain.ErrNotImplemented))
}

// BaiduStage calls Baidu short-speech recognition. It first asks for
// Mandarin; when that is empty, or contains Latin words, it asks again for
// English and joins the two results.
type BaiduStage struct {
	Resolver *config.Resolver
	OAuth    *media.BaiduOAuth
	Client   *http.Client
	Endpoint string
}

func (b *BaiduStage) Name() string { return "baidu" }

type baiduASRRequest struct {
	Format  string `json:"format"`
	Rate    int    `json:"rate"`
	Channel int    `json:"channel"`
	CUID    string `json:"cuid"`
	Token   string `json:"token"`
	Speech  string `json:"speech"`
	Len     int    `json:"len"`
	DevPID  int    `json:"dev_pid"`
}

type baiduASRResponse struct {
	ErrNo  int      `json:"err_no"`
	ErrMsg string   `json:"err_msg"`
	Result []string `json:"result"`
}

var latinWord = regexp.MustCompile(`\b[a-zA-Z]+\b`)

func (b *BaiduStage) Transcribe(ctx context.Context, audio *media.Payload) domain.StageResult {
	apiKey := b.Resolver.FirstNonBlank("baidu.speech.api.key")
	secret := b.Resolver.FirstNonBlank("baidu.speech.secret.key")
	if apiKey == "" || secret == "" {
		return domain.Decline(domain.ErrMissingCredential)
	}

	token, err := b.OAuth.Token(ctx, apiKey, secret)
	if err != nil {
		return domain.Failure(err)
	}
	data, err := audio.Bytes(ctx)
	if err != nil {
		return domain.Failure(fmt.Errorf("baidu: %w", err))
	}

	zh, zhErr := b.recognize(ctx, token, data, baiduMandarinPID)
	if strings.TrimSpace(zh) == "" {
		en, err := b.recognize(ctx, token, data, baiduEnglishPID)
		if err == nil && en != "" {
			return domain.Success(en)
		}
		return domain.Failure(errors.Join(zhErr, err, errors.New("baidu: no recognition result")))
	}

	if latinWord.MatchString(zh) {
		if en, err := b.recognize(ctx, token, data, baiduEnglishPID); err == nil && en != "" && en != zh {
			return domain.Success(zh + " " + en)
		}
	}
	return domain.Success(zh)
}

func (b *BaiduStage) recognize(ctx context.Context, token string, audio []byte, pid int) (string, error) {
	body, err := json.Marshal(baiduASRRequest{
		Format:  "wav",
		Rate:    16000,
		Channel: 1,
		CUID:    "marketbot",
		Token:   token,
		Speech:  base64.StdEncoding.EncodeToString(audio),
		Len:     len(audio),
		DevPID:  pid,
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, stageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: baidu asr: %w", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: baidu asr: %w", domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: baidu asr: HTTP %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}

	var out baiduASRResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: baidu asr: %w", domain.ErrUnparsableResponse, err)
	}
	if out.ErrNo != 0 {
		return "", fmt.Errorf("%w: baidu asr %d: %s", domain.ErrProviderUnavailable, out.ErrNo, out.ErrMsg)
	}
	if len(out.Result) == 0 {
		return "", fmt.Errorf("%w: baidu asr: empty result", domain.ErrUnparsableResponse)
	}
	return out.Result[0], nil
}
