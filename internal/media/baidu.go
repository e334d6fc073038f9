package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DefaultBaiduTokenURL is Baidu AI Cloud's OAuth endpoint.
const DefaultBaiduTokenURL = "https://aip.baidubce.com/oauth/2.0/token"

// BaiduOAuth exchanges an API key/secret pair for an access token using the
// client-credentials grant. Tokens are fetched per call and not cached.
type BaiduOAuth struct {
	TokenURL string
	Client   *http.Client
}

type baiduTokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (b *BaiduOAuth) Token(ctx context.Context, apiKey, secretKey string) (string, error) {
	endpoint := b.TokenURL
	if endpoint == "" {
		endpoint = DefaultBaiduTokenURL
	}
	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}

	q := url.Values{}
	q.Set("grant_type", "client_credentials")
	q.Set("client_id", apiKey)
	q.Set("client_secret", secretKey)

	ctx, cancel := context.WithTimeout(ctx, defaultFileTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("baidu token: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("baidu token: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("baidu token: HTTP %d", resp.StatusCode)
	}

	var tr baiduTokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return "", fmt.Errorf("baidu token: decode: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("baidu token: %s %s", tr.Error, tr.ErrorDescription)
	}
	return tr.AccessToken, nil
}
