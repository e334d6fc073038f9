package provider

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"marketbot/internal/config"
)

// ID names one of the supported text-generation providers.
type ID string

const (
	OpenAI ID = "OPENAI"
	Claude ID = "CLAUDE"
	Zhipu  ID = "ZHIPU"
	Qwen   ID = "QWEN"
	Baidu  ID = "BAIDU"
	Xunfei ID = "XUNFEI"
)

// Region groups providers by where they are hosted.
type Region string

const (
	RegionWestern Region = "western"
	RegionChina   Region = "china"
)

// Spec is the static description of a provider.
type Spec struct {
	ID             ID
	Region         Region
	BaseURL        string
	Model          string
	CredentialKeys []string // tried in order
}

var specs = []Spec{
	{
		ID:             OpenAI,
		Region:         RegionWestern,
		BaseURL:        "https://api.openai.com",
		Model:          openai.GPT4oMini,
		CredentialKeys: []string{"openai.api.key", config.KeyAPIKey},
	},
	{
		ID:             Claude,
		Region:         RegionWestern,
		BaseURL:        "https://api.anthropic.com",
		Model:          "claude-3-5-sonnet-20241022",
		CredentialKeys: []string{"anthropic.api.key", "claude.api.key", config.KeyAPIKey},
	},
	{
		ID:             Zhipu,
		Region:         RegionChina,
		BaseURL:        "https://open.bigmodel.cn/api/paas/v4",
		Model:          "glm-4-plus",
		CredentialKeys: []string{"zhipu.api.key", "glm.api.key", config.KeyAPIKey},
	},
	{
		ID:             Qwen,
		Region:         RegionChina,
		BaseURL:        "https://dashscope.aliyuncs.com/api/v1",
		Model:          "qwen-plus",
		CredentialKeys: []string{"qwen.api.key", "dashscope.api.key", config.KeyAPIKey},
	},
	{
		ID:             Baidu,
		Region:         RegionChina,
		BaseURL:        "https://aip.baidubce.com/rpc/2.0",
		Model:          "ERNIE-4.0-8K",
		CredentialKeys: []string{"baidu.api.key", "wenxin.api.key", config.KeyAPIKey},
	},
	{
		ID:             Xunfei,
		Region:         RegionChina,
		BaseURL:        "https://spark-api-open.xf-yun.com/v1",
		Model:          "4.0Ultra",
		CredentialKeys: []string{"xunfei.api.key", "xinghuo.api.key", config.KeyAPIKey},
	},
}

var aliases = map[string]ID{
	"GLM":     Zhipu,
	"TONGYI":  Qwen,
	"WENXIN":  Baidu,
	"XINGHUO": Xunfei,
}

// ParseID maps a configured provider name to an ID. Matching is
// case-insensitive, accepts the vendor aliases, and falls back to OpenAI
// for blank or unknown names.
func ParseID(name string) ID {
	name = strings.ToUpper(strings.TrimSpace(name))
	if id, ok := aliases[name]; ok {
		return id
	}
	for _, s := range specs {
		if string(s.ID) == name {
			return s.ID
		}
	}
	return OpenAI
}

// Lookup returns the Spec for id. Unknown IDs yield the OpenAI spec.
func Lookup(id ID) Spec {
	for _, s := range specs {
		if s.ID == id {
			return s
		}
	}
	return specs[0]
}

// All returns every provider spec in registry order.
func All() []Spec {
	out := make([]Spec, len(specs))
	copy(out, specs)
	return out
}

// Credential returns the first configured credential for the provider,
// or "" when none of its keys resolve.
func (s Spec) Credential(r *config.Resolver) string {
	return r.FirstNonBlank(s.CredentialKeys...)
}
