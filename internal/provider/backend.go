package provider

import "net/http"

// Backend adapts the gateway's provider-neutral Prompt to one vendor API.
type Backend interface {
	ID() ID
	EndpointPath() string
	BuildRequest(model string, p Prompt) ([]byte, error)
	Authorize(req *http.Request, apiKey string)
	// ParseReply extracts the reply text from a 2xx response body.
	ParseReply(body []byte) (string, error)
}

// DefaultBackends returns one backend per registered provider.
func DefaultBackends() []Backend {
	return []Backend{
		newChatCompletions(OpenAI, "/v1/chat/completions"),
		newClaude(),
		newChatCompletions(Zhipu, "/chat/completions"),
		newQwen(),
		newBaidu(),
		newChatCompletions(Xunfei, "/chat/completions"),
	}
}

func bearer(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
}
