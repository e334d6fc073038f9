package config

// Property names understood by the Resolver.
const (
	KeyProvider       = "marketplace.ai.provider"
	KeyAPIBase        = "marketplace.ai.api.base"
	KeyAPIKey         = "marketplace.ai.api.key"
	KeyModel          = "marketplace.ai.model"
	KeyTimeoutSeconds = "marketplace.ai.timeout.seconds"
	KeySystemPrompt   = "marketplace.ai.system.prompt"
	KeyTelegramToken  = "mcp.telegram.bot.token"
)

// DefaultSystemPrompt is used when marketplace.ai.system.prompt is unset.
const DefaultSystemPrompt = "你是一个专业的农贸市场AI助手，帮助商家进行智能供需撮合。你需要保持礼貌、简洁，引导用户提供必要信息，并在可能的情况下调用平台服务完成供需发布、匹配、统计等任务。"

// DefaultProperties is the built-in property table. Entries from
// Config.Properties are layered on top of it.
func DefaultProperties() map[string]string {
	return map[string]string{
		KeyProvider:       "OPENAI",
		KeyTimeoutSeconds: "30",
		KeySystemPrompt:   DefaultSystemPrompt,
	}
}

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
			EnvFile:  ".env",
		},
		Memory: MemoryConfig{
			Driver:       "sqlite",
			DBPath:       "~/.marketbot/marketbot.db",
			HistoryLimit: 3,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
			API: APIConfig{
				Enabled: false,
				Host:    "127.0.0.1",
				Port:    8088,
			},
		},
		Marketplace: MarketplaceConfig{
			BaseURL:        "http://localhost:8080/api",
			TimeoutSeconds: 10,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
