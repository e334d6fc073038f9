package provider

import (
	"strings"

	"marketbot/internal/domain"
)

const temperature = 0.2

var intentClauses = map[domain.Intent]string{
	domain.IntentPublishSupply:  "用户想要发布供应信息。请帮助他们完善商品信息，包括：商品名称、数量、价格、品质等级、配送方式等。\n",
	domain.IntentPublishDemand:  "用户想要发布需求信息。请帮助他们明确需求详情，包括：商品名称、数量、期望价格、品质要求、交付时间等。\n",
	domain.IntentSearchListings: "用户想要搜索商品信息。请帮助他们精确搜索条件，并解读搜索结果。\n",
	domain.IntentViewMatches:    "用户想要查看匹配推荐。请解读匹配结果，说明推荐理由，帮助用户决策。\n",
	domain.IntentGetStats:       "用户想要了解市场统计。请解读数据，提供市场洞察和建议。\n",
}

const genericClause = "请自然地回应用户的问题，如有需要可引导用户使用marketplace功能。\n"

// Prompt is the provider-neutral content of one generation request.
type Prompt struct {
	System      string
	User        string
	Temperature float32
}

// IntentClause returns the instruction paragraph for intent.
func IntentClause(intent domain.Intent) string {
	if c, ok := intentClauses[intent]; ok {
		return c
	}
	return genericClause
}

// BuildPrompt assembles the user turn sent to the model.
func BuildPrompt(systemPrompt, userMessage, conversationContext string, intent domain.Intent) Prompt {
	var sb strings.Builder
	sb.WriteString("你是一个专业的农贸市场AI助手，帮助商家进行智能供需撮合。\n\n")
	sb.WriteString(IntentClause(intent))
	sb.WriteString("\n上下文信息:\n")
	sb.WriteString(conversationContext)
	sb.WriteString("\n\n用户消息: ")
	sb.WriteString(userMessage)
	sb.WriteString("\n\n请用简洁、友好的语言回复，重点突出关键信息。")

	return Prompt{
		System:      systemPrompt,
		User:        sb.String(),
		Temperature: temperature,
	}
}
