package reply

import (
	"fmt"
	"strings"

	"marketbot/internal/domain"
)

// Replies used when a turn cannot be handled.
const (
	GenericApology    = "抱歉，系统暂时无法处理您的请求，请稍后再试。"
	MultimodalApology = "抱歉，暂时无法处理您发送的内容，请用文字描述您的需求。"
)

// Captions the Telegram channel substitutes for media sent without text.
const (
	photoPlaceholder          = "[Photo Message]"
	documentPlaceholderPrefix = "[Document:"
)

// Voice renders the reply for a voice or audio turn. t is nil when nothing
// could be transcribed; intent is ignored in that case.
func Voice(att domain.Attachment, t *domain.Transcript, intent domain.Intent) string {
	var sb strings.Builder
	sb.WriteString("🎙️ 收到您的语音消息")
	if att.Duration > 0 {
		fmt.Fprintf(&sb, "（时长: %d秒）", att.Duration)
	}
	sb.WriteString("！\n\n")

	if t == nil || t.Text == "" {
		sb.WriteString(voiceNotRecognized)
		return sb.String()
	}

	sb.WriteString("🔊 **语音内容识别**：\n")
	sb.WriteString("\"" + t.Text + "\"\n\n")
	sb.WriteString("🌐 **语言检测**: ")
	sb.WriteString(languageLabel(t.Language))
	sb.WriteString("\n\n")

	sb.WriteString("🎯 **智能分析**：\n")
	switch intent {
	case domain.IntentPublishSupply:
		sb.WriteString(voiceSupply)
	case domain.IntentPublishDemand:
		sb.WriteString(voiceDemand)
	case domain.IntentSearchListings:
		sb.WriteString(voiceSearch)
	default:
		sb.WriteString(voiceGeneral)
	}
	return sb.String()
}

func languageLabel(tag string) string {
	switch tag {
	case "zh":
		return "中文 🇨🇳"
	case "en":
		return "English 🇺🇸"
	case "zh-en", "en-zh", "mixed":
		return "中英混合 🌍"
	default:
		return "自动识别"
	}
}

// Image renders the reply for a photo turn. a is nil when the image could
// not be analysed.
func Image(caption string, att domain.Attachment, a *domain.Analysis) string {
	var sb strings.Builder
	sb.WriteString("📷 收到您的图片")
	if att.Width > 0 && att.Height > 0 {
		fmt.Fprintf(&sb, "（%dx%d）", att.Width, att.Height)
	}
	sb.WriteString("！\n\n")

	if caption != "" && caption != photoPlaceholder {
		sb.WriteString("📝 您的描述：\"" + caption + "\"\n\n")
	}

	if a == nil || a.Description == "" {
		sb.WriteString(imageNotRecognized)
		return sb.String()
	}

	sb.WriteString("🔍 **图片内容识别**：\n")
	sb.WriteString(a.Description + "\n\n")

	if a.Category != "" {
		sb.WriteString("🎯 **产品识别**：" + a.Category + "\n\n")
		sb.WriteString("📋 **智能建议**：\n")
		sb.WriteString("• 如果要发布供应：回复\"发布供应 " + a.Category + "\"\n")
		sb.WriteString("• 如果要采购此类产品：回复\"采购需求 " + a.Category + "\"\n")
		sb.WriteString("• 查看市场价格：回复\"价格查询 " + a.Category + "\"\n\n")
	}

	sb.WriteString("💡 **下一步操作**：\n")
	sb.WriteString("请告诉我这张图片的用途：\n")
	sb.WriteString("🔹 产品展示 (Product Display)\n")
	sb.WriteString("🔹 质量检测 (Quality Check)\n")
	sb.WriteString("🔹 规格说明 (Specification)\n")
	sb.WriteString("🔹 价格对比 (Price Comparison)\n")
	return sb.String()
}

// Document acknowledges a document turn. Document contents are not parsed.
func Document(caption string, att domain.Attachment) string {
	var sb strings.Builder
	sb.WriteString("📄 收到您的文档")
	if att.FileName != "" {
		sb.WriteString("：" + att.FileName)
	}
	sb.WriteString("！\n\n")

	if caption != "" && !strings.HasPrefix(caption, documentPlaceholderPrefix) {
		sb.WriteString("📝 您的说明：\"" + caption + "\"\n\n")
	}

	sb.WriteString(documentGuidance)
	return sb.String()
}

// Unsupported acknowledges a media type that has no handler.
func Unsupported(messageType string) string {
	return "收到您的" + messageType + "消息，目前系统正在学习处理这种类型的内容。请您用文字描述您的需求。"
}

const voiceSupply = "✅ 检测到供应信息发布需求\n" +
	"我将帮您整理产品信息并发布到平台\n\n" +
	"📋 请确认以下信息：\n" +
	"• 产品名称 (Product Name)\n• 供应数量 (Supply Quantity)\n• 价格范围 (Price Range)\n• 供应地区 (Supply Region)\n\n" +
	"💬 回复\"确认发布\"开始详细填写\n" +
	"💬 Reply \"Confirm\" to start detailed input"

const voiceDemand = "✅ 检测到采购需求\n" +
	"我将帮您匹配合适的供应商\n\n" +
	"📋 请确认采购信息：\n" +
	"• 需求产品 (Required Product)\n• 采购数量 (Purchase Quantity)\n• 预算范围 (Budget Range)\n• 交付时间 (Delivery Time)\n\n" +
	"💬 回复\"确认采购\"开始精准匹配\n" +
	"💬 Reply \"Purchase\" to start matching"

const voiceSearch = "✅ 检测到产品搜索需求\n" +
	"正在为您搜索相关产品...\n\n" +
	"💬 回复\"查看结果\"显示搜索结果\n" +
	"💬 Reply \"Results\" to show search results"

const voiceGeneral = "💭 已理解您的语音内容\n" +
	"请问您希望：\n" +
	"📦 发布供应信息 (Publish Supply)\n" +
	"🛒 发布采购需求 (Publish Demand)\n" +
	"🔍 搜索产品信息 (Search Products)\n\n" +
	"💬 直接回复您的选择即可\n" +
	"💬 Simply reply with your choice"

const voiceNotRecognized = "🔄 正在尝试识别语音内容...\n" +
	"🔄 Attempting to recognize speech content...\n\n" +
	"如果识别有困难，请您：\n" +
	"If recognition is difficult, please:\n" +
	"📝 **重新用文字描述** (Describe in text)\n" +
	"• 您要发布供应信息吗？(Want to publish supply?)\n" +
	"• 您要采购某种产品吗？(Want to purchase products?)\n" +
	"• 您想查看匹配建议吗？(Want to view matches?)\n\n" +
	"💡 提示：说话清晰一些，支持中英文混合语音\n" +
	"💡 Tip: Speak clearly, mixed Chinese-English is supported"

const imageNotRecognized = "🔄 正在尝试识别图片内容...\n\n" +
	"我正在学习图像识别技术，目前可以：\n" +
	"• 识别图片基本信息（尺寸、格式）\n" +
	"• 读取图片说明文字\n" +
	"• 提供智能业务引导\n\n" +
	"请您补充文字信息：\n" +
	"🔹 **这是什么产品的图片？** (What product is this?)\n" +
	"🔹 **您的目的是什么？** (Purpose: Supply/Purchase)\n" +
	"🔹 **具体规格要求？** (Specific requirements)\n" +
	"🔹 **地区要求？** (Regional requirements)\n\n" +
	"💡 提示：配置图片识别API后可自动分析产品信息\n" +
	"💡 Tip: Configure image recognition API for automatic analysis"

const documentGuidance = "我正在学习文档处理技术，目前可以：\n" +
	"• 识别文档基本信息（文件名、大小、格式）\n" +
	"• 读取文档说明文字\n" +
	"• 提供业务流程引导\n\n" +
	"请您告诉我这个文档的用途：\n" +
	"📋 **产品规格书** - 我将帮您发布详细的供应信息\n" +
	"📋 **采购清单** - 我将帮您匹配合适的供应商\n" +
	"📋 **报价单** - 我将为您分析市场价格趋势\n" +
	"📋 **合同文件** - 我将记录您的交易进展\n\n" +
	"💡 未来版本将支持文档内容解析和智能摘要！"
