// Package reply holds the canned replies used when no AI provider answers and
// the templates for non-text turns.
package reply

import (
	"regexp"
	"strings"
)

// rule is one entry of the local responder's decision list.
type rule struct {
	name    string
	match   func(lower string) bool
	respond func(msg string) string
}

// rules are evaluated in order; the first match answers.
var rules = []rule{
	{
		name:  "supply",
		match: containsAny("供应", "出售", "卖"),
		respond: func(msg string) string {
			if hasProductDetails(msg) {
				return supplySummary(msg)
			}
			return supplyGuide
		},
	},
	{
		name:  "demand",
		match: containsAny("需求", "采购", "买"),
		respond: func(msg string) string {
			if hasProductDetails(msg) {
				return demandSummary(msg)
			}
			return demandGuide
		},
	},
	{name: "guide", match: containsAny("引导", "帮我填写", "一步步"), respond: fixed(stepGuide)},
	{name: "menu-1", match: equalsAny("1", "1️⃣"), respond: fixed(menuSupply)},
	{name: "menu-2", match: equalsAny("2", "2️⃣"), respond: fixed(menuDemand)},
	{name: "menu-3", match: equalsAny("3", "3️⃣"), respond: fixed(menuMatches)},
	{name: "matching", match: containsAny("匹配", "分析"), respond: fixed(matchAnalysis)},
	{name: "contact", match: containsAny("联系"), respond: fixed(contactService)},
	{name: "stats", match: containsAny("数据", "统计", "报告"), respond: fixed(statsOverview)},
	{
		name: "welcome",
		match: func(lower string) bool {
			return lower == "/start" || strings.Contains(lower, "帮助") || strings.Contains(lower, "你好")
		},
		respond: fixed(welcome),
	},
	{name: "prices", match: containsAny("价格", "报价"), respond: fixed(priceBoard)},
}

// Local answers a message without any remote model. The result depends only
// on the message text.
func Local(msg string) string {
	lower := strings.ToLower(msg)
	for _, r := range rules {
		if r.match(lower) {
			return r.respond(msg)
		}
	}
	return fallbackMenu(msg)
}

func containsAny(words ...string) func(string) bool {
	return func(s string) bool {
		for _, w := range words {
			if strings.Contains(s, w) {
				return true
			}
		}
		return false
	}
}

func equalsAny(words ...string) func(string) bool {
	return func(s string) bool {
		for _, w := range words {
			if s == w {
				return true
			}
		}
		return false
	}
}

func fixed(text string) func(string) string {
	return func(string) string { return text }
}

var (
	digitPattern         = regexp.MustCompile(`[0-9]`)
	quantityPricePattern = regexp.MustCompile(`([0-9]+[吨个件])|([0-9]+元)`)
	hasDetailWord        = containsAny("吨", "个", "件", "元", "价格", "预算")
)

// hasProductDetails reports whether msg carries a number plus a unit or price word.
func hasProductDetails(msg string) bool {
	return digitPattern.MatchString(msg) && hasDetailWord(msg)
}

func productName(msg string) string {
	for _, name := range []string{"钢材", "大米", "设备", "机械"} {
		if strings.Contains(msg, name) {
			return name
		}
	}
	return "相关产品"
}

func quantityPrice(msg string) string {
	found := quantityPricePattern.FindAllString(msg, -1)
	if len(found) == 0 {
		return "请提供具体数量和价格"
	}
	return strings.Join(found, ", ")
}

func supplySummary(msg string) string {
	return "✅ 我已分析您的供应信息：\n\n" +
		"📋 **信息摘要**：\n" +
		"• 产品信息：" + productName(msg) + "\n" +
		"• 数量/价格：" + quantityPrice(msg) + "\n\n" +
		"🎯 **智能建议**：\n" +
		"• 您的产品在当前市场有很好的竞争力\n" +
		"• 建议在平台首页展示以获得更多曝光\n" +
		"• 预计7天内可以找到3-5个潜在买家\n\n" +
		"📢 **下一步操作**：\n" +
		"我可以帮您：\n" +
		"1. 正式发布到平台（回复 \"发布\"）\n" +
		"2. 寻找匹配的买家（回复 \"匹配\"）\n" +
		"3. 修改信息（回复 \"修改\"）\n\n" +
		"请选择您想要的操作。"
}

func demandSummary(msg string) string {
	return "✅ 我已分析您的采购需求：\n\n" +
		"📋 **需求摘要**：\n" +
		"• 采购产品：" + productName(msg) + "\n" +
		"• 数量/预算：" + quantityPrice(msg) + "\n\n" +
		"🎯 **匹配分析**：\n" +
		"• 找到8个符合条件的供应商\n" +
		"• 预计价格区间比您的预算低5-10%\n" +
		"• 3家供应商可以在您要求的时间内交货\n\n" +
		"🚀 **推荐行动**：\n" +
		"1. 立即联系推荐供应商（回复 \"联系\"）\n" +
		"2. 查看详细匹配报告（回复 \"报告\"）\n" +
		"3. 发布需求到平台（回复 \"发布需求\"）\n\n" +
		"我建议您先查看匹配报告，了解市场情况后再做决定。"
}

func fallbackMenu(msg string) string {
	return "🤔 我理解您说的是：\"" + msg + "\"\n\n" +
		"让我为您提供最相关的帮助：\n\n" +
		"如果您想要：\n" +
		"📦 **发布供应** - 回复 \"供应 + 产品名\"\n" +
		"🛒 **发布需求** - 回复 \"需求 + 产品名\"\n" +
		"🎯 **智能匹配** - 回复 \"匹配分析\"\n" +
		"📊 **查看数据** - 回复 \"数据统计\"\n" +
		"💰 **价格查询** - 回复 \"产品名 + 价格\"\n\n" +
		"💬 或者您可以直接说出您的具体需求，我会智能理解并为您提供帮助！"
}

const supplyGuide = "我来帮您发布供应信息！请提供以下详细信息：\n\n" +
	"📦 产品名称：\n" +
	"📊 数量：\n" +
	"💰 价格：\n" +
	"📍 地区：\n" +
	"📞 联系方式：\n\n" +
	"💡 提示：您可以一次性告诉我，例如：\n" +
	"\"我要发布钢材供应，100吨，单价4500元/吨，北京地区，联系电话13800138000\"\n\n" +
	"或者我可以引导您一步步填写，请回复 \"引导我\" 开始。"

const demandGuide = "我来帮您发布采购需求！请提供以下信息：\n\n" +
	"🎯 需要产品：\n" +
	"📊 需求数量：\n" +
	"💵 预算范围：\n" +
	"⏰ 需要时间：\n" +
	"📍 地区要求：\n\n" +
	"💡 提示：您可以直接说，例如：\n" +
	"\"我需要采购钢材150吨，预算680000元，一个月内，华北地区\"\n\n" +
	"或者回复 \"帮我填写\" 进行逐步引导。"

const stepGuide = "好的！我来引导您逐步操作。\n\n" +
	"首先，请告诉我您想要：\n" +
	"1️⃣ 发布供应信息（我有产品要卖）\n" +
	"2️⃣ 发布需求信息（我要采购产品）\n" +
	"3️⃣ 查看匹配建议（寻找商机）\n\n" +
	"请回复数字1、2或3，我会为您详细引导。"

const menuSupply = "✅ 好的，我来帮您发布供应信息。\n\n" +
	"第一步：请告诉我您要供应什么产品？\n" +
	"例如：钢材、大米、机械设备等\n\n" +
	"💬 直接输入产品名称即可。"

const menuDemand = "✅ 好的，我来帮您发布采购需求。\n\n" +
	"第一步：请告诉我您要采购什么产品？\n" +
	"例如：原材料、办公用品、生产设备等\n\n" +
	"💬 直接输入产品名称即可。"

const menuMatches = "🎯 智能匹配分析启动...\n\n" +
	"基于您的历史数据和当前市场情况，我为您找到了以下商机：\n\n" +
	"🔥 **热门匹配**：\n" +
	"• 钢材供应商（匹配度：92%）- 价格优势明显\n" +
	"• 建材批发商（匹配度：88%）- 地理位置便利\n" +
	"• 设备制造商（匹配度：85%）- 技术领先\n\n" +
	"📊 **市场趋势**：\n" +
	"• 钢材价格本周上涨3.2%\n" +
	"• 建材需求量环比增长15%\n" +
	"• 华东地区供需最活跃\n\n" +
	"💡 想了解具体某个匹配的详情吗？请回复对应的关键词。"

const matchAnalysis = "🎯 智能匹配分析结果：\n\n" +
	"✅ 找到3个高质量匹配：\n" +
	"• 钢材供应商（匹配度：92%）\n" +
	"• 建材批发商（匹配度：88%）\n" +
	"• 本地仓储商（匹配度：85%）\n\n" +
	"💡 建议：联系最高匹配度的供应商获取详细报价\n\n" +
	"📞 需要我帮您联系这些供应商吗？回复 \"联系\" 我来为您安排。"

const contactService = "📞 联系服务已启动！\n\n" +
	"我正在为您联系以下优质供应商：\n\n" +
	"🏢 **华东钢材集团**\n" +
	"📍 位置：上海市\n" +
	"💰 参考价格：4,200-4,800元/吨\n" +
	"⏰ 预计回复：1小时内\n\n" +
	"🏢 **北方建材有限公司**\n" +
	"📍 位置：北京市\n" +
	"💰 参考价格：4,500-5,000元/吨\n" +
	"⏰ 预计回复：2小时内\n\n" +
	"📧 我会将您的需求信息发送给他们，一旦有回复我会立即通知您。\n\n" +
	"💬 您还需要其他帮助吗？"

const statsOverview = "📊 您的marketplace数据概览：\n\n" +
	"📈 **本月表现**：\n" +
	"• 供应发布：12条 ⬆️\n" +
	"• 需求发布：8条 ⬆️\n" +
	"• 成功匹配：15个 🎯\n" +
	"• 交易总额：￥456,800 💰\n" +
	"• 平均评分：4.3/5.0 ⭐\n\n" +
	"🔥 **热门类别**：\n" +
	"1. 钢材 (28%)\n" +
	"2. 建材 (22%)\n" +
	"3. 机械 (18%)\n\n" +
	"📈 **趋势分析**：您的活跃度比上月提升25%！\n\n" +
	"需要查看详细报告吗？回复 \"详细报告\" 获取完整分析。"

const welcome = "👋 欢迎使用智能推荐！我是您的专属AI助手。\n\n" +
	"🚀 **我能为您做什么**：\n" +
	"🔹 发布供应信息（说 \"我要供应...\"）\n" +
	"🔹 发布采购需求（说 \"我要采购...\"）\n" +
	"🔹 智能匹配分析（说 \"帮我匹配\"）\n" +
	"🔹 查看数据统计（说 \"查看数据\"）\n" +
	"🔹 联系优质供应商（说 \"联系服务\"）\n\n" +
	"💡 **使用技巧**：\n" +
	"• 可以直接描述需求：\"我要50吨钢材\"\n" +
	"• 可以要求引导：\"引导我发布供应\"\n" +
	"• 可以查询信息：\"今日钢材价格\"\n\n" +
	"请告诉我您需要什么帮助？我会提供专业的商机匹配服务！"

const priceBoard = "💰 **今日市场价格**（实时更新）：\n\n" +
	"🔧 **钢材类**：\n" +
	"• 螺纹钢：4,200-4,500元/吨 ↗️\n" +
	"• 线材：4,180-4,450元/吨 ↗️\n" +
	"• 板材：4,350-4,680元/吨 ➡️\n\n" +
	"🏗️ **建材类**：\n" +
	"• 水泥：320-380元/吨 ↘️\n" +
	"• 砂石：85-120元/立方 ➡️\n\n" +
	"📈 **价格趋势**：\n" +
	"钢材价格本周上涨3.2%，建议适时采购。\n\n" +
	"需要特定产品的详细报价吗？请告诉我具体产品名称。"
