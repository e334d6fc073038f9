// Package intent maps free text to a marketplace intent by keyword.
package intent

import (
	"log/slog"
	"strings"

	"marketbot/internal/domain"
)

// Rule ties a set of keywords to an intent.
type Rule struct {
	Intent   domain.Intent
	Keywords []string
}

// DefaultRules are checked in order; the first rule with any keyword
// present in the message wins.
var DefaultRules = []Rule{
	{Intent: domain.IntentPublishSupply, Keywords: []string{"发布", "供应", "出售"}},
	{Intent: domain.IntentPublishDemand, Keywords: []string{"需要", "购买", "求购"}},
	{Intent: domain.IntentSearchListings, Keywords: []string{"搜索", "查找", "寻找"}},
	{Intent: domain.IntentViewMatches, Keywords: []string{"匹配", "推荐"}},
	{Intent: domain.IntentGetStats, Keywords: []string{"统计", "数据", "报告"}},
}

// Classifier assigns an intent to a message. It is safe for concurrent use.
type Classifier struct {
	rules  []Rule // keywords pre-lowered
	logger *slog.Logger
}

// New builds a classifier over rules; nil rules means DefaultRules.
func New(rules []Rule, logger *slog.Logger) *Classifier {
	if rules == nil {
		rules = DefaultRules
	}
	if logger == nil {
		logger = slog.Default()
	}

	lowered := make([]Rule, len(rules))
	for i, r := range rules {
		kws := make([]string, len(r.Keywords))
		for j, kw := range r.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		lowered[i] = Rule{Intent: r.Intent, Keywords: kws}
	}
	return &Classifier{rules: lowered, logger: logger}
}

// Classify returns the first matching intent, or GENERAL_CHAT.
func (c *Classifier) Classify(message string) domain.Intent {
	lower := strings.ToLower(message)
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				c.logger.Debug("intent matched", "intent", r.Intent, "keyword", kw)
				return r.Intent
			}
		}
	}
	return domain.IntentGeneralChat
}
