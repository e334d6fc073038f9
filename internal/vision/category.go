package vision

import "strings"

// GenericCategory is returned when no keyword group matches.
const GenericCategory = "工业产品"

type categoryRule struct {
	name     string
	keywords []string
}

// Checked in order; first group with a hit wins.
var categoryRules = []categoryRule{
	{"钢材/金属材料", []string{"steel", "metal", "钢材", "金属", "iron", "铁"}},
	{"建筑材料", []string{"concrete", "cement", "混凝土", "水泥", "brick", "砖"}},
	{"机械设备", []string{"machine", "equipment", "机械", "设备", "tool", "工具"}},
	{"电子产品", []string{"electronic", "computer", "电子", "计算机", "phone", "手机"}},
	{"化工产品", []string{"chemical", "plastic", "化工", "塑料"}},
	{"农产品", []string{"food", "grain", "食品", "粮食", "vegetable", "蔬菜"}},
}

// Category maps an image description to a coarse product category.
func Category(description string) string {
	lower := strings.ToLower(description)
	for _, r := range categoryRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.name
			}
		}
	}
	return GenericCategory
}
