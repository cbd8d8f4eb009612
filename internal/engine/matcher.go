// Package engine 实现了自动回复的响应生成引擎：
// 自定义规则匹配、模板渲染、多 key 多提供商级联调用与兜底回复。
package engine

import (
	"sort"
	"strings"

	"chatpulse-go/internal/model"
)

// matchRule 在租户的规则集中寻找命中规则。
// 规则按优先级从高到低评估，同优先级保持入库顺序，首个命中即返回；
// 匹配方式为关键词对消息的忽略大小写子串匹配。
// 关键词数据无法解析的规则视为永不命中。未命中返回 nil。
func matchRule(rules []model.AIRule, message string) *model.AIRule {
	if len(rules) == 0 || message == "" {
		return nil
	}

	// 入参顺序不可信，按优先级降序稳定排序，平级保持原有顺序
	ordered := make([]*model.AIRule, 0, len(rules))
	for i := range rules {
		if rules[i].IsActive {
			ordered = append(ordered, &rules[i])
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	messageLower := strings.ToLower(message)
	for _, rule := range ordered {
		for _, keyword := range rule.KeywordList() {
			keyword = strings.TrimSpace(keyword)
			if keyword == "" {
				continue
			}
			if strings.Contains(messageLower, strings.ToLower(keyword)) {
				return rule
			}
		}
	}
	return nil
}
