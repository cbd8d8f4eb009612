package engine

import "strings"

// 兜底回复的消息类别
const (
	categoryGreeting  = "greeting"
	categoryHelp      = "help"
	categoryQuestion  = "question"
	categoryPricing   = "pricing"
	categoryTechnical = "technical"
	categoryOther     = "other"
)

// keywordFamily 是一组判定某个类别的关键词：
// 单词按整词匹配，含空格的短语按子串匹配。
type keywordFamily struct {
	category string
	words    []string
	phrases  []string
}

// 类别按固定顺序评估，首个命中生效，未命中归入 other。
var families = []keywordFamily{
	{
		category: categoryGreeting,
		words:    []string{"hello", "hi", "hey", "greetings"},
		phrases:  []string{"good morning", "good afternoon", "good evening"},
	},
	{
		category: categoryHelp,
		words:    []string{"help", "support", "assist", "assistance", "stuck"},
		phrases:  []string{"can you help"},
	},
	{
		category: categoryQuestion,
		words:    []string{"what", "how", "why", "when", "where", "who", "which"},
	},
	{
		category: categoryPricing,
		words:    []string{"price", "pricing", "cost", "plan", "subscription", "payment", "upgrade"},
		phrases:  []string{"how much"},
	},
	{
		category: categoryTechnical,
		words:    []string{"error", "bug", "broken", "crash", "issue", "problem", "fail", "failed"},
		phrases:  []string{"not working", "doesn't work"},
	},
}

// 每个类别对应一条固定回复
var cannedResponses = map[string]string{
	categoryGreeting:  "Hello! Thanks for reaching out. How can we help you today?",
	categoryHelp:      "We're here to help. Please share a few more details and our team will assist you shortly.",
	categoryQuestion:  "That's a great question. Our team will get back to you with an answer shortly.",
	categoryPricing:   "You can find our plans on the pricing page, and our team is happy to walk you through the options.",
	categoryTechnical: "Sorry you're running into trouble. Our technical team has been notified and will follow up with you shortly.",
	categoryOther:     "Thank you for your message. Our team will get back to you shortly.",
}

// classifyMessage 是从消息文本到类别的纯函数：
// 按固定顺序做关键词族匹配，以 "?" 结尾的消息计入 question。
func classifyMessage(message string) string {
	lower := strings.ToLower(strings.TrimSpace(message))
	words := fieldsSet(lower)

	for _, family := range families {
		if family.category == categoryQuestion && strings.HasSuffix(lower, "?") {
			return categoryQuestion
		}
		for _, w := range family.words {
			if _, ok := words[w]; ok {
				return family.category
			}
		}
		for _, p := range family.phrases {
			if strings.Contains(lower, p) {
				return family.category
			}
		}
	}
	return categoryOther
}

// cannedResponse 返回消息所属类别的固定兜底回复。
func cannedResponse(message string) string {
	return cannedResponses[classifyMessage(message)]
}

// fieldsSet 按非字母数字字符切词并返回词集合。
func fieldsSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		set[w] = struct{}{}
	}
	return set
}
