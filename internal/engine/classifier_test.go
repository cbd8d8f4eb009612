package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyMessage(t *testing.T) {
	cases := []struct {
		name     string
		message  string
		category string
	}{
		{"greeting word", "hi there", categoryGreeting},
		{"greeting phrase", "good morning team", categoryGreeting},
		{"help request", "I need some help with this", categoryHelp},
		{"question mark", "do you ship to Kenya?", categoryQuestion},
		{"question word", "how does the trial work", categoryQuestion},
		{"pricing", "what's the cost of the basic plan", categoryQuestion}, // question 族在 pricing 之前
		{"pricing plain", "pricing details for my company", categoryPricing},
		{"technical", "the widget is broken again", categoryTechnical},
		{"technical phrase", "the login page is not working", categoryTechnical},
		{"other", "just leaving a note", categoryOther},
		{"empty", "", categoryOther},
		// "hi" 必须整词匹配，不能命中 "this" 的子串
		{"no substring greeting", "this shipment was late", categoryOther},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.category, classifyMessage(tc.message))
		})
	}
}

func TestCannedResponseIsDeterministic(t *testing.T) {
	first := cannedResponse("hi there")
	second := cannedResponse("hi there")
	assert.Equal(t, first, second)
	assert.Equal(t, cannedResponses[categoryGreeting], first)
}

func TestEveryCategoryHasAResponse(t *testing.T) {
	for _, family := range families {
		assert.NotEmpty(t, cannedResponses[family.category], family.category)
	}
	assert.NotEmpty(t, cannedResponses[categoryOther])
}
