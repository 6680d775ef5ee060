package ai

import (
	"strings"
	"testing"
)

func TestDefaultSystemPromptCoversExtractionRules(t *testing.T) {
	t.Parallel()

	rules := []string{
		"merging entries that describe the same activity",
		"Only include actionable items",
		"note attire inside `description`",
		"Return only valid JSON",
	}
	for _, rule := range rules {
		if !strings.Contains(DefaultSystemPrompt, rule) {
			t.Errorf("shipped prompt is missing the rule %q", rule)
		}
	}
}
