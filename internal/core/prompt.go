package core

import (
	"strings"

	"sts-backend/internal/dataset"
)

// DefaultPromptTemplate wraps each sentence before encoding. The trailing
// quote is intentional, the model completes the one-word summary after it.
const DefaultPromptTemplate = `Summarize sentence "{text}" in one word:"`

// ApplyPrompt substitutes the sentence and its condition into the template.
// Templates without a {text} placeholder pass the text through untouched.
// When the template has no {condition} placeholder, the condition is
// prefixed to the sentence instead.
func ApplyPrompt(template, text, condition string) string {
	if !strings.Contains(template, "{condition}") {
		text = ConditionText(text, condition)
		condition = ""
	}
	if template == "" || !strings.Contains(template, "{text}") {
		return text
	}
	out := strings.ReplaceAll(template, "{text}", text)
	return strings.ReplaceAll(out, "{condition}", condition)
}

// ConditionText prefixes a sentence with its condition for conditional
// similarity tasks. Records without a condition are returned as is.
func ConditionText(text, condition string) string {
	if condition == "" {
		return text
	}
	return condition + " " + text
}

// FormatRecords applies conditioning and the prompt template to both sides
// of every record, in parallel.
func FormatRecords(records []dataset.Record, template string, workers int) []dataset.Record {
	formatted, _ := dataset.MapRecords(records, workers, func(rec dataset.Record) (dataset.Record, error) {
		rec.Text1 = ApplyPrompt(template, rec.Text1, rec.Condition)
		rec.Text2 = ApplyPrompt(template, rec.Text2, rec.Condition)
		return rec, nil
	})
	return formatted
}
