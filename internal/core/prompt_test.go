package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sts-backend/internal/dataset"
)

func TestApplyPrompt(t *testing.T) {
	assert.Equal(t,
		`Summarize sentence "a dog runs" in one word:"`,
		ApplyPrompt(DefaultPromptTemplate, "a dog runs", ""))

	assert.Equal(t, "a dog runs", ApplyPrompt("", "a dog runs", ""))
	assert.Equal(t, "a dog runs", ApplyPrompt("no placeholder", "a dog runs", ""))
}

func TestApplyPromptCondition(t *testing.T) {
	// templates without {condition} fall back to prefixing
	assert.Equal(t,
		`Summarize sentence "the animal a dog runs" in one word:"`,
		ApplyPrompt(DefaultPromptTemplate, "a dog runs", "the animal"))

	assert.Equal(t, "given the animal: a dog runs",
		ApplyPrompt("given {condition}: {text}", "a dog runs", "the animal"))
	assert.Equal(t, "given : a dog runs",
		ApplyPrompt("given {condition}: {text}", "a dog runs", ""))
}

func TestConditionText(t *testing.T) {
	assert.Equal(t, "the animal a dog runs", ConditionText("a dog runs", "the animal"))
	assert.Equal(t, "a dog runs", ConditionText("a dog runs", ""))
}

func TestFormatRecords(t *testing.T) {
	records := []dataset.Record{
		{Text1: "one", Text2: "two", Label: 3},
		{Text1: "three", Text2: "four", Label: 1, Condition: "the count"},
	}

	out := FormatRecords(records, "<{text}>", 4)

	assert.Equal(t, "<one>", out[0].Text1)
	assert.Equal(t, "<two>", out[0].Text2)
	assert.Equal(t, 3.0, out[0].Label)

	assert.Equal(t, "<the count three>", out[1].Text1)
	assert.Equal(t, "<the count four>", out[1].Text2)

	// input is untouched
	assert.Equal(t, "one", records[0].Text1)
}

func TestFormatRecordsConditionPlaceholder(t *testing.T) {
	records := []dataset.Record{
		{Text1: "three", Text2: "four", Label: 1, Condition: "the count"},
	}

	out := FormatRecords(records, "{condition}|{text}", 1)

	assert.Equal(t, "the count|three", out[0].Text1)
	assert.Equal(t, "the count|four", out[0].Text2)
}
