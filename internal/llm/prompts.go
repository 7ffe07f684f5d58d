package llm

import (
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const answerSystemPrompt = `You answer questions about a video using only the transcript excerpts you are given.
If the excerpts do not contain the answer, say that the video does not cover it.
Do not invent details that are not in the excerpts.`

const summarySystemPrompt = `You write faithful summaries of video transcripts.
Only use information present in the transcript.`

var summaryInstructions = map[SummaryLength]string{
	SummaryShort:  "Summarise the transcript in 3 to 5 sentences.",
	SummaryMedium: "Summarise the transcript in 2 or 3 paragraphs covering the main points in order.",
	SummaryLong:   "Write a detailed summary of the transcript with a short section per major topic, keeping important examples and figures.",
}

func answerMessages(question, contextText string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: answerSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Transcript excerpts:\n\n%s\n\nQuestion: %s", contextText, question)},
	}
}

func summaryMessages(fullText string, length SummaryLength) []openai.ChatCompletionMessage {
	instruction, ok := summaryInstructions[length]
	if !ok {
		instruction = summaryInstructions[SummaryMedium]
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("%s\n\nTranscript:\n\n%s", instruction, fullText)},
	}
}

const sectionInstruction = "Summarise this part of the transcript in one paragraph, keeping the main points in order."

func sectionMessages(section string, n, total int) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("%s\n\nTranscript part %d of %d:\n\n%s", sectionInstruction, n, total, section)},
	}
}

// combineMessages asks for the final summary over per-section summaries.
func combineMessages(parts []string, length SummaryLength) []openai.ChatCompletionMessage {
	instruction, ok := summaryInstructions[length]
	if !ok {
		instruction = summaryInstructions[SummaryMedium]
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("%s\n\nThe transcript was summarised in consecutive parts:\n\n%s", instruction, strings.Join(parts, "\n\n"))},
	}
}
