/*
llm.go - OpenAI fallback for questions no rule matches

PURPOSE:
  When rule matching comes up empty the question goes to a chat model
  for a narrative answer. Missing API key and transport errors both
  degrade to a canned answer with the reason recorded in the trace, the
  endpoint itself never fails because of the LLM.
*/
package nlq

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/finsight/finance-engine/obs"
)

const systemPrompt = "You are a financial analyst over a monthly P&L SQLite DB. " +
	"Prefer one-sentence insights with concrete numbers. " +
	"If asked for profit, prefer net_profit; else gross_profit.\n"

const fallbackHint = "Try: 'What was total profit in Q1 2024?' or 'Show me revenue trends for 2024'."

// ChatClient is the slice of the OpenAI client the service needs.
// Satisfied by *openai.Client; stubbed in tests.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// llmOutcome is the fallback result: the answer text plus usage for the
// trace record.
type llmOutcome struct {
	Answer           string
	Model            *string
	TokensPrompt     int
	TokensCompletion int
	Trace            []map[string]any
}

// askLLM runs the chat fallback. preferModel, when set, bypasses the
// selector.
func (s *Service) askLLM(ctx context.Context, question, preferModel string) llmOutcome {
	if s.chat == nil {
		return llmOutcome{
			Answer: fallbackHint,
			Trace:  []map[string]any{{"event": "llm_skipped", "reason": "no_openai_api_key"}},
		}
	}

	model := preferModel
	if model == "" {
		model = s.selector.Select(s.variants)
	}
	if model == "" {
		return llmOutcome{
			Answer: fallbackHint,
			Trace:  []map[string]any{{"event": "llm_skipped", "reason": "no_model_variants"}},
		}
	}

	resp, err := s.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
		Temperature: 0.2,
		MaxTokens:   300,
	})
	if err != nil {
		return llmOutcome{
			Answer: fmt.Sprintf("LLM step failed: %v. Try a simpler phrasing or use explicit endpoints.", err),
			Trace:  []map[string]any{{"event": "llm_error", "error": err.Error()}},
		}
	}

	answer := "No answer."
	if len(resp.Choices) > 0 {
		if c := strings.TrimSpace(resp.Choices[0].Message.Content); c != "" {
			answer = c
		}
	}
	if resp.Model != "" {
		model = resp.Model
	}
	if resp.Usage.PromptTokens > 0 {
		obs.AITokens.WithLabelValues("prompt", model).Add(float64(resp.Usage.PromptTokens))
	}
	if resp.Usage.CompletionTokens > 0 {
		obs.AITokens.WithLabelValues("completion", model).Add(float64(resp.Usage.CompletionTokens))
	}

	return llmOutcome{
		Answer:           answer,
		Model:            &model,
		TokensPrompt:     resp.Usage.PromptTokens,
		TokensCompletion: resp.Usage.CompletionTokens,
		Trace:            []map[string]any{{"llm": "openai", "model": model}},
	}
}
