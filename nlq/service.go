/*
service.go - Natural-language question service

PURPOSE:
  Orchestrates one question: persist the user message, try the
  deterministic intents, fall back to the LLM, then persist the
  assistant reply and a full reasoning trace (tool calls, model, token
  usage, latency).

SEE ALSO:
  - nlq/intents.go: rule-based fast path
  - nlq/llm.go: OpenAI fallback
  - store/sqlite: conversation and trace persistence
*/
package nlq

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/finsight/finance-engine/store/sqlite"
)

// Service answers natural-language questions about the ledger.
type Service struct {
	store    *sqlite.Store
	chat     ChatClient
	selector ModelSelector
	variants []string
	logger   *log.Logger
}

// Config carries the service's LLM wiring. A nil Chat disables the
// fallback entirely.
type Config struct {
	Chat     ChatClient
	Selector ModelSelector
	Variants []string
}

// New builds the question service. An empty Variants list or nil
// Selector still works for rule-only operation.
func New(store *sqlite.Store, cfg Config, logger *log.Logger) *Service {
	sel := cfg.Selector
	if sel == nil {
		sel = RandomSelector{}
	}
	return &Service{
		store:    store,
		chat:     cfg.Chat,
		selector: sel,
		variants: cfg.Variants,
		logger:   logger,
	}
}

// Response is the answer envelope returned to the API layer.
type Response struct {
	Answer         string           `json:"answer"`
	Data           any              `json:"data"`
	Trace          []map[string]any `json:"trace"`
	ConversationID string           `json:"conversation_id"`
}

// Answer resolves one question. convID may be empty (a new conversation
// is created); preferModel forces the fallback model when set.
func (s *Service) Answer(ctx context.Context, question, convID, preferModel string) (*Response, error) {
	conv, err := s.store.EnsureConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddMessage(ctx, conv, "user", question); err != nil {
		return nil, err
	}

	start := time.Now()

	result, err := s.resolveIntent(ctx, question)
	if err != nil {
		return nil, err
	}

	var answer string
	var data any = map[string]any{}
	trace := []map[string]any{}
	var model *string
	tokensPrompt, tokensCompletion := 0, 0

	if result != nil {
		answer = result.Answer
		data = result.Data
		trace = result.Trace
	} else {
		out := s.askLLM(ctx, question, preferModel)
		answer = out.Answer
		model = out.Model
		tokensPrompt = out.TokensPrompt
		tokensCompletion = out.TokensCompletion
		trace = append(trace, out.Trace...)
	}

	latencyMS := float64(time.Since(start).Microseconds()) / 1000.0

	if err := s.store.LogTrace(ctx, sqlite.TraceRecord{
		TS:               time.Now().UTC().Format(time.RFC3339Nano),
		ConversationID:   conv,
		Question:         question,
		Answer:           answer,
		Model:            model,
		TokensPrompt:     tokensPrompt,
		TokensCompletion: tokensCompletion,
		LatencyMS:        latencyMS,
		ToolCalls:        trace,
	}); err != nil {
		return nil, err
	}
	if err := s.store.AddMessage(ctx, conv, "assistant", answer); err != nil {
		return nil, err
	}

	s.logger.Debug("nlq_answered",
		"conversation_id", conv,
		"rule_based", result != nil,
		"latency_ms", latencyMS,
	)

	return &Response{
		Answer:         answer,
		Data:           data,
		Trace:          trace,
		ConversationID: conv,
	}, nil
}
