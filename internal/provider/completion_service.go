package provider

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// Config is the Chat Session's view of which model answers its requests:
// the LLM Config a caller passes to switchLLM.
type Config struct {
	Provider    string
	Model       string
	Router      string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// CompletionService is the LM service object capability a Chat Session owns:
// one provider/model pair from the Registry, addressed by Config, offering a
// single blocking-with-streaming-callback completion call plus tool/config
// introspection. The agentic tool-calling loop itself lives in the Chat
// Session (internal/chatsession); this type only makes one LM round trip at
// a time.
type CompletionService struct {
	mu       sync.RWMutex
	registry *Registry
	cfg      Config
	log      zerolog.Logger
}

// NewCompletionService builds a CompletionService bound to registry, starting
// with cfg as its active model selection.
func NewCompletionService(registry *Registry, cfg Config, log zerolog.Logger) *CompletionService {
	return &CompletionService{registry: registry, cfg: cfg, log: log.With().Str("component", "completion_service").Logger()}
}

// Config returns the currently active LLM Config.
func (s *CompletionService) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetConfig swaps the active model selection. Callers decide, per spec
// §4.7's switchLLM, whether this also requires rebuilding a tokenizer or
// formatter; CompletionService itself only remembers the new selection.
func (s *CompletionService) SetConfig(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// EffectiveMaxTokens resolves the active model's max output tokens, falling
// back to cfg.MaxTokens or a hardcoded default when the registry has none.
func (s *CompletionService) EffectiveMaxTokens() (int, error) {
	cfg := s.Config()
	model, err := s.registry.GetModel(cfg.Provider, cfg.Model)
	if err != nil {
		if cfg.MaxTokens > 0 {
			return cfg.MaxTokens, nil
		}
		return 0, err
	}
	if model.MaxOutputTokens > 0 {
		return model.MaxOutputTokens, nil
	}
	if cfg.MaxTokens > 0 {
		return cfg.MaxTokens, nil
	}
	return 8192, nil
}

// Complete asks the active provider/model for one completion given the full
// message sequence and available tools, invoking onChunk for every text
// delta as it streams in (emitted elsewhere as llmservice:chunk). It returns the
// accumulated assistant message and a normalized finish reason
// ("stop", "tool-calls", "max_tokens", or "error").
func (s *CompletionService) Complete(
	ctx context.Context,
	messages []*schema.Message,
	tools []*schema.ToolInfo,
	onChunk func(delta string),
) (*schema.Message, string, error) {
	cfg := s.Config()

	prov, err := s.registry.Get(cfg.Provider)
	if err != nil {
		return nil, "", fmt.Errorf("completion service: %w", err)
	}
	model, err := s.registry.GetModel(cfg.Provider, cfg.Model)
	if err != nil {
		return nil, "", fmt.Errorf("completion service: %w", err)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = model.MaxOutputTokens
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	req := &CompletionRequest{
		Model:       model.ID,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   maxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
	}

	stream, err := prov.CreateCompletion(ctx, req)
	if err != nil {
		return nil, "", err
	}
	defer stream.Close()

	return s.drain(ctx, stream, onChunk)
}

// drain accumulates stream chunks into one final message, without the
// message/part persistence a caller may layer on top of the chunks.
func (s *CompletionService) drain(
	ctx context.Context,
	stream *CompletionStream,
	onChunk func(delta string),
) (*schema.Message, string, error) {
	var content strings.Builder
	toolCalls := map[string]*schema.ToolCall{}
	var toolOrder []string
	finishReason := ""

	for {
		select {
		case <-ctx.Done():
			return nil, "error", ctx.Err()
		default:
		}

		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "error", err
		}

		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			if onChunk != nil {
				onChunk(chunk.Content)
			}
		}

		for i := range chunk.ToolCalls {
			tc := chunk.ToolCalls[i]
			key := tc.ID
			if key == "" && tc.Index != nil {
				key = fmt.Sprintf("idx:%d", *tc.Index)
			}
			if key == "" {
				continue
			}
			existing, ok := toolCalls[key]
			if !ok {
				copyTC := tc
				toolCalls[key] = &copyTC
				toolOrder = append(toolOrder, key)
				continue
			}
			if tc.Function.Name != "" {
				existing.Function.Name = tc.Function.Name
			}
			if tc.ID != "" {
				existing.ID = tc.ID
			}
			existing.Function.Arguments += tc.Function.Arguments
		}

		if chunk.ResponseMeta != nil && chunk.ResponseMeta.FinishReason != "" {
			finishReason = chunk.ResponseMeta.FinishReason
		}
	}

	msg := &schema.Message{Role: schema.Assistant, Content: content.String()}
	for _, key := range toolOrder {
		msg.ToolCalls = append(msg.ToolCalls, *toolCalls[key])
	}

	switch finishReason {
	case "", "stop", "end_turn":
		if len(msg.ToolCalls) > 0 {
			finishReason = "tool-calls"
		} else {
			finishReason = "stop"
		}
	case "tool_use", "tool_calls":
		finishReason = "tool-calls"
	case "max_tokens", "length":
		finishReason = "max_tokens"
	}

	return msg, finishReason, nil
}
