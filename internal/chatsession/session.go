package chatsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/dexto-ai/dexto-core/internal/event"
	"github.com/dexto-ai/dexto-core/internal/history"
	"github.com/dexto-ai/dexto-core/internal/provider"
	"github.com/dexto-ai/dexto-core/pkg/chatmsg"
)

// Defaults for the tool-calling loop's safety bound and LM retry behavior.
const (
	DefaultMaxIterations = 50
	retryMaxRetries      = 3
	retryInitialInterval = time.Second
	retryMaxInterval     = 30 * time.Second
	retryMaxElapsedTime  = 2 * time.Minute
)

// LLMService is the object capability a Chat Session calls into for each LM
// round trip, narrowed from the conceptual completeTask/getAllTools/getConfig
// surface to the single-call primitive the loop actually drives (the loop
// itself performs the multi-step completion). *provider.CompletionService
// is the production implementation; tests substitute a fake.
type LLMService interface {
	Complete(ctx context.Context, messages []*schema.Message, tools []*schema.ToolInfo, onChunk func(delta string)) (*schema.Message, string, error)
	Config() provider.Config
	SetConfig(cfg provider.Config)
}

var _ LLMService = (*provider.CompletionService)(nil)

// Options configures a new Session. History, GlobalBus, and Completion are
// required; everything else has a spec-mandated default.
type Options struct {
	ID            string
	GlobalBus     *event.Bus
	History       *history.History
	Completion    LLMService
	ToolSources   []ToolSource
	SystemPrompt  string
	MaxIterations int
	Log           zerolog.Logger
}

// Session is a single Chat Session: one conversation's tool-calling loop,
// message history, and LM configuration.
type Session struct {
	mu sync.Mutex

	id            string
	localBus      *event.Bus
	globalBus     *event.Bus
	forwardHandle *event.Handle

	messages      *messageManager
	completion    LLMService
	toolSources   []ToolSource
	maxIterations int

	initialized bool
	disposed    bool
	log         zerolog.Logger
}

// New constructs a Session. Callers must call Init before Run.
func New(opts Options) *Session {
	id := opts.ID
	if id == "" {
		id = ulid.Make().String()
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	log := opts.Log.With().Str("component", "chat_session").Str("sessionId", id).Logger()

	return &Session{
		id:            id,
		globalBus:     opts.GlobalBus,
		completion:    opts.Completion,
		toolSources:   opts.ToolSources,
		maxIterations: maxIter,
		log:           log,
		messages: newMessageManager(
			id,
			opts.History,
			NewTokenizer(opts.Completion.Config().Provider),
			NewFormatter(opts.Completion.Config().Router),
			opts.SystemPrompt,
		),
	}
}

// ID returns the session's identity.
func (s *Session) ID() string { return s.id }

// Init acquires the Session's local bus and wires forwarding onto the
// global bus. An initialization failure is fatal: a Session that fails
// Init must be discarded, not retried in place.
func (s *Session) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	if s.globalBus == nil || s.completion == nil {
		return fmt.Errorf("chat session: missing required collaborator")
	}
	s.localBus = event.New(s.log)
	s.forwardHandle = event.Forward(s.localBus, s.globalBus, s.id)
	s.initialized = true
	return nil
}

// Run executes one user turn: push the user message, then drive the
// tool-calling loop until the LM returns terminal text or maxIterations is
// exhausted.
func (s *Session) Run(ctx context.Context, userText string, imageData []byte) (string, error) {
	if !s.initialized {
		return "", fmt.Errorf("chat session: Run called before Init")
	}

	userMsg := userTurnMessage(userText, imageData)
	if err := s.messages.append(ctx, userMsg); err != nil {
		return "", err
	}

	s.localBus.Emit(event.Event{Name: event.LLMServiceThinking, Payload: event.ThinkingPayload{}})

	cfg := s.completion.Config()

	for iter := 0; iter < s.maxIterations; iter++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		formatted, err := s.messages.formatted(ctx)
		if err != nil {
			s.emitError(err.Error(), "load history", false)
			return "", err
		}

		tools, owners, err := mergeTools(ctx, s.toolSources, s.log)
		if err != nil {
			s.emitError(err.Error(), "resolve tools", false)
			return "", err
		}
		toolInfos := toProviderToolInfos(tools)

		assistant, finishReason, err := s.completeWithRetry(ctx, formatted, toolInfos)
		if err != nil {
			s.emitError(err.Error(), "llm completion", false)
			return "", err
		}

		switch finishReason {
		case "tool-calls":
			assistantMsg := provider.FromEinoMessage(assistant)
			if err := s.messages.append(ctx, assistantMsg); err != nil {
				s.emitError(err.Error(), "save assistant turn", false)
				return "", err
			}
			if err := s.executeToolCalls(ctx, assistantMsg, owners); err != nil {
				s.log.Warn().Err(err).Msg("tool execution error did not stop the loop")
			}
			continue

		case "max_tokens":
			s.emitError("output length limit reached", "llm completion", true)
			return assistant.Content, nil

		default: // "stop" and anything unrecognized
			tokenCount, _ := s.messages.tokenCount(ctx)
			if err := s.messages.append(ctx, chatmsg.Text(chatmsg.RoleAssistant, assistant.Content)); err != nil {
				return "", err
			}
			s.localBus.Emit(event.Event{Name: event.LLMServiceResponse, Payload: event.ResponsePayload{
				Text:       assistant.Content,
				TokenCount: tokenCount,
				Model:      cfg.Model,
			}})
			return assistant.Content, nil
		}
	}

	err := fmt.Errorf("chat session: max iterations (%d) exceeded", s.maxIterations)
	s.emitError(err.Error(), "tool loop", false)
	return "", err
}

// completeWithRetry wraps CompletionService.Complete with an
// exponential-backoff-with-jitter retry policy, streaming chunks onto the
// local bus as they arrive.
func (s *Session) completeWithRetry(
	ctx context.Context,
	messages []*schema.Message,
	tools []*schema.ToolInfo,
) (*schema.Message, string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = retryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	retrier := backoff.WithContext(backoff.WithMaxRetries(b, retryMaxRetries), ctx)

	for {
		assistant, finishReason, err := s.completion.Complete(ctx, messages, tools, func(delta string) {
			s.localBus.Emit(event.Event{Name: event.LLMServiceChunk, Payload: event.ChunkPayload{Text: delta}})
		})
		if err == nil {
			return assistant, finishReason, nil
		}

		next := retrier.NextBackOff()
		if next == backoff.Stop {
			return nil, "", err
		}
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-time.After(next):
		}
	}
}

// executeToolCalls runs every tool call in assistantMsg against the owning
// ToolSource, appending a tool-result message per call. A tool failure is
// caught and surfaced as the LM-visible result, not thrown.
func (s *Session) executeToolCalls(ctx context.Context, assistantMsg chatmsg.Message, owners map[string]ToolSource) error {
	var firstErr error
	for _, call := range assistantMsg.ToolCalls() {
		callID := call.ToolCallID
		s.localBus.Emit(event.Event{Name: event.LLMServiceToolCall, Payload: event.ToolCallPayload{
			ToolName: call.ToolName,
			Args:     call.ToolArgs,
			CallID:   callID,
		}})

		owner, ok := owners[call.ToolName]
		var result string
		var toolErr error
		if !ok {
			toolErr = fmt.Errorf("no tool source provides %q", call.ToolName)
		} else {
			result, toolErr = owner.ExecuteTool(ctx, call.ToolName, call.ToolArgs)
		}

		success := toolErr == nil
		if !success {
			result = toolErr.Error()
			if firstErr == nil {
				firstErr = toolErr
			}
		}

		s.localBus.Emit(event.Event{Name: event.LLMServiceToolResult, Payload: event.ToolResultPayload{
			ToolName: call.ToolName,
			Result:   result,
			CallID:   callID,
			Success:  success,
		}})

		if err := s.messages.append(ctx, chatmsg.ToolResult(callID, result, !success)); err != nil {
			return err
		}
	}
	return firstErr
}

// Messages returns the session's full message history, in chronological
// order. Used by the Session Manager's ForkSession (the session forking
// supplement) to take a prefix copy of a parent's history.
func (s *Session) Messages(ctx context.Context) ([]chatmsg.Message, error) {
	return s.messages.all(ctx)
}

// ImportMessages appends each of messages to this session's history, in
// order. Used by ForkSession to seed a freshly created session with a
// prefix copy of its parent's history, without running any of them through
// the tool-calling loop.
func (s *Session) ImportMessages(ctx context.Context, messages []chatmsg.Message) error {
	for _, msg := range messages {
		if err := s.messages.append(ctx, msg); err != nil {
			return fmt.Errorf("chat session: import message: %w", err)
		}
	}
	return nil
}

// Reset clears this session's history and emits the conversation-reset
// event, locally and globally.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.messages.reset(ctx); err != nil {
		return err
	}
	s.localBus.Emit(event.Event{Name: event.MessageManagerConversationReset, Payload: event.ConversationResetPayload{}})
	// SaikiConversationReset is a translated-name event (messageManager:* locally,
	// saiki:* globally), so it bypasses Forward's same-name relay and is emitted
	// here directly with sessionId attribution.
	s.globalBus.Emit(event.Event{Name: event.SaikiConversationReset, Payload: map[string]any{"sessionId": s.id}})
	return nil
}

// SwitchLLM applies newConfig, rebuilding the tokenizer only if the provider
// changed and the formatter only if the router changed, then emits
// llmservice:switched.
func (s *Session) SwitchLLM(newConfig provider.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.completion.Config()
	if old.Provider != newConfig.Provider {
		s.messages.tokenizer = NewTokenizer(newConfig.Provider)
	}
	if old.Router != newConfig.Router {
		s.messages.formatter = NewFormatter(newConfig.Router)
	}
	s.completion.SetConfig(newConfig)

	s.localBus.Emit(event.Event{Name: event.LLMServiceSwitched, Payload: event.SwitchedPayload{
		NewConfig:       newConfig,
		Router:          newConfig.Router,
		HistoryRetained: true,
	}})
}

// Dispose detaches this session's local-to-global forwarding. Idempotent.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	if s.forwardHandle != nil {
		s.forwardHandle.Cancel()
	}
	if s.localBus != nil {
		s.localBus.Close()
	}
	s.disposed = true
}

func (s *Session) emitError(message, context string, recoverable bool) {
	s.localBus.Emit(event.Event{Name: event.LLMServiceError, Payload: event.ErrorPayload{
		Message:     message,
		Context:     context,
		Recoverable: recoverable,
	}})
}

func userTurnMessage(text string, imageData []byte) chatmsg.Message {
	if len(imageData) == 0 {
		return chatmsg.Text(chatmsg.RoleUser, text)
	}
	parts := []chatmsg.Part{chatmsg.TextPart(text)}
	parts = append(parts, chatmsg.Part{Type: chatmsg.PartImage, ImageData: imageData})
	return chatmsg.WithParts(chatmsg.RoleUser, parts...)
}
