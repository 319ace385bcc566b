package chatsession

import "github.com/dexto-ai/dexto-core/pkg/chatmsg"

// Tokenizer estimates the token cost of a message sequence for the active
// provider/model, used by switchLLM's "only rebuild if the provider changed"
// optimization and for the token count reported with each response.
type Tokenizer interface {
	CountTokens(messages []chatmsg.Message) int
}

// heuristicTokenizer approximates token count as roughly four characters per
// token, the common estimate used when no provider-specific tokenizer is
// available. No pack example vendors a real tokenizer (no tiktoken-go or
// equivalent appears in any go.mod across the retrieval pack), so this stays
// on a plain heuristic rather than reaching for a library that isn't there.
type heuristicTokenizer struct{}

// NewTokenizer returns the default heuristic Tokenizer for provider.
func NewTokenizer(providerID string) Tokenizer {
	return heuristicTokenizer{}
}

func (heuristicTokenizer) CountTokens(messages []chatmsg.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.PlainText())
		for _, p := range m.Parts {
			chars += len(p.ToolArgs) + len(p.ToolResult)
		}
	}
	return (chars + 3) / 4
}
