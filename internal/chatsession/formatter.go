package chatsession

import (
	"github.com/cloudwego/eino/schema"

	"github.com/dexto-ai/dexto-core/internal/provider"
	"github.com/dexto-ai/dexto-core/pkg/chatmsg"
)

// Formatter renders the Core's wire-independent history into a provider's
// wire shape. switchLLM only rebuilds this when the router changes (spec
// §4.7); different routers may format the same history differently (e.g. a
// future router that inlines tool results into the text body instead of a
// tool-role message).
type Formatter interface {
	Format(system string, messages []chatmsg.Message) []*schema.Message
}

// defaultFormatter renders history straight through provider.ToEinoMessages,
// prefixing a system message when one is supplied. It is the only router
// this Core ships; NewFormatter exists so switchLLM has a real seam to swap
// on router change.
type defaultFormatter struct{}

// NewFormatter returns the Formatter for the named router.
func NewFormatter(router string) Formatter {
	return defaultFormatter{}
}

func (defaultFormatter) Format(system string, messages []chatmsg.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages)+1)
	if system != "" {
		out = append(out, &schema.Message{Role: schema.System, Content: system})
	}
	out = append(out, provider.ToEinoMessages(messages)...)
	return out
}
