// Package chatsession implements the Chat Session: the per-conversation
// runtime that owns a local event bus forwarding onto a
// global bus, a message manager (history + tokenizer + formatter), and an LM
// service capability, and that drives the agentic tool-calling loop between
// them.
//
// The loop drives completion, tool dispatch, and retry over the
// wire-independent pkg/chatmsg message shape, publishing progress onto a
// local bus that Forward re-emits onto the global one (internal/event).
package chatsession
