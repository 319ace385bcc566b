// Package agentcore implements the Agent Façade: a thin
// adaptor exposing run/reset/switchLLM/listSessions/endSession and
// subscribe/unsubscribe on the global event bus. All logic lives in the
// Chat Session (C7) and Session Manager (C8); this package only resolves
// which session a call targets and forwards to it.
package agentcore
