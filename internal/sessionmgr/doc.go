// Package sessionmgr implements the Session Manager: the in-memory map of
// live Chat Sessions plus a Session Provider for
// metadata persistence, lazy hydration, a TTL sweep, and LM-switch fan-out
// across every live session.
//
// The live-session map is a mutex-guarded map[string]*chatsession.Session,
// keyed by a ulid-based session id.
package sessionmgr
