package sessionmgr

import "time"

// Metadata is the persisted record for one session, stored through the
// Session Provider (C3) under the "sessions" purpose. TTL is carried
// alongside the data so a restart can tell how long a restored session
// should live without re-deriving it from config.
type Metadata struct {
	ID           string        `json:"id"`
	CreatedAt    int64         `json:"createdAt"`
	LastActivity int64         `json:"lastActivity"`
	MessageCount int           `json:"messageCount"`
	TTL          time.Duration `json:"ttl"`

	// ParentID is set on a session created by ForkSession, naming the
	// session it was forked from. Empty for every non-forked session.
	ParentID string `json:"parentId,omitempty"`
}

func (m Metadata) expired(now time.Time) bool {
	if m.TTL <= 0 {
		return false
	}
	return now.UnixMilli()-m.LastActivity > m.TTL.Milliseconds()
}

// Stats is the snapshot returned by GetSessionStats.
type Stats struct {
	TotalSessions    int           `json:"totalSessions"`
	InMemorySessions int           `json:"inMemorySessions"`
	MaxSessions      int           `json:"maxSessions"`
	SessionTTL       time.Duration `json:"sessionTTL"`
}
