package permission

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/dexto-ai/dexto-core/internal/event"
	"github.com/dexto-ai/dexto-core/internal/storage/provider"
)

// approvalRecord is what gets persisted per session under the
// "allowedTools" purpose: the permission types approved outright and the
// bash patterns approved for that session.
type approvalRecord struct {
	Types    map[PermissionType]bool `json:"types"`
	Patterns map[string]bool         `json:"patterns"`
}

// Checker handles permission checks and approvals. Its "approved" state is
// backed by a Key/Value Storage Provider (purpose "allowedTools") instead of
// a pure in-memory map, per SPEC_FULL.md's tool-approval supplement, so an
// "always" grant survives a process restart; pending ask/respond channels
// stay in-memory since they only make sense within one running process.
type Checker struct {
	kv *provider.KV

	mu      sync.Mutex
	pending map[string]chan Response // requestID -> response channel

	globalBus *event.Bus
}

// NewChecker creates a new permission checker over kv, the Key/Value
// Provider for purpose "allowedTools", forwarding ask/resolve notifications
// onto globalBus.
func NewChecker(kv *provider.KV, globalBus *event.Bus) *Checker {
	return &Checker{
		kv:        kv,
		pending:   make(map[string]chan Response),
		globalBus: globalBus,
	}
}

func (c *Checker) load(ctx context.Context, sessionID string) (approvalRecord, error) {
	rec := approvalRecord{Types: map[PermissionType]bool{}, Patterns: map[string]bool{}}
	raw, ok, err := c.kv.Get(ctx, sessionID)
	if err != nil {
		return rec, err
	}
	if !ok {
		return rec, nil
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return rec, err
	}
	if rec.Types == nil {
		rec.Types = map[PermissionType]bool{}
	}
	if rec.Patterns == nil {
		rec.Patterns = map[string]bool{}
	}
	return rec, nil
}

func (c *Checker) save(ctx context.Context, sessionID string, rec approvalRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.kv.Set(ctx, sessionID, raw, 0)
}

// Check performs a permission check based on action configuration.
func (c *Checker) Check(ctx context.Context, req Request, action PermissionAction) error {
	switch action {
	case ActionAllow:
		return nil
	case ActionDeny:
		return &RejectedError{
			SessionID: req.SessionID,
			Type:      req.Type,
			CallID:    req.CallID,
			Metadata:  req.Metadata,
			Message:   "Permission denied by configuration",
		}
	case ActionAsk:
		return c.Ask(ctx, req)
	}
	return nil
}

// Ask prompts the user for permission, short-circuiting if the session
// already carries a persisted "always" approval for this type or pattern
// set.
func (c *Checker) Ask(ctx context.Context, req Request) error {
	rec, err := c.load(ctx, req.SessionID)
	if err != nil {
		return err
	}
	if rec.Types[req.Type] {
		return nil
	}
	if len(req.Pattern) > 0 {
		allApproved := true
		for _, p := range req.Pattern {
			if !rec.Patterns[p] {
				allApproved = false
				break
			}
		}
		if allApproved {
			return nil
		}
	}

	if req.ID == "" {
		req.ID = ulid.Make().String()
	}

	respChan := make(chan Response, 1)
	c.mu.Lock()
	c.pending[req.ID] = respChan
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	c.globalBus.Emit(event.Event{
		Name: PermissionRequired,
		Payload: RequiredPayload{
			ID:        req.ID,
			SessionID: req.SessionID,
			Type:      string(req.Type),
			Pattern:   req.Pattern,
			Title:     req.Title,
		},
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case resp := <-respChan:
		switch resp.Action {
		case "once":
			return nil
		case "always":
			return c.approve(ctx, req.SessionID, req.Type, req.Pattern)
		case "reject":
			return &RejectedError{
				SessionID: req.SessionID,
				Type:      req.Type,
				CallID:    req.CallID,
				Metadata:  req.Metadata,
				Message:   "Permission rejected by user",
			}
		}
	}
	return nil
}

// Respond handles a user's response to a permission request.
func (c *Checker) Respond(requestID string, action string) {
	c.mu.Lock()
	ch, ok := c.pending[requestID]
	c.mu.Unlock()

	if ok {
		ch <- Response{RequestID: requestID, Action: action}
	}

	c.globalBus.Emit(event.Event{
		Name:    PermissionResolved,
		Payload: ResolvedPayload{ID: requestID, Granted: action != "reject"},
	})
}

// approve persists a permission type and its patterns as approved for a
// session.
func (c *Checker) approve(ctx context.Context, sessionID string, permType PermissionType, patterns []string) error {
	rec, err := c.load(ctx, sessionID)
	if err != nil {
		return err
	}
	rec.Types[permType] = true
	for _, p := range patterns {
		rec.Patterns[p] = true
	}
	return c.save(ctx, sessionID, rec)
}

// IsApproved reports whether permType is already approved for sessionID.
func (c *Checker) IsApproved(ctx context.Context, sessionID string, permType PermissionType) (bool, error) {
	rec, err := c.load(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return rec.Types[permType], nil
}

// IsPatternApproved reports whether pattern is already approved for
// sessionID.
func (c *Checker) IsPatternApproved(ctx context.Context, sessionID string, pattern string) (bool, error) {
	rec, err := c.load(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return rec.Patterns[pattern], nil
}

// ApprovePattern explicitly approves a pattern for a session.
func (c *Checker) ApprovePattern(ctx context.Context, sessionID string, pattern string) error {
	rec, err := c.load(ctx, sessionID)
	if err != nil {
		return err
	}
	rec.Patterns[pattern] = true
	return c.save(ctx, sessionID, rec)
}

// ClearSession clears all persisted approvals for a session.
func (c *Checker) ClearSession(ctx context.Context, sessionID string) error {
	_, err := c.kv.Delete(ctx, sessionID)
	return err
}
