package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dexto-ai/dexto-core/internal/storage/backend"
)

// Collection is the append-only Collection Provider:
// add/getAll/find/remove/count/clear/close, preserving chronological
// insertion order. It always uses the backend's native list operations
// (LPush/LRange/...), which every Backend implementation in this module
// supports; there is no single-document fallback.
type Collection struct {
	be  backend.Backend
	key string
}

// NewCollection constructs a Collection Provider over be, storing its items
// under the single list key (e.g. "messages:<sessionId>").
func NewCollection(be backend.Backend, key string) *Collection {
	return &Collection{be: be, key: key}
}

func (c *Collection) Add(ctx context.Context, item any) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("provider/collection: marshal: %w", err)
	}
	return c.be.LPush(ctx, c.key, data)
}

// GetAll returns every stored item in insertion order, unmarshaled into out
// which must be a pointer to a slice.
func (c *Collection) GetAll(ctx context.Context, out any) error {
	n, err := c.be.LLen(ctx, c.key)
	if err != nil {
		return err
	}
	items, err := c.be.LRange(ctx, c.key, 0, n-1)
	if err != nil {
		return err
	}
	return decodeItems(items, out)
}

// Find returns every item matching predicate, in insertion order. predicate
// is given the raw JSON of each item since the Provider does not know the
// concrete item type.
func (c *Collection) Find(ctx context.Context, predicate func(raw json.RawMessage) bool) ([]json.RawMessage, error) {
	n, err := c.be.LLen(ctx, c.key)
	if err != nil {
		return nil, err
	}
	items, err := c.be.LRange(ctx, c.key, 0, n-1)
	if err != nil {
		return nil, err
	}
	var out []json.RawMessage
	for _, it := range items {
		raw := json.RawMessage(it)
		if predicate(raw) {
			out = append(out, raw)
		}
	}
	return out, nil
}

// Remove deletes every item matching predicate and rewrites the remainder,
// returning how many were removed.
func (c *Collection) Remove(ctx context.Context, predicate func(raw json.RawMessage) bool) (int, error) {
	n, err := c.be.LLen(ctx, c.key)
	if err != nil {
		return 0, err
	}
	items, err := c.be.LRange(ctx, c.key, 0, n-1)
	if err != nil {
		return 0, err
	}
	kept := items[:0]
	removed := 0
	for _, it := range items {
		if predicate(json.RawMessage(it)) {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	if removed == 0 {
		return 0, nil
	}
	if _, err := c.be.Delete(ctx, c.key); err != nil {
		return 0, err
	}
	if len(kept) > 0 {
		if err := c.be.LPush(ctx, c.key, kept...); err != nil {
			return 0, err
		}
	}
	return removed, nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.be.LLen(ctx, c.key)
}

func (c *Collection) Clear(ctx context.Context) error {
	_, err := c.be.Delete(ctx, c.key)
	return err
}

func (c *Collection) Close(ctx context.Context) error {
	return nil
}

func decodeItems(items [][]byte, out any) error {
	arr := make([]json.RawMessage, len(items))
	for i, it := range items {
		arr[i] = it
	}
	data, err := json.Marshal(arr)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
