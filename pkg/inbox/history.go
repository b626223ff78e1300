package inbox

import (
	"context"
	"encoding/json"
	"fmt"
)

// DefaultHistoryCapacity is the number of entries kept on the client.
const DefaultHistoryCapacity = 100

// History is a bounded, most-recent-first list of entries stored under one
// key. Saving more than the capacity drops the oldest entries. Values
// cross the KV boundary as JSON only.
type History struct {
	kv       KV
	key      string
	capacity int
}

func NewHistory(kv KV, key string, capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{kv: kv, key: key, capacity: capacity}
}

func (h *History) Capacity() int {
	return h.capacity
}

// Load returns the stored entries; a missing key yields none.
func (h *History) Load(ctx context.Context) ([]Entry, error) {
	raw, ok, err := h.kv.Get(ctx, h.key)
	if err != nil || !ok {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return h.trim(entries), nil
}

func (h *History) Save(ctx context.Context, entries []Entry) error {
	raw, err := json.Marshal(h.trim(entries))
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return h.kv.Set(ctx, h.key, raw)
}

func (h *History) Clear(ctx context.Context) error {
	return h.kv.Delete(ctx, h.key)
}

func (h *History) trim(entries []Entry) []Entry {
	if len(entries) > h.capacity {
		return entries[:h.capacity]
	}
	return entries
}
