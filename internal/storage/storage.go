// Package storage provides durable key-value slots for client state.
//
// A Slot holds whole serialized values; callers write the complete structure in
// a single Set so readers never observe a torn value. Slots give no cross-writer
// coordination: two processes sharing a slot race with last-write-wins.
package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidKey is returned for keys a slot cannot address.
var ErrInvalidKey = errors.New("storage: invalid key")

// Slot is the storage port used by the transcript store.
type Slot interface {
	// Get returns the stored value; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set replaces the value under key.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Namespaced scopes every key of slot under prefix, so several profiles can share
// one backing slot.
func Namespaced(slot Slot, prefix string) Slot {
	return &namespaced{slot: slot, prefix: strings.TrimSuffix(prefix, ":") + ":"}
}

type namespaced struct {
	slot   Slot
	prefix string
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.slot.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.slot.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.slot.Delete(ctx, n.prefix+key)
}

func validKey(key string) bool {
	return strings.TrimSpace(key) != ""
}
