package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerRegistry_Register(t *testing.T) {
	registry := NewHandlerRegistry()
	specific := newTestHandler()
	wildcard := newTestHandler()

	registry.Register(specific, "listing.created", "listing.updated")
	registry.Register(wildcard)

	assert.Equal(t, []any{specific, wildcard}, toAny(registry.GetHandlers("listing.created")))
	assert.Len(t, registry.GetHandlers("listing.updated"), 2)
	assert.Equal(t, []any{wildcard}, toAny(registry.GetHandlers("listing.deleted")))
	assert.Equal(t, 2, registry.Len())
}

func TestHandlerRegistry_Unregister(t *testing.T) {
	registry := NewHandlerRegistry()
	h1 := newTestHandler()
	h2 := newTestHandler()
	wildcard := newTestHandler()

	registry.Register(h1, "message.sent")
	registry.Register(h2, "message.sent")
	registry.Register(wildcard)

	registry.Unregister(h1)
	registry.Unregister(wildcard)

	handlers := registry.GetHandlers("message.sent")
	assert.Len(t, handlers, 1)
	assert.Same(t, h2, handlers[0])

	registry.Unregister(h2)
	assert.Empty(t, registry.GetHandlers("message.sent"))
	assert.Zero(t, registry.Len())
}

func toAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
