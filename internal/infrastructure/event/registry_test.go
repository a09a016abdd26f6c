package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	a := newTestHandler()
	b := newTestHandler()
	wild := newTestHandler()

	r.Register(a, "x", "y")
	r.Register(a, "x")
	r.Register(b, "x")
	r.Register(wild)
	r.Register(wild)

	assert.Len(t, r.GetHandlers("x"), 3)
	assert.Len(t, r.GetHandlers("y"), 2)
	assert.Len(t, r.GetHandlers("z"), 1)
	assert.Equal(t, []string{"x", "y"}, r.EventTypes())

	r.Unregister(a)
	assert.Len(t, r.GetHandlers("x"), 2)
	assert.Equal(t, []string{"x"}, r.EventTypes())

	r.Unregister(wild)
	assert.Empty(t, r.GetHandlers("z"))
}
