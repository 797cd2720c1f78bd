package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_DispatchesRegisteredHandler(t *testing.T) {
	r := NewRouter()
	var got any
	r.Register("messageTimeout", func(v any) error {
		got = v
		return nil
	})
	require.NoError(t, r.Dispatch("messageTimeout", 1000))
	assert.Equal(t, 1000, got)
}

func TestRouter_FallbackHandlesUnknownNames(t *testing.T) {
	r := NewRouter()
	var gotName string
	var gotValue string
	r.SetFallback(func(name string, v any) error {
		gotName = name
		gotValue = v.(string)
		return nil
	})
	require.NoError(t, r.Dispatch("some_transport_option", "value"))
	assert.Equal(t, "some_transport_option", gotName)
	assert.Equal(t, "value", gotValue)
}

func TestRouter_NoHandlerNoFallbackErrors(t *testing.T) {
	r := NewRouter()
	assert.Error(t, r.Dispatch("anything", nil))
}

func TestRouter_RegisteredHandlerTakesPrecedenceOverFallback(t *testing.T) {
	r := NewRouter()
	calledRegistered := false
	calledFallback := false
	r.Register("logtrace", func(v any) error { calledRegistered = true; return nil })
	r.SetFallback(func(name string, v any) error { calledFallback = true; return nil })
	require.NoError(t, r.Dispatch("logtrace", true))
	assert.True(t, calledRegistered)
	assert.False(t, calledFallback)
}
