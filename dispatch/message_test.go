package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMessageDispatcher_InputDispatchPrefersExactRouteOverDefault checks
// that an exact input-name match wins over the default handler.
func TestMessageDispatcher_InputDispatchPrefersExactRouteOverDefault(t *testing.T) {
	d := NewMessageDispatcher(nil, nil)
	var invoked string

	require.NoError(t, d.RegisterInputRoute("alpha", func(body []byte, props map[string]string) Disposition {
		invoked = "H1"
		return DispositionAccepted
	}, nil))
	require.NoError(t, d.SetDefaultSyncHandler(func(body []byte, props map[string]string) Disposition {
		invoked = "H0"
		return DispositionAccepted
	}))

	invoked = ""
	ok := d.DispatchToInput("alpha", nil, nil)
	assert.True(t, ok)
	assert.Equal(t, "H1", invoked)

	invoked = ""
	ok = d.DispatchToInput("beta", nil, nil)
	assert.True(t, ok)
	assert.Equal(t, "H0", invoked)

	invoked = ""
	ok = d.DispatchDefault(nil, nil)
	assert.True(t, ok)
	assert.Equal(t, "H0", invoked)
}

func TestMessageDispatcher_NoHandlerReturnsFalse(t *testing.T) {
	d := NewMessageDispatcher(nil, nil)
	assert.False(t, d.DispatchDefault(nil, nil))
	assert.False(t, d.DispatchToInput("none", nil, nil))
}

func TestMessageDispatcher_ConflictingShapesRejected(t *testing.T) {
	d := NewMessageDispatcher(nil, nil)
	require.NoError(t, d.SetDefaultAsyncHandler(func(body []byte, props map[string]string) bool { return true }))
	err := d.SetDefaultSyncHandler(func(body []byte, props map[string]string) Disposition { return DispositionAccepted })
	assert.Error(t, err)
	// The async handler must remain in place.
	assert.True(t, d.HasDefaultHandler())
}

func TestMessageDispatcher_SubscribeCalledOnlyOnFirstRoute(t *testing.T) {
	subs := 0
	unsubs := 0
	d := NewMessageDispatcher(func() error { subs++; return nil }, func() error { unsubs++; return nil })

	require.NoError(t, d.RegisterInputRoute("a", func(body []byte, props map[string]string) Disposition { return DispositionAccepted }, nil))
	require.NoError(t, d.RegisterInputRoute("b", func(body []byte, props map[string]string) Disposition { return DispositionAccepted }, nil))
	assert.Equal(t, 1, subs)

	require.NoError(t, d.RegisterInputRoute("a", nil, nil))
	assert.Equal(t, 0, unsubs)
	require.NoError(t, d.RegisterInputRoute("b", nil, nil))
	assert.Equal(t, 1, unsubs)
}

func TestMessageDispatcher_SubscribeFailureTearsDownRegistry(t *testing.T) {
	d := NewMessageDispatcher(func() error { return assertErr }, nil)
	err := d.RegisterInputRoute("a", func(body []byte, props map[string]string) Disposition { return DispositionAccepted }, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, d.RouteCount())
}

var assertErr = &dispatchTestError{"subscribe failed"}

type dispatchTestError struct{ msg string }

func (e *dispatchTestError) Error() string { return e.msg }

// TestMessageDispatcher_ReplaceReplacesSameSlot checks that re-registering
// an existing name replaces handlers but keeps the same registry entry
// (no duplicate subscribe/unsubscribe cycle).
func TestMessageDispatcher_ReplaceReplacesSameSlot(t *testing.T) {
	subs := 0
	d := NewMessageDispatcher(func() error { subs++; return nil }, nil)
	require.NoError(t, d.RegisterInputRoute("a", func(body []byte, props map[string]string) Disposition { return DispositionAccepted }, nil))
	require.NoError(t, d.RegisterInputRoute("a", nil, func(body []byte, props map[string]string) bool { return true }))
	assert.Equal(t, 1, subs)
	assert.Equal(t, 1, d.RouteCount())

	ok := d.DispatchToInput("a", nil, nil)
	assert.True(t, ok)
}

func TestMessageDispatcher_LastMessageReceiveTime(t *testing.T) {
	d := NewMessageDispatcher(nil, nil)
	_, ok := d.LastMessageReceiveTime()
	assert.False(t, ok)

	fixed := time.Unix(1000, 0)
	d.SetNowFunc(func() time.Time { return fixed })
	require.NoError(t, d.SetDefaultSyncHandler(func(body []byte, props map[string]string) Disposition { return DispositionAccepted }))
	d.DispatchDefault(nil, nil)

	got, ok := d.LastMessageReceiveTime()
	assert.True(t, ok)
	assert.Equal(t, fixed, got)
}

func TestMessageDispatcher_SyncDispositionForwarded(t *testing.T) {
	d := NewMessageDispatcher(nil, nil)
	require.NoError(t, d.SetDefaultSyncHandler(func(body []byte, props map[string]string) Disposition {
		return DispositionRejected
	}))
	var got Disposition
	ok := d.DispatchDefaultWithDisposition(nil, nil, func(disp Disposition) { got = disp })
	assert.True(t, ok)
	assert.Equal(t, DispositionRejected, got)
}
