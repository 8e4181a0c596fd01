package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddElement(t *testing.T) {
	c := NewCache[string, string]()
	now := time.Now()

	elem := NewElement("elem", now.Add(time.Minute), nil)
	loadedElem, loaded := c.LoadOrStore("abcd", elem, now)
	require.False(t, loaded)
	require.Equal(t, "elem", loadedElem.Data())

	elem2 := NewElement("elem2", now.Add(time.Minute), nil)
	loadedElem2, loaded2 := c.LoadOrStore("abcdefg", elem2, now)
	require.False(t, loaded2)
	require.Equal(t, "elem2", loadedElem2.Data())

	elem3 := NewElement("elem3", now.Add(time.Minute), nil)
	loadedElem3, loaded3 := c.LoadOrStore("abcd", elem3, now)
	require.True(t, loaded3)
	require.Equal(t, "elem", loadedElem3.Data())
}

func TestLoadElement(t *testing.T) {
	c := NewCache[string, string]()
	now := time.Now()

	_, loaded := c.Load("abcd", now)
	require.False(t, loaded)

	elem := NewElement("elem", now.Add(time.Minute), nil)
	c.LoadOrStore("abcd", elem, now)

	loadedElem, loaded := c.Load("abcd", now)
	require.True(t, loaded)
	require.Equal(t, "elem", loadedElem.Data())
}

func TestDeleteElement(t *testing.T) {
	c := NewCache[string, string]()
	now := time.Now()

	elem := NewElement("elem", now.Add(time.Minute), nil)
	c.LoadOrStore("abcd", elem, now)

	_, loaded := c.Load("abcd", now)
	require.True(t, loaded)

	require.True(t, c.Delete("abcd"))
	_, loaded = c.Load("abcd", now)
	require.False(t, loaded)
	require.False(t, c.Delete("abcd"))
}

func TestElementExpiration(t *testing.T) {
	expirationInvoked := false
	c := NewCache[string, string]()
	now := time.Now()

	elem := NewElement("elem", now.Add(time.Second), func(string) {
		expirationInvoked = true
	})
	c.LoadOrStore("abcd", elem, now)

	// never expires on its own
	never := NewElement("forever", time.Time{}, nil)
	c.LoadOrStore("abcdef", never, now)

	require.False(t, expirationInvoked)
	require.False(t, elem.IsExpired(now))
	require.True(t, elem.IsExpired(now.Add(2*time.Second)))

	c.CheckExpirations(now.Add(2 * time.Second))
	require.True(t, expirationInvoked)

	_, loaded := c.Load("abcd", now.Add(2*time.Second))
	require.False(t, loaded)

	_, loaded = c.Load("abcdef", now.Add(2*time.Second))
	require.True(t, loaded)
}

// TestLoadUsesCallerClockNotWallClock pins an element's expiry to a
// synthetic timeline with no relation to the real wall clock: it expires
// one simulated hour after a fixed, far-future now, and must still read
// back as live when queried half an hour after that same now. A Load/LoadOrStore that
// read time.Now() internally instead of the now passed in would either
// see the element as already expired (if the fixed now is in the past)
// or never expired (if read against the real clock), rather than judging
// expiry strictly against the caller-supplied now.
func TestLoadUsesCallerClockNotWallClock(t *testing.T) {
	c := NewCache[string, string]()
	farFuture := time.Date(2099, time.January, 1, 0, 0, 0, 0, time.UTC)

	elem := NewElement("elem", farFuture.Add(time.Hour), nil)
	_, loaded := c.LoadOrStore("abcd", elem, farFuture)
	require.False(t, loaded)

	loadedElem, loaded := c.Load("abcd", farFuture.Add(30*time.Minute))
	require.True(t, loaded)
	require.Equal(t, "elem", loadedElem.Data())

	_, loaded = c.Load("abcd", farFuture.Add(2*time.Hour))
	require.False(t, loaded)
}

func TestRangeFunction(t *testing.T) {
	c := NewCache[string, string]()
	now := time.Now()
	c.LoadOrStore("abcd", NewElement("elem", now.Add(time.Minute), nil), now)
	c.LoadOrStore("abcdef", NewElement("elem2", now.Add(time.Minute), nil), now)

	found := make(map[string]string)
	c.Range(func(key string, e *Element[string]) bool {
		found[key] = e.Data()
		return true
	})
	require.Equal(t, map[string]string{"abcd": "elem", "abcdef": "elem2"}, found)
}

func TestPullOutAll(t *testing.T) {
	c := NewCache[string, string]()
	now := time.Now()
	c.LoadOrStore("abcd", NewElement("elem", now.Add(time.Minute), nil), now)
	c.LoadOrStore("abcdef", NewElement("elem2", now.Add(time.Minute), nil), now)
	require.Equal(t, 2, c.Len())

	out := c.PullOutAll()
	require.Equal(t, map[string]string{"abcd": "elem", "abcdef": "elem2"}, out)
	require.Equal(t, 0, c.Len())
}
