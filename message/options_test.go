package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxAgeRoundTripsThroughEncodeUint32(t *testing.T) {
	var o Options
	_, ok := o.MaxAgeValue()
	require.False(t, ok)

	o.SetMaxAge(0)
	v, ok := o.MaxAgeValue()
	require.True(t, ok)
	assert.Equal(t, uint32(0), v)
	assert.Empty(t, o.MaxAge, "0 is the shortest EncodeUint32 representation: zero bytes")

	o.SetMaxAge(60)
	v, ok = o.MaxAgeValue()
	require.True(t, ok)
	assert.Equal(t, uint32(60), v)

	o.SetMaxAge(1 << 20)
	v, ok = o.MaxAgeValue()
	require.True(t, ok)
	assert.Equal(t, uint32(1<<20), v)
}

func TestObserveRoundTripsThroughEncodeUint32(t *testing.T) {
	var o Options
	o.SetObserve(7)
	v, ok := o.ObserveValue()
	require.True(t, ok)
	assert.Equal(t, uint32(7), v)
}

func TestUriPortRoundTripsThroughEncodeUint32(t *testing.T) {
	var o Options
	o.SetUriPort(5683)
	v, ok := o.UriPortValue()
	require.True(t, ok)
	assert.Equal(t, uint32(5683), v)
}
