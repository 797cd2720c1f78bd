package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlatform struct{ s string }

func (f fakePlatform) Describe() string { return f.s }

func TestProductInfo_ComposesWithAndWithoutUserTag(t *testing.T) {
	p := NewProductInfo(fakePlatform{"linux/amd64"})
	assert.Equal(t, "deviceclient/1.0.0 (linux/amd64)", p.String())

	p.SetUserTag("myapp/2.0")
	assert.Equal(t, "myapp/2.0 deviceclient/1.0.0 (linux/amd64)", p.String())
}

func TestSampler_RejectsOutOfRangePercentage(t *testing.T) {
	s := NewSampler()
	assert.Error(t, s.SetPercentage(-1))
	assert.Error(t, s.SetPercentage(101))
}

func TestSampler_ResetsCounterOnSetPercentage(t *testing.T) {
	s := NewSampler()
	require.NoError(t, s.SetPercentage(100))
	s.ShouldSample()
	s.ShouldSample()
	require.NoError(t, s.SetPercentage(50))
	assert.Equal(t, 0, s.counter)
}

func TestSampler_ZeroPercentNeverSamples(t *testing.T) {
	s := NewSampler()
	require.NoError(t, s.SetPercentage(0))
	for i := 0; i < 10; i++ {
		assert.False(t, s.ShouldSample())
	}
}

func TestSampler_HundredPercentAlwaysSamples(t *testing.T) {
	s := NewSampler()
	require.NoError(t, s.SetPercentage(100))
	for i := 0; i < 10; i++ {
		assert.True(t, s.ShouldSample())
	}
}
