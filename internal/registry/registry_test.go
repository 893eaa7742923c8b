package registry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityIsOrderIndependent(t *testing.T) {
	a := Identity("m", prometheus.Labels{"x": "1", "y": "2"})
	b := Identity("m", prometheus.Labels{"y": "2", "x": "1"})
	assert.Equal(t, a, b)
}

func TestIdentityDiffersOnValue(t *testing.T) {
	a := Identity("m", prometheus.Labels{"x": "1"})
	b := Identity("m", prometheus.Labels{"x": "2"})
	assert.NotEqual(t, a, b)
}

func TestRegisterGaugeFuncIsIdempotent(t *testing.T) {
	r := New()

	id1, err := r.RegisterGaugeFunc("m", "help", prometheus.Labels{"k": "v"}, func() float64 { return 1 })
	require.NoError(t, err)

	id2, err := r.RegisterGaugeFunc("m", "help", prometheus.Labels{"k": "v"}, func() float64 { return 2 })
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, r.Len())
}

func TestRemoveIsTolerantOfUnknownIdentity(t *testing.T) {
	r := New()
	assert.False(t, r.Remove("nonexistent"))
}

func TestRemoveUnregistersMeter(t *testing.T) {
	r := New()
	id, err := r.RegisterGaugeFunc("m", "help", nil, func() float64 { return 1 })
	require.NoError(t, err)

	assert.True(t, r.Remove(id))
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Remove(id))
}

func TestRegisterCounterReturnsSameInstance(t *testing.T) {
	r := New()
	c1, err := r.RegisterCounter("c", "help", []string{"label"})
	require.NoError(t, err)
	c2, err := r.RegisterCounter("c", "help", []string{"label"})
	require.NoError(t, err)
	assert.Same(t, c1, c2)
}
