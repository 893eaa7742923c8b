package collector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSkewRatioBalanced(t *testing.T) {
	assert.Equal(t, 1.0, skewRatio(map[string]float64{"h1": 10, "h2": 10}))
}

func TestSkewRatioImbalanced(t *testing.T) {
	assert.Equal(t, 2.0, skewRatio(map[string]float64{"h1": 20, "h2": 0}))
}

func TestSkewRatioEmpty(t *testing.T) {
	assert.Equal(t, 0.0, skewRatio(map[string]float64{}))
}

func TestSkewRatioAllZero(t *testing.T) {
	assert.Equal(t, 1.0, skewRatio(map[string]float64{"h1": 0, "h2": 0}))
}

func TestSkewRatioZeroMeanNonZeroMax(t *testing.T) {
	assert.True(t, math.IsInf(skewRatio(map[string]float64{"h1": 5, "h2": -5}), 1))
}
