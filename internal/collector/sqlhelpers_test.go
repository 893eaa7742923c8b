package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtoiOrZero(t *testing.T) {
	assert.Equal(t, 42, atoiOrZero("42"))
	assert.Equal(t, 0, atoiOrZero(""))
	assert.Equal(t, 0, atoiOrZero("not-a-number"))
}

func TestAtofOrZero(t *testing.T) {
	assert.Equal(t, 3.14, atofOrZero("3.14"))
	assert.Equal(t, 0.0, atofOrZero(""))
	assert.Equal(t, 0.0, atofOrZero("garbage"))
}

func TestBoolLabel(t *testing.T) {
	assert.Equal(t, "true", boolLabel(true))
	assert.Equal(t, "false", boolLabel(false))
}
