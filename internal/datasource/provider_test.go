package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModeSynonym(t *testing.T) {
	m, err := ParseMode("from_db")
	require.NoError(t, err)
	assert.Equal(t, ModeAll, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAll, m)
}

func TestParseModeKnownValues(t *testing.T) {
	for _, s := range []string{"all", "include", "exclude", "none"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, Mode(s), m)
	}
}

func TestParseModeRejectsUnknown(t *testing.T) {
	_, err := ParseMode("bogus")
	assert.Error(t, err)
}

func TestFilterByMode(t *testing.T) {
	names := []string{"a", "b", "c"}
	list := map[string]struct{}{"b": {}}

	assert.Equal(t, []string{"a", "b", "c"}, filterByMode(names, ModeAll, list))
	assert.Equal(t, []string{"b"}, filterByMode(names, ModeInclude, list))
	assert.Equal(t, []string{"a", "c"}, filterByMode(names, ModeExclude, list))
}

func TestDatasourcesReturnsEmptyForModeNone(t *testing.T) {
	p := NewProvider(nil, ModeNone, nil, false)
	assert.Empty(t, p.Datasources(nil, nil))
}
