package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBannerGreengage(t *testing.T) {
	raw := "PostgreSQL 9.4.26 (Greengage Database 6.21.0 build commit:abcdef1234) on x86_64-pc-linux-gnu"
	v, err := parseBanner(raw)
	require.NoError(t, err)
	assert.Equal(t, 6, v.Major)
	assert.Equal(t, 21, v.Minor)
	assert.Equal(t, 0, v.Patch)
	assert.Equal(t, raw, v.Raw)
}

func TestParseBannerV7(t *testing.T) {
	raw := "PostgreSQL 12.12 (Greengage Database 7.1.0+dev.1 build dev) on x86_64-pc-linux-gnu"
	v, err := parseBanner(raw)
	require.NoError(t, err)
	assert.True(t, v.IsAtLeastV7())
	assert.True(t, v.IsSupported())
}

func TestParseBannerRejectsGarbage(t *testing.T) {
	_, err := parseBanner("not a version string")
	assert.Error(t, err)
}

func TestVersionIsSupported(t *testing.T) {
	assert.True(t, Version{Major: 6}.IsSupported())
	assert.True(t, Version{Major: 7}.IsSupported())
	assert.False(t, Version{Major: 5}.IsSupported())
}
