package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeSegmentStatus(t *testing.T) {
	assert.Equal(t, 1.0, EncodeSegmentStatus("u"))
	assert.Equal(t, 0.0, EncodeSegmentStatus("d"))
	assert.Equal(t, 0.0, EncodeSegmentStatus("whatever"))
}

func TestEncodeSegmentRole(t *testing.T) {
	assert.Equal(t, 1.0, EncodeSegmentRole("p"))
	assert.Equal(t, 2.0, EncodeSegmentRole("m"))
}

func TestEncodeSegmentMode(t *testing.T) {
	assert.Equal(t, 1.0, EncodeSegmentMode("s"))
	assert.Equal(t, 2.0, EncodeSegmentMode("r"))
	assert.Equal(t, 3.0, EncodeSegmentMode("c"))
	assert.Equal(t, 4.0, EncodeSegmentMode("n"))
	assert.Equal(t, 4.0, EncodeSegmentMode(""))
	assert.Equal(t, 0.0, EncodeSegmentMode("?"))
}

func TestEncodeReplicationState(t *testing.T) {
	assert.Equal(t, 1.0, EncodeReplicationState("streaming"))
	assert.Equal(t, 2.0, EncodeReplicationState("catchup"))
	assert.Equal(t, 3.0, EncodeReplicationState("backup"))
	assert.Equal(t, 0.0, EncodeReplicationState("startup"))
}

func TestEncodeSyncState(t *testing.T) {
	assert.Equal(t, 2.0, EncodeSyncState("sync"))
	assert.Equal(t, 1.0, EncodeSyncState("async"))
	assert.Equal(t, 0.5, EncodeSyncState("potential"))
	assert.Equal(t, 0.0, EncodeSyncState(""))
}

func TestBloatState(t *testing.T) {
	assert.Equal(t, 0.0, BloatState(1.0))
	assert.Equal(t, 1.0, BloatState(1.2))
	assert.Equal(t, 2.0, BloatState(2.5))
}

func TestApplicationNameOrDefault(t *testing.T) {
	assert.Equal(t, "unknown", applicationNameOrDefault(""))
	assert.Equal(t, "psql", applicationNameOrDefault("psql"))
}
