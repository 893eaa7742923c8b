package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

type fakeSnapshot struct{ n int }

func TestAggregateBasePublishesLatestSnapshot(t *testing.T) {
	reg := registry.New()

	var next *fakeSnapshot
	base, err := NewAggregateBase[fakeSnapshot](
		"fake", GroupGeneral, true, true, reg,
		func(ctx context.Context, conn *store.DB, ver version.Version) (*fakeSnapshot, error) {
			return next, nil
		},
		func(reg *registry.Registry, get func() *fakeSnapshot) error {
			_, err := reg.RegisterGaugeFunc("fake_value", "help", nil, func() float64 {
				s := get()
				if s == nil {
					return -1
				}
				return float64(s.n)
			})
			return err
		},
		nil,
	)
	require.NoError(t, err)

	assert.Nil(t, base.Get())

	next = &fakeSnapshot{n: 42}
	require.NoError(t, base.Collect(context.Background(), nil, version.Version{}))
	assert.Equal(t, 42, base.Get().n)
}

func TestAggregateBaseKeepsPreviousSnapshotOnNilResult(t *testing.T) {
	reg := registry.New()

	next := &fakeSnapshot{n: 7}
	base, err := NewAggregateBase[fakeSnapshot](
		"fake", GroupGeneral, true, false, reg,
		func(ctx context.Context, conn *store.DB, ver version.Version) (*fakeSnapshot, error) {
			return next, nil
		},
		nil,
		nil,
	)
	require.NoError(t, err)

	require.NoError(t, base.Collect(context.Background(), nil, version.Version{}))
	assert.Equal(t, 7, base.Get().n)

	next = nil
	require.NoError(t, base.Collect(context.Background(), nil, version.Version{}))
	assert.Equal(t, 7, base.Get().n, "a nil snapshot should not overwrite the previous one")
}

func TestAggregateBaseErrorHandling(t *testing.T) {
	reg := registry.New()
	boom := errors.New("boom")

	failFast, err := NewAggregateBase[fakeSnapshot](
		"fake", GroupGeneral, true, true, reg,
		func(ctx context.Context, conn *store.DB, ver version.Version) (*fakeSnapshot, error) {
			return nil, boom
		},
		nil,
		nil,
	)
	require.NoError(t, err)
	assert.ErrorIs(t, failFast.Collect(context.Background(), nil, version.Version{}), boom)

	reg2 := registry.New()
	swallowed, err := NewAggregateBase[fakeSnapshot](
		"fake", GroupGeneral, true, false, reg2,
		func(ctx context.Context, conn *store.DB, ver version.Version) (*fakeSnapshot, error) {
			return nil, boom
		},
		nil,
		nil,
	)
	require.NoError(t, err)
	assert.NoError(t, swallowed.Collect(context.Background(), nil, version.Version{}))
}
