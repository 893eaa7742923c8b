package collector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GreengageDB/greengage-exporter/internal/registry"
	"github.com/GreengageDB/greengage-exporter/internal/store"
	"github.com/GreengageDB/greengage-exporter/internal/version"
)

func TestEntityBaseRegistersOncePerKey(t *testing.T) {
	reg := registry.New()

	var registerCalls int
	base, err := NewEntityBase(reg, EntityOptions[string, float64]{
		Name:    "fake",
		Group:   GroupGeneral,
		Enabled: true,
		CollectEntities: func(ctx context.Context, conn *store.DB, ver version.Version) (map[string]float64, error) {
			return map[string]float64{"a": 1, "b": 2}, nil
		},
		RegisterEntity: func(reg *registry.Registry, key string, get func() (float64, bool)) ([]string, error) {
			registerCalls++
			id, err := reg.RegisterGaugeFunc("fake_metric", "help", map[string]string{"key": key}, func() float64 {
				v, _ := get()
				return v
			})
			return []string{id}, err
		},
	})
	require.NoError(t, err)

	require.NoError(t, base.Collect(context.Background(), nil, version.Version{}))
	require.NoError(t, base.Collect(context.Background(), nil, version.Version{}))

	assert.Equal(t, 2, registerCalls, "each key should only be registered once across scrapes")
	assert.Equal(t, 2, reg.Len())
}

func TestEntityBaseRemovesVanishedKeysWhenEnabled(t *testing.T) {
	reg := registry.New()

	calls := 0
	results := []map[string]float64{
		{"a": 1, "b": 2},
		{"a": 3},
	}

	base, err := NewEntityBase(reg, EntityOptions[string, float64]{
		Name:                 "fake",
		Group:                GroupGeneral,
		Enabled:              true,
		RemoveDeletedMetrics: true,
		CollectEntities: func(ctx context.Context, conn *store.DB, ver version.Version) (map[string]float64, error) {
			r := results[calls]
			calls++
			return r, nil
		},
		RegisterEntity: func(reg *registry.Registry, key string, get func() (float64, bool)) ([]string, error) {
			id, err := reg.RegisterGaugeFunc("fake_metric", "help", map[string]string{"key": key}, func() float64 {
				v, _ := get()
				return v
			})
			return []string{id}, err
		},
	})
	require.NoError(t, err)

	require.NoError(t, base.Collect(context.Background(), nil, version.Version{}))
	assert.Equal(t, 2, reg.Len())

	require.NoError(t, base.Collect(context.Background(), nil, version.Version{}))
	assert.Equal(t, 1, reg.Len(), "key b should have been unregistered after vanishing")
}

func TestEntityBaseKeepsVanishedKeysWhenCleanupDisabled(t *testing.T) {
	reg := registry.New()

	calls := 0
	results := []map[string]float64{
		{"a": 1, "b": 2},
		{"a": 3},
	}

	base, err := NewEntityBase(reg, EntityOptions[string, float64]{
		Name:    "fake",
		Group:   GroupGeneral,
		Enabled: true,
		CollectEntities: func(ctx context.Context, conn *store.DB, ver version.Version) (map[string]float64, error) {
			r := results[calls]
			calls++
			return r, nil
		},
		RegisterEntity: func(reg *registry.Registry, key string, get func() (float64, bool)) ([]string, error) {
			id, err := reg.RegisterGaugeFunc("fake_metric", "help", map[string]string{"key": key}, func() float64 {
				v, _ := get()
				return v
			})
			return []string{id}, err
		},
	})
	require.NoError(t, err)

	require.NoError(t, base.Collect(context.Background(), nil, version.Version{}))
	require.NoError(t, base.Collect(context.Background(), nil, version.Version{}))

	assert.Equal(t, 2, reg.Len(), "metrics without cleanup stay registered even after their key vanishes")
}

func TestEntityBaseRejectsNilMap(t *testing.T) {
	reg := registry.New()

	base, err := NewEntityBase(reg, EntityOptions[string, float64]{
		Name:    "fake",
		Group:   GroupGeneral,
		Enabled: true,
		CollectEntities: func(ctx context.Context, conn *store.DB, ver version.Version) (map[string]float64, error) {
			return nil, nil
		},
		RegisterEntity: func(reg *registry.Registry, key string, get func() (float64, bool)) ([]string, error) {
			return nil, nil
		},
	})
	require.NoError(t, err)

	assert.Error(t, base.Collect(context.Background(), nil, version.Version{}))
}

func TestEntityBaseRejectsZeroKey(t *testing.T) {
	reg := registry.New()

	base, err := NewEntityBase(reg, EntityOptions[string, float64]{
		Name:    "fake",
		Group:   GroupGeneral,
		Enabled: true,
		CollectEntities: func(ctx context.Context, conn *store.DB, ver version.Version) (map[string]float64, error) {
			return map[string]float64{"": 1}, nil
		},
		RegisterEntity: func(reg *registry.Registry, key string, get func() (float64, bool)) ([]string, error) {
			return nil, nil
		},
	})
	require.NoError(t, err)

	assert.Error(t, base.Collect(context.Background(), nil, version.Version{}))
}

func TestEntityBaseAccumulatesAcrossPerDBCycle(t *testing.T) {
	reg := registry.New()

	var nextResult map[string]float64

	base, err := NewEntityBase(reg, EntityOptions[string, float64]{
		Name:    "fake-per-db",
		Group:   GroupPerDB,
		Enabled: true,
		CollectEntities: func(ctx context.Context, conn *store.DB, ver version.Version) (map[string]float64, error) {
			return nextResult, nil
		},
		RegisterEntity: func(reg *registry.Registry, key string, get func() (float64, bool)) ([]string, error) {
			id, err := reg.RegisterGaugeFunc("fake_metric", "help", map[string]string{"key": key}, func() float64 {
				v, _ := get()
				return v
			})
			return []string{id}, err
		},
	})
	require.NoError(t, err)

	beginner, ok := interface{}(base).(CycleBeginner)
	require.True(t, ok)
	flusher, ok := interface{}(base).(Flusher)
	require.True(t, ok)

	beginner.BeginCycle()

	nextResult = map[string]float64{"db1.t": 1}
	require.NoError(t, base.Collect(context.Background(), nil, version.Version{}))

	nextResult = map[string]float64{"db2.t": 2}
	require.NoError(t, base.Collect(context.Background(), nil, version.Version{}))

	assert.Equal(t, 0, reg.Len(), "per-db results should not be registered until Flush")

	require.NoError(t, flusher.Flush())
	assert.Equal(t, 2, reg.Len())
	assert.Len(t, base.All(), 2)
}
