package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/pqd/internal/pq"
	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/settings"
	"github.com/mattjoyce/pqd/internal/storage"
	"github.com/mattjoyce/pqd/internal/wire"
)

type call struct {
	id   registry.OperationID
	args []wire.Value
}

type fakeCaller struct {
	calls []call
	fail  map[registry.OperationID]error
}

func (f *fakeCaller) Call(_ context.Context, id registry.OperationID, args ...wire.Value) pq.Outcome {
	f.calls = append(f.calls, call{id: id, args: args})
	out := pq.Outcome{Op: id, CallID: fmt.Sprintf("call-%d", len(f.calls)), Name: id.String()}
	if err := f.fail[id]; err != nil {
		out.Err = err
		out.Error = err.Error()
	}
	return out
}

type memStore struct {
	values  map[string]int64
	syncs   int
	failSet error
}

func newMemStore() *memStore { return &memStore{values: map[string]int64{}} }

func (m *memStore) GetInt(_ context.Context, key string) (int64, error) {
	v, ok := m.values[key]
	if !ok {
		return 0, settings.ErrNotFound
	}
	return v, nil
}

func (m *memStore) SetInt(_ context.Context, key string, v int64) error {
	if m.failSet != nil {
		return m.failSet
	}
	m.values[key] = v
	return nil
}

func (m *memStore) Sync(context.Context) error {
	m.syncs++
	return nil
}

func mapReader(values map[string]int64) Reader {
	return ReaderFunc(func(_ context.Context, key string) (int64, error) {
		v, ok := values[key]
		if !ok {
			return 0, fmt.Errorf("no value for %s", key)
		}
		return v, nil
	})
}

func newTestDispatcher(source map[string]int64) (*Dispatcher, *fakeCaller, *memStore, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	caller := &fakeCaller{fail: map[registry.OperationID]error{}}
	store := newMemStore()
	var src Reader
	if source != nil {
		src = mapReader(source)
	}
	d := New(registry.MustNew(registry.RevisionChecked), caller, store, src).WithLogger(logger)
	return d, caller, store, &buf
}

func TestNightLightStrength(t *testing.T) {
	tests := []struct {
		raw  int64
		want int32
	}{
		{1700, 300},
		{2000, 270},
		{3200, 150},
		{4700, 0},
		{1000, 300},
		{9000, 0},
		{-5, 300},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.raw), func(t *testing.T) {
			assert.Equal(t, tt.want, NightLightStrength(tt.raw))
		})
	}
}

func TestNightLightTemperatureGatedOnEnabled(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		d, caller, store, _ := newTestDispatcher(map[string]int64{KeyNightLightEnabled: 1})
		require.NoError(t, d.OnChange(context.Background(), KeyNightLightTemperature, 3200))

		require.Len(t, caller.calls, 1)
		assert.Equal(t, registry.OpSetBlueLightStrength, caller.calls[0].id)
		assert.Equal(t, []wire.Value{wire.Int32(150)}, caller.calls[0].args)
		assert.Equal(t, int64(150), store.values["blue-light-strength"])
		assert.Equal(t, 1, store.syncs)
	})

	t.Run("disabled", func(t *testing.T) {
		d, caller, store, _ := newTestDispatcher(map[string]int64{KeyNightLightEnabled: 0})
		require.NoError(t, d.OnChange(context.Background(), KeyNightLightTemperature, 3200))

		assert.Empty(t, caller.calls)
		assert.Empty(t, store.values)
	})

	t.Run("enabled flag unreadable", func(t *testing.T) {
		d, caller, _, _ := newTestDispatcher(map[string]int64{})
		assert.Error(t, d.OnChange(context.Background(), KeyNightLightTemperature, 3200))
		assert.Empty(t, caller.calls)
	})

	t.Run("no source", func(t *testing.T) {
		d, caller, _, _ := newTestDispatcher(nil)
		assert.NoError(t, d.OnChange(context.Background(), KeyNightLightTemperature, 3200))
		assert.Empty(t, caller.calls)
	})
}

func TestNightLightEnabled(t *testing.T) {
	d, caller, store, _ := newTestDispatcher(nil)
	require.NoError(t, d.OnChange(context.Background(), KeyNightLightEnabled, 1))

	require.Len(t, caller.calls, 1)
	assert.Equal(t, registry.OpEnableBlueLight, caller.calls[0].id)
	assert.Equal(t, []wire.Value{wire.Bool(true)}, caller.calls[0].args)
	assert.Equal(t, int64(1), store.values["blue-light"])
}

func TestRegistryKeysCallTheirProcedure(t *testing.T) {
	tests := []struct {
		key string
		id  registry.OperationID
	}{
		{"pq-mode", registry.OpSetPQMode},
		{"gamma-index", registry.OpSetGammaIndex},
		{"sharpness", registry.OpSetFeatureSharpness},
		{"video-hdr", registry.OpSetFeatureVideoHDR},
		{"global-pq-strength", registry.OpSetGlobalPQStrength},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			d, caller, store, _ := newTestDispatcher(nil)
			require.NoError(t, d.OnChange(context.Background(), tt.key, 2))
			require.Len(t, caller.calls, 1)
			assert.Equal(t, tt.id, caller.calls[0].id)
			assert.Equal(t, []wire.Value{wire.Int32(2)}, caller.calls[0].args)
			assert.Equal(t, int64(2), store.values[tt.key])
		})
	}
}

func TestFailedCallIsNotPersisted(t *testing.T) {
	d, caller, store, buf := newTestDispatcher(nil)
	caller.fail[registry.OpSetPQMode] = &pq.ServiceRejectedError{Op: "setPQMode", Retval: 1}

	err := d.OnChange(context.Background(), "pq-mode", 1)
	var re *pq.ServiceRejectedError
	assert.ErrorAs(t, err, &re)
	assert.Empty(t, store.values)
	assert.Contains(t, buf.String(), "setting not applied")
}

func TestPersistenceFailureSurfaces(t *testing.T) {
	d, _, store, _ := newTestDispatcher(nil)
	store.failSet = errors.New("disk full")

	err := d.OnChange(context.Background(), "sharpness", 1)
	assert.EqualError(t, err, "disk full")
}

func TestPassthroughKeysBypassChannel(t *testing.T) {
	d, caller, store, _ := newTestDispatcher(nil)
	var got []int64
	d.Handle(KeyDisableCamera, func(_ context.Context, v int64) error {
		got = append(got, v)
		return nil
	})
	d.Handle(KeyDisableMicrophone, func(context.Context, int64) error {
		return errors.New("mixer missing")
	})

	require.NoError(t, d.OnChange(context.Background(), KeyDisableCamera, 1))
	assert.Error(t, d.OnChange(context.Background(), KeyDisableMicrophone, 1))
	assert.Equal(t, []int64{1}, got)
	assert.Empty(t, caller.calls)
	assert.Empty(t, store.values)
}

func TestUnknownKeyIgnored(t *testing.T) {
	d, caller, _, _ := newTestDispatcher(nil)
	assert.NoError(t, d.OnChange(context.Background(), "font-scale", 3))
	assert.Empty(t, caller.calls)
}

func TestApplyPersistsKeyBoundSetters(t *testing.T) {
	d, caller, store, _ := newTestDispatcher(nil)

	out := d.Apply(context.Background(), registry.OpSetChameleonStrength, wire.Int32(42))
	assert.True(t, out.OK())
	assert.Equal(t, int64(42), store.values["chameleon-strength"])

	out = d.Apply(context.Background(), registry.OpSetColorRegion, wire.Int32(1), wire.Int32(0), wire.Int32(0), wire.Int32(10), wire.Int32(10))
	assert.True(t, out.OK())
	assert.Len(t, store.values, 1)
	assert.Len(t, caller.calls, 2)
}

func TestKeysIncludesPassthroughs(t *testing.T) {
	d, _, _, _ := newTestDispatcher(nil)
	d.Handle(KeyLocationEnabled, func(context.Context, int64) error { return nil })
	keys := d.Keys()
	assert.Contains(t, keys, KeyNightLightTemperature)
	assert.Contains(t, keys, "global-pq-switch")
	assert.Equal(t, KeyLocationEnabled, keys[len(keys)-1])
}

func TestPrimeNightLight(t *testing.T) {
	d, caller, _, _ := newTestDispatcher(map[string]int64{
		KeyNightLightEnabled:     1,
		KeyNightLightTemperature: 1700,
	})
	require.NoError(t, d.PrimeNightLight(context.Background()))
	require.Len(t, caller.calls, 2)
	assert.Equal(t, registry.OpEnableBlueLight, caller.calls[0].id)
	assert.Equal(t, []wire.Value{wire.Int32(300)}, caller.calls[1].args)
}

// The dispatcher drives a simulated service and a real settings database.
func TestDispatcherWithSimulatorAndSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "pqd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := settings.NewStore(db)

	reg := registry.MustNew(registry.RevisionChecked)
	sim := pq.NewSimulator(reg)
	h, err := pq.Open(ctx, sim, reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	d := New(reg, h, store, mapReader(map[string]int64{KeyNightLightEnabled: 1}))
	require.NoError(t, d.OnChange(ctx, KeyNightLightTemperature, 1700))
	require.NoError(t, d.OnChange(ctx, "dynamic-contrast", 1))

	v, err := store.GetInt(ctx, "blue-light-strength")
	require.NoError(t, err)
	assert.Equal(t, int64(300), v)

	got, ok := sim.Value("setFeatureDynamicContrast")
	require.True(t, ok)
	assert.Equal(t, int32(1), got.I32)

	sim.Reject("setPQMode", 7)
	assert.Error(t, d.OnChange(ctx, "pq-mode", 1))
	_, err = store.GetInt(ctx, "pq-mode")
	assert.ErrorIs(t, err, settings.ErrNotFound)
}
