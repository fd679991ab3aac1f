package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/wire"
)

func TestReplayAllIssuesOneCallPerSetterInOrder(t *testing.T) {
	d, caller, store, _ := newTestDispatcher(nil)
	r := NewReplayer(d,
		Layer{Name: "gsettings", Reader: mapReader(map[string]int64{"pq-mode": 1})},
		Layer{Name: "store", Reader: mapReader(map[string]int64{"pq-mode": 0, "sharpness": 3})},
	)

	sum := r.ReplayAll(context.Background())
	setters := d.reg.Setters()
	require.Len(t, caller.calls, len(setters))
	for i, p := range setters {
		assert.Equal(t, p.ID, caller.calls[i].id, p.Key)
	}
	assert.Equal(t, len(setters), sum.Total)
	assert.Equal(t, len(setters), sum.Applied)
	assert.Zero(t, sum.Failed)

	assert.Equal(t, KeyResult{Key: "pq-mode", Value: 1, Source: "gsettings", CallID: "call-1"}, sum.Keys[0])
	assert.Equal(t, int64(3), store.values["sharpness"])
	assert.Equal(t, SourceDefault, sum.Keys[1].Source)
}

func TestReplayContinuesPastFailures(t *testing.T) {
	d, caller, store, _ := newTestDispatcher(nil)
	caller.fail[registry.OpSetBlueLightStrength] = errors.New("transport down")
	caller.fail[registry.OpSetFeatureSharpness] = errors.New("transport down")

	sum := NewReplayer(d).ReplayAll(context.Background())
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, sum.Total-2, sum.Applied)
	assert.Len(t, caller.calls, sum.Total)
	_, persisted := store.values["sharpness"]
	assert.False(t, persisted)
	assert.Equal(t, "transport down", sum.Keys[2].Error)
}

func TestReplayLegacyRevisionCoversEighteenKeys(t *testing.T) {
	caller := &fakeCaller{fail: map[registry.OperationID]error{}}
	d := New(registry.MustNew(registry.RevisionLegacy), caller, nil, nil)

	sum := NewReplayer(d).ReplayAll(context.Background())
	assert.Equal(t, 18, sum.Total)
	assert.Equal(t, registry.OpEnableBlueLight, caller.calls[1].id)
	assert.Equal(t, []wire.Value{wire.Int32(0)}, caller.calls[1].args)
}

func TestReplayCancelledSkipsRemaining(t *testing.T) {
	d, caller, _, _ := newTestDispatcher(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum := NewReplayer(d).ReplayAll(ctx)
	assert.Empty(t, caller.calls)
	assert.Equal(t, sum.Total, sum.Skipped)
}
