package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/mattjoyce/pqd/internal/log"
	"github.com/mattjoyce/pqd/internal/pq"
	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/wire"
)

// Watched keys outside the PQ schema.
const (
	KeyNightLightEnabled     = "night-light-enabled"
	KeyNightLightTemperature = "night-light-temperature"
	KeyDisableMicrophone     = "disable-microphone"
	KeyDisableCamera         = "disable-camera"
	KeyDisableSoundOutput    = "disable-sound-output"
	KeyLocationEnabled       = "location-enabled"

	keyBlueLight         = "blue-light"
	keyBlueLightStrength = "blue-light-strength"
)

// Caller issues PQ calls. *pq.Handle satisfies it.
type Caller interface {
	Call(ctx context.Context, id registry.OperationID, args ...wire.Value) pq.Outcome
}

// Store persists last-applied values. *settings.Store satisfies it.
type Store interface {
	GetInt(ctx context.Context, key string) (int64, error)
	SetInt(ctx context.Context, key string, value int64) error
	Sync(ctx context.Context) error
}

// Reader reads the current value of a key.
type Reader interface {
	Int(ctx context.Context, key string) (int64, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, key string) (int64, error)

func (f ReaderFunc) Int(ctx context.Context, key string) (int64, error) { return f(ctx, key) }

// Passthrough handles a non-PQ key.
type Passthrough func(ctx context.Context, value int64) error

// Dispatcher maps setting changes to PQ calls.
type Dispatcher struct {
	reg          *registry.Registry
	caller       Caller
	store        Store
	source       Reader
	passthroughs map[string]Passthrough
	logger       *slog.Logger
}

// New creates a Dispatcher. store and source may be nil: without a store
// nothing is persisted, without a source night-light temperature changes
// are dropped because the enabled flag cannot be read.
func New(reg *registry.Registry, caller Caller, store Store, source Reader) *Dispatcher {
	return &Dispatcher{
		reg:          reg,
		caller:       caller,
		store:        store,
		source:       source,
		passthroughs: make(map[string]Passthrough),
		logger:       log.WithComponent("dispatch"),
	}
}

// WithLogger replaces the component logger.
func (d *Dispatcher) WithLogger(l *slog.Logger) *Dispatcher {
	d.logger = l
	return d
}

// Handle registers fn for a passthrough key.
func (d *Dispatcher) Handle(key string, fn Passthrough) {
	d.passthroughs[key] = fn
}

func (d *Dispatcher) Registry() *registry.Registry { return d.reg }

// Keys lists every key OnChange acts on.
func (d *Dispatcher) Keys() []string {
	keys := []string{KeyNightLightEnabled, KeyNightLightTemperature}
	keys = append(keys, d.reg.Keys()...)
	return append(keys, slices.Sorted(maps.Keys(d.passthroughs))...)
}

// OnChange handles one notification synchronously. Unknown keys are
// ignored. The returned error is the call or persistence failure, already
// logged.
func (d *Dispatcher) OnChange(ctx context.Context, key string, value int64) error {
	logger := d.logger.With("key", key, "value", value)

	switch key {
	case KeyNightLightEnabled:
		return d.apply(ctx, registry.OpEnableBlueLight, keyBlueLight, boolInt(value), wire.BoolValue(value)).Err

	case KeyNightLightTemperature:
		if d.source == nil {
			logger.Warn("night light temperature dropped: no settings source")
			return nil
		}
		enabled, err := d.source.Int(ctx, KeyNightLightEnabled)
		if err != nil {
			logger.Warn("night light temperature dropped: cannot read enabled flag", "error", err)
			return fmt.Errorf("read %s: %w", KeyNightLightEnabled, err)
		}
		if enabled == 0 {
			logger.Debug("night light disabled, temperature change dropped")
			return nil
		}
		strength := NightLightStrength(value)
		logger.Info("night light temperature mapped", "strength", strength)
		return d.apply(ctx, registry.OpSetBlueLightStrength, keyBlueLightStrength, int64(strength), wire.Int32(strength)).Err
	}

	if p, ok := d.reg.ByKey(key); ok {
		return d.apply(ctx, p.ID, p.Key, value, wire.IntValue(value)).Err
	}

	if fn, ok := d.passthroughs[key]; ok {
		if err := fn(ctx, value); err != nil {
			logger.Error("passthrough failed", "error", err)
			return err
		}
		return nil
	}

	logger.Debug("ignoring unwatched key")
	return nil
}

// Apply issues a call on behalf of an RPC or HTTP client. A successful call
// of a key-bound setter is persisted under its key.
func (d *Dispatcher) Apply(ctx context.Context, id registry.OperationID, args ...wire.Value) pq.Outcome {
	p, err := d.reg.Lookup(id)
	if err != nil || p.Key == "" || len(args) != 1 {
		return d.caller.Call(ctx, id, args...)
	}
	return d.apply(ctx, id, p.Key, args[0].Int(), args...)
}

// apply issues one call and persists value under key on success.
func (d *Dispatcher) apply(ctx context.Context, id registry.OperationID, key string, value int64, args ...wire.Value) pq.Outcome {
	out := d.caller.Call(ctx, id, args...)
	if !out.OK() {
		d.logger.Warn("setting not applied", "key", key, "value", value, "operation", out.Name, "kind", out.Kind, "error", out.Err)
		return out
	}
	d.logger.Info("setting applied", "key", key, "value", value, "operation", out.Name)
	if err := d.persist(ctx, key, value); err != nil {
		out.Err = err
		out.Error = err.Error()
		out.Kind = pq.KindPersistence
	}
	return out
}

func (d *Dispatcher) persist(ctx context.Context, key string, value int64) error {
	if d.store == nil {
		return nil
	}
	if err := d.store.SetInt(ctx, key, value); err != nil {
		d.logger.Error("persist setting failed", "key", key, "error", err)
		return err
	}
	if err := d.store.Sync(ctx); err != nil {
		d.logger.Error("sync settings failed", "key", key, "error", err)
		return err
	}
	return nil
}

// PrimeNightLight applies the current night-light state once, as if both
// keys had just changed.
func (d *Dispatcher) PrimeNightLight(ctx context.Context) error {
	if d.source == nil {
		return nil
	}
	enabled, err := d.source.Int(ctx, KeyNightLightEnabled)
	if err != nil {
		return fmt.Errorf("read %s: %w", KeyNightLightEnabled, err)
	}
	if err := d.OnChange(ctx, KeyNightLightEnabled, enabled); err != nil {
		d.logger.Warn("night light prime failed", "key", KeyNightLightEnabled, "error", err)
	}
	temperature, err := d.source.Int(ctx, KeyNightLightTemperature)
	if err != nil {
		return fmt.Errorf("read %s: %w", KeyNightLightTemperature, err)
	}
	return d.OnChange(ctx, KeyNightLightTemperature, temperature)
}

// Night-light temperature range in Kelvin and the strength scale.
const (
	minTemperature = 1700
	maxTemperature = 4700
	strengthScale  = 1000
	strengthFactor = 0.3
)

// NightLightStrength maps a color temperature to a blue-light strength:
// warmer (lower) temperatures give stronger filtering. The temperature is
// clamped to [1700, 4700], reversed within that range, rescaled to
// [0, 1000], scaled by 0.3 and truncated, so 1700 gives 300, 3200 gives 150
// and 4700 gives 0.
func NightLightStrength(raw int64) int32 {
	t := min(max(raw, minTemperature), maxTemperature)
	reversed := maxTemperature - (t - minTemperature)
	scaled := float64(reversed-minTemperature) * strengthScale / (maxTemperature - minTemperature)
	return int32(scaled * strengthFactor)
}

func boolInt(v int64) int64 {
	if v != 0 {
		return 1
	}
	return 0
}
