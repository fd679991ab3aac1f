// Package doctor checks a pqd installation: configuration, binder device,
// helper tools, and the persisted state against the active registry.
package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/exec"
	"strings"

	"github.com/mattjoyce/pqd/internal/config"
	"github.com/mattjoyce/pqd/internal/lock"
	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/settings"
	"github.com/mattjoyce/pqd/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Digest   string  `json:"registry_digest,omitempty"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// State is the persisted view the doctor compares against the registry.
type State interface {
	Meta(ctx context.Context, name string) (string, error)
	All(ctx context.Context) ([]settings.Record, error)
}

// Doctor validates a loaded config.
type Doctor struct {
	cfg      *config.Config
	state    State
	lookPath func(string) (string, error)
	stat     func(string) (os.FileInfo, error)
	probe    func(string) (storage.Probe, error)
}

// New creates a Doctor. state may be nil when no database exists yet.
func New(cfg *config.Config, state State) *Doctor {
	return &Doctor{
		cfg:      cfg,
		state:    state,
		lookPath: exec.LookPath,
		stat:     os.Stat,
		probe:    storage.ProbeStatePath,
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	reg := d.validateRegistry(r)
	d.validateBinder(r)
	d.validateState(r)
	d.validateTools(r)
	d.validateAPI(r)
	d.warnRunning(r)
	if reg != nil {
		d.compareState(ctx, r, reg)
	}

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateRegistry(r *Result) *registry.Registry {
	rev, err := registry.ParseRevision(d.cfg.Binder.Revision)
	if err != nil {
		d.addError(r, "binder", "binder.revision", err.Error())
		return nil
	}
	reg, err := registry.New(rev)
	if err != nil {
		d.addError(r, "registry", "", err.Error())
		return nil
	}
	r.Digest = reg.Digest()
	return reg
}

func (d *Doctor) validateBinder(r *Result) {
	if d.cfg.Simulated() {
		d.addWarning(r, "binder", "binder.device", "simulated PQ service selected; no hardware calls will be made")
		return
	}
	if d.cfg.Binder.CallTimeout <= 0 {
		d.addError(r, "binder", "binder.call_timeout", "call_timeout must be positive")
	}
	info, err := d.stat(d.cfg.Binder.Device)
	if err != nil {
		d.addError(r, "binder", "binder.device", fmt.Sprintf("binder device %s: %v", d.cfg.Binder.Device, err))
		return
	}
	if info.Mode()&fs.ModeCharDevice == 0 {
		d.addError(r, "binder", "binder.device", fmt.Sprintf("%s is not a character device", d.cfg.Binder.Device))
	}
}

func (d *Doctor) validateState(r *Result) {
	if d.cfg.State.Path == "" {
		d.addError(r, "state", "state.path", "state.path is required")
		return
	}
	p, err := d.probe(d.cfg.State.Path)
	if err == nil {
		err = p.Err(d.cfg.State.Path)
	}
	if err != nil {
		d.addError(r, "state", "state.path", err.Error())
		return
	}
	if p.Medium == storage.MediumVolatile {
		d.addWarning(r, "state", "state.path",
			fmt.Sprintf("%s is on %s; stored settings will not survive a reboot", p.Path, p.FSType))
	}
}

func (d *Doctor) validateTools(r *Result) {
	if _, err := d.lookPath(d.cfg.Settings.Binary); err != nil {
		d.addWarning(r, "settings", "settings.binary",
			fmt.Sprintf("%s not found; replay falls back to stored values and no changes are watched", d.cfg.Settings.Binary))
	}
	if !d.cfg.Privacy.Enabled {
		return
	}
	for _, tool := range []string{"getprop", "setprop", "amixer"} {
		if _, err := d.lookPath(tool); err != nil {
			d.addWarning(r, "privacy", "privacy.enabled", fmt.Sprintf("%s not found; privacy toggles will fail", tool))
		}
	}
}

func (d *Doctor) validateAPI(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.API.Listen, err))
		return
	}
	if host == "localhost" || len(d.cfg.API.Tokens) > 0 {
		return
	}
	if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
		d.addWarning(r, "api", "api.listen", "API is unauthenticated and listens beyond loopback")
	}
}

func (d *Doctor) warnRunning(r *Result) {
	path := d.cfg.Service.PIDFile
	if path == "" {
		path = lock.PathFor(d.cfg.State.Path)
	}
	l, err := lock.AcquirePIDLock(path)
	if errors.Is(err, lock.ErrLocked) {
		d.addWarning(r, "service", "service.pid_file", err.Error())
		return
	}
	if l != nil {
		_ = l.Release()
	}
}

// compareState flags a digest that changed since the daemon last ran and
// stored keys no procedure is bound to.
func (d *Doctor) compareState(ctx context.Context, r *Result, reg *registry.Registry) {
	if d.state == nil {
		return
	}
	stored, err := d.state.Meta(ctx, settings.MetaRegistryDigest)
	if err != nil {
		d.addError(r, "state", "state.path", err.Error())
		return
	}
	if stored != "" && stored != reg.Digest() {
		d.addWarning(r, "registry", "binder.revision",
			fmt.Sprintf("procedure table changed since last start (stored %s); persisted values are replayed by key", stored))
	}

	records, err := d.state.All(ctx)
	if err != nil {
		d.addError(r, "state", "state.path", err.Error())
		return
	}
	known := make(map[string]bool)
	for _, k := range reg.Keys() {
		known[k] = true
	}
	var orphans []string
	for _, rec := range records {
		if !known[rec.Key] {
			orphans = append(orphans, rec.Key)
		}
	}
	if len(orphans) > 0 {
		d.addWarning(r, "registry", "",
			fmt.Sprintf("stored keys not used by the %s revision: %s", reg.Revision(), strings.Join(orphans, ", ")))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Installation healthy.\n")
	} else if r.Valid {
		fmt.Fprintf(&b, "Installation usable (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Installation broken (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}
	if r.Digest != "" {
		fmt.Fprintf(&b, "  registry %s\n", r.Digest)
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
