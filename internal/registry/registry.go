package registry

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/pqd/internal/wire"
)

// ErrUnknownOperation is returned for ids and names outside the active table.
var ErrUnknownOperation = errors.New("registry: unknown operation")

// Registry is the immutable procedure table of one protocol revision.
type Registry struct {
	rev    Revision
	procs  []*Procedure
	byID   map[OperationID]*Procedure
	byName map[string]*Procedure
	byKey  map[string]*Procedure
	digest string
}

// New builds and validates the table for rev.
func New(rev Revision) (*Registry, error) {
	var procs []*Procedure
	switch rev {
	case RevisionLegacy:
		procs = legacyTable()
	case RevisionChecked:
		procs = checkedTable()
	default:
		return nil, fmt.Errorf("registry: unsupported revision %s", rev)
	}
	return build(rev, procs)
}

// MustNew is New for static revisions; it panics on a malformed table.
func MustNew(rev Revision) *Registry {
	r, err := New(rev)
	if err != nil {
		panic(err)
	}
	return r
}

func build(rev Revision, procs []*Procedure) (*Registry, error) {
	r := &Registry{
		rev:    rev,
		procs:  procs,
		byID:   make(map[OperationID]*Procedure, len(procs)),
		byName: make(map[string]*Procedure, len(procs)*2),
		byKey:  make(map[string]*Procedure),
	}
	codes := make(map[string]string, len(procs))
	for _, p := range procs {
		if !p.ID.Valid() {
			return nil, fmt.Errorf("registry: %s has invalid id %d", p.Name, p.ID)
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate id %d (%s)", p.ID, p.Name)
		}
		d := p.discriminator()
		if other, dup := codes[d]; dup {
			return nil, fmt.Errorf("registry: %s and %s share transaction %s", other, p.Name, d)
		}
		codes[d] = p.Name
		for _, a := range p.Args {
			if a.Const != nil && a.Const.Type != a.Type {
				return nil, fmt.Errorf("registry: %s constant %s is %s, declared %s", p.Name, a.Name, a.Const.Type, a.Type)
			}
		}
		name := strings.ToLower(p.Name)
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("registry: duplicate name %s", p.Name)
		}
		r.byID[p.ID] = p
		r.byName[name] = p
		if p.Key != "" {
			if p.IsGetter() || len(p.UserArgs()) != 1 {
				return nil, fmt.Errorf("registry: %s bound to key %s must be a single-argument setter", p.Name, p.Key)
			}
			if _, dup := r.byKey[p.Key]; dup {
				return nil, fmt.Errorf("registry: duplicate settings key %s", p.Key)
			}
			r.byKey[p.Key] = p
		}
	}
	r.digest = digest(rev, procs)
	return r, nil
}

func (r *Registry) Revision() Revision { return r.rev }

// Lookup returns the procedure for id.
func (r *Registry) Lookup(id OperationID) (*Procedure, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d (revision %s)", ErrUnknownOperation, int(id), r.rev)
	}
	return p, nil
}

// ByName resolves an operation name case-insensitively. The capitalized
// D-Bus form (SetPQMode) resolves to the same entry.
func (r *Registry) ByName(name string) (*Procedure, error) {
	p, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (revision %s)", ErrUnknownOperation, name, r.rev)
	}
	return p, nil
}

// ByKey returns the setter bound to a settings key.
func (r *Registry) ByKey(key string) (*Procedure, bool) {
	p, ok := r.byKey[key]
	return p, ok
}

// Procedures returns every entry in table order.
func (r *Registry) Procedures() []*Procedure {
	out := make([]*Procedure, len(r.procs))
	copy(out, r.procs)
	return out
}

// ReadBack returns the getter that reports the value p sets, with the
// arguments to pass it. It reports false when the revision has no such
// getter.
func (r *Registry) ReadBack(p *Procedure) (*Procedure, []wire.Value, bool) {
	var name string
	var args []wire.Value
	switch {
	case p.Method == "setFeatureSwitch" && len(p.Args) > 0 && p.Args[0].Const != nil:
		name = "getFeatureSwitch"
		args = []wire.Value{*p.Args[0].Const}
	case strings.HasPrefix(p.Name, "enable"):
		name = "get" + strings.TrimPrefix(p.Name, "enable") + "Enabled"
	case strings.HasPrefix(p.Name, "set"):
		name = "get" + strings.TrimPrefix(p.Name, "set")
	default:
		return nil, nil, false
	}
	g, ok := r.byName[strings.ToLower(name)]
	if !ok || !g.IsGetter() || len(g.UserArgs()) != len(args) {
		return nil, nil, false
	}
	return g, args, true
}

// Setters returns the replayable entries (those bound to a settings key) in
// table order.
func (r *Registry) Setters() []*Procedure {
	var out []*Procedure
	for _, p := range r.procs {
		if p.Key != "" {
			out = append(out, p)
		}
	}
	return out
}

// Keys returns the settings keys of Setters in table order.
func (r *Registry) Keys() []string {
	setters := r.Setters()
	keys := make([]string, len(setters))
	for i, p := range setters {
		keys[i] = p.Key
	}
	return keys
}

// Digest is the hex BLAKE3 fingerprint of the table. Two processes agree on
// the wire layout exactly when their digests match.
func (r *Registry) Digest() string { return r.digest }

func digest(rev Revision, procs []*Procedure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "revision=%s\n", rev)
	for _, p := range procs {
		fmt.Fprintf(&b, "%d %s code=%d args=%s reply=%t/%s\n",
			int(p.ID), p.Name, p.Code, p.Signature(), p.Reply.Retval, p.Reply.Value)
	}
	sum := blake3.Sum256([]byte(b.String()))
	return "blake3:" + hex.EncodeToString(sum[:])
}
