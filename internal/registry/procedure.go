package registry

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mattjoyce/pqd/internal/wire"
)

// Arg is one positional argument of a procedure. Const arguments are
// supplied by the registry and never by the caller.
type Arg struct {
	Name  string
	Type  wire.Type
	Const *wire.Value
}

// Procedure is one remote call of the vendor PQ service.
type Procedure struct {
	ID     OperationID
	Name   string // logical operation, e.g. setFeatureSharpness
	Method string // HAL method, e.g. setFeatureSwitch
	Code   uint32
	Key    string // settings key replayed at startup; empty for getters and multi-argument setters
	Args   []Arg
	Reply  wire.ReplySpec
	Usage  string

	// Default is replayed when neither the live source nor the store has a
	// value for Key.
	Default int64
}

// Types returns the declared wire types in argument order.
func (p *Procedure) Types() []wire.Type {
	types := make([]wire.Type, len(p.Args))
	for i, a := range p.Args {
		types[i] = a.Type
	}
	return types
}

// UserArgs returns the arguments the caller must supply.
func (p *Procedure) UserArgs() []Arg {
	var out []Arg
	for _, a := range p.Args {
		if a.Const == nil {
			out = append(out, a)
		}
	}
	return out
}

// IsGetter reports whether the reply carries a value field.
func (p *Procedure) IsGetter() bool {
	return p.Reply.Value != wire.TypeNone
}

// Bind merges user values with the procedure's constants, converting each
// user value to its declared lane.
func (p *Procedure) Bind(user ...wire.Value) ([]wire.Value, error) {
	want := len(p.UserArgs())
	if len(user) != want {
		return nil, fmt.Errorf("%s: %w: want %d user arguments, got %d", p.Name, wire.ErrArity, want, len(user))
	}
	out := make([]wire.Value, 0, len(p.Args))
	next := 0
	for _, a := range p.Args {
		if a.Const != nil {
			out = append(out, *a.Const)
			continue
		}
		out = append(out, user[next].As(a.Type))
		next++
	}
	return out, nil
}

// Encode binds user values and serializes the full argument list.
func (p *Procedure) Encode(user ...wire.Value) ([]byte, error) {
	values, err := p.Bind(user...)
	if err != nil {
		return nil, err
	}
	return wire.Encode(p.Types(), values)
}

// ParseArgs converts command line strings into user values.
func (p *Procedure) ParseArgs(raw []string) ([]wire.Value, error) {
	args := p.UserArgs()
	if len(raw) != len(args) {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", p.Name, len(args), len(raw))
	}
	out := make([]wire.Value, len(raw))
	for i, s := range raw {
		v, err := wire.Parse(args[i].Type, s)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", p.Name, args[i].Name, err)
		}
		out[i] = v
	}
	return out, nil
}

// ExportName is the capitalized operation name used on D-Bus.
func (p *Procedure) ExportName() string {
	if p.Name == "" {
		return ""
	}
	r := []rune(p.Name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// Signature renders the argument list, e.g. "(mode int32, step=5)".
func (p *Procedure) Signature() string {
	parts := make([]string, 0, len(p.Args))
	for _, a := range p.Args {
		if a.Const != nil {
			parts = append(parts, fmt.Sprintf("%s=%s", a.Name, a.Const))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s", a.Name, a.Type))
	}
	sig := "(" + strings.Join(parts, ", ") + ")"
	if p.Reply.Value != wire.TypeNone {
		sig += " " + p.Reply.Value.String()
	}
	return sig
}

// discriminator identifies the procedure among those sharing its code:
// the leading constant arguments (the feature id of setFeatureSwitch).
func (p *Procedure) discriminator() string {
	var parts []string
	for _, a := range p.Args {
		if a.Const == nil {
			break
		}
		parts = append(parts, a.Const.String())
	}
	return fmt.Sprintf("%d/%s", p.Code, strings.Join(parts, ","))
}
