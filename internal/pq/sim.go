package pq

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/wire"
)

// SimCall records one transaction seen by a Simulator.
type SimCall struct {
	Name string
	Args []wire.Value
}

// Simulator is an in-memory Driver that answers from the procedure table:
// setters store their value, getters read it back. It backs dry runs on
// hosts without the vendor service.
type Simulator struct {
	reg *registry.Registry

	mu      sync.Mutex
	values  map[string]wire.Value
	reject  map[string]int32
	calls   []SimCall
	missing bool
}

func NewSimulator(reg *registry.Registry) *Simulator {
	return &Simulator{
		reg:    reg,
		values: make(map[string]wire.Value),
		reject: make(map[string]int32),
	}
}

// Reject makes the named procedure answer with retval.
func (s *Simulator) Reject(name string, retval int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject[name] = retval
}

// Unregister makes service lookups fail, as on a device without the HAL.
func (s *Simulator) Unregister() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missing = true
}

// Value returns the last value stored by the named setter.
func (s *Simulator) Value(name string) (wire.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}

func (s *Simulator) Calls() []SimCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SimCall(nil), s.calls...)
}

func (s *Simulator) Open(ctx context.Context, device string) (ServiceManager, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return simManager{s}, nil
}

type simManager struct{ s *Simulator }

func (m simManager) GetService(_ context.Context, fqName string) (RemoteObject, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.missing {
		return nil, fmt.Errorf("simulated service %s not registered", fqName)
	}
	return simRemote{m.s}, nil
}

func (simManager) Close() error { return nil }

type simRemote struct{ s *Simulator }

func (r simRemote) NewClient(string) (Client, error) { return simClient{r.s}, nil }
func (simRemote) Release() error                     { return nil }

type simClient struct{ s *Simulator }

func (simClient) Close() error { return nil }

func (c simClient) Transact(ctx context.Context, code uint32, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.s.answer(code, payload), nil
}

func (s *Simulator) answer(code uint32, payload []byte) []byte {
	p, args, ok := s.match(code, payload)
	if !ok {
		return wire.EncodeReply(wire.ReplySpec{}, wire.StatusBadValue, 0, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, SimCall{Name: p.Name, Args: args})

	if rv, rejected := s.reject[p.Name]; rejected {
		return wire.EncodeReply(p.Reply, wire.StatusOK, rv, nil)
	}
	if !p.IsGetter() {
		s.store(p, args)
		return wire.EncodeReply(p.Reply, wire.StatusOK, 0, nil)
	}
	v, found := s.values[s.sourceOf(p, args)]
	if !found {
		v = wire.IntValue(0)
	}
	return wire.EncodeReply(p.Reply, wire.StatusOK, 0, &v)
}

// match finds the procedure for code, using the leading constant arguments
// to tell shared codes apart, and decodes the full argument list.
func (s *Simulator) match(code uint32, payload []byte) (*registry.Procedure, []wire.Value, bool) {
	for _, p := range s.reg.Procedures() {
		if p.Code != code {
			continue
		}
		r := wire.NewReader(payload)
		args := make([]wire.Value, 0, len(p.Args))
		ok := true
		for _, a := range p.Args {
			v, err := r.Value(a.Type)
			if err != nil || (a.Const != nil && v != *a.Const) {
				ok = false
				break
			}
			args = append(args, v)
		}
		if ok && r.Remaining() == 0 {
			return p, args, true
		}
	}
	return nil, nil, false
}

func (s *Simulator) store(p *registry.Procedure, args []wire.Value) {
	switch p.ID {
	case registry.OpSetTuningField:
		s.values[tuningKey(args[0], args[1])] = args[2]
	default:
		var last wire.Value
		for i, a := range p.Args {
			if a.Const == nil {
				last = args[i]
			}
		}
		s.values[p.Name] = last
	}
}

// sourceOf names the value a getter reads back.
func (s *Simulator) sourceOf(p *registry.Procedure, args []wire.Value) string {
	switch p.ID {
	case registry.OpGetTuningField:
		return tuningKey(args[0], args[1])
	case registry.OpGetFeatureSwitch:
		for _, q := range s.reg.Procedures() {
			if q.Method == "setFeatureSwitch" && q.Args[0].Const != nil && q.Args[0].Const.I32 == args[0].I32 {
				return q.Name
			}
		}
		return ""
	}
	rest := strings.TrimPrefix(p.Name, "get")
	if base, ok := strings.CutSuffix(rest, "Enabled"); ok {
		return "enable" + base
	}
	return "set" + rest
}

func tuningKey(module, field wire.Value) string {
	return fmt.Sprintf("tuning/%d/%d", module.I32, field.I32)
}
