package fx

import (
	"fmt"
	"sync"

	"github.com/cwbudde/algo-rack/dsp/core"
)

// Params is a sparse set of named numeric parameter values. Boolean and
// enumerated parameters are encoded as numbers (0/1, mode index).
type Params map[string]float64

// Clone returns an independent copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}

	return out
}

// ParamDef documents one parameter's valid range and default value.
type ParamDef struct {
	Min     float64
	Max     float64
	Default float64
}

// ParamDefs maps parameter names to their definitions for one effect kind.
type ParamDefs map[string]ParamDef

// defaults materializes the default value set.
func (d ParamDefs) defaults() Params {
	out := make(Params, len(d))
	for name, def := range d {
		out[name] = def.Default
	}

	return out
}

// paramStore holds the live parameter set behind a single merge entry point.
//
// Merge semantics: unknown names and out-of-range values are caller contract
// violations and reject the whole update; non-finite values are silently
// replaced by the previous value for that parameter, so a bad automation
// frame can never destabilize the signal graph.
type paramStore struct {
	mu     sync.RWMutex
	defs   ParamDefs
	values Params
}

func newParamStore(defs ParamDefs) *paramStore {
	return &paramStore{defs: defs, values: defs.defaults()}
}

// merge validates partial and applies it onto the current set, returning the
// parameters whose values actually changed. Validation happens before any
// value is applied, so a rejected update leaves the set untouched.
func (s *paramStore) merge(partial Params) (Params, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, v := range partial {
		def, ok := s.defs[name]
		if !ok {
			return nil, fmt.Errorf("unknown parameter: %q", name)
		}
		if !core.IsFinite(v) {
			continue
		}
		if v < def.Min || v > def.Max {
			return nil, fmt.Errorf("parameter %q out of range [%g, %g]: %g", name, def.Min, def.Max, v)
		}
	}

	changed := make(Params)
	for name, v := range partial {
		if !core.IsFinite(v) {
			continue
		}
		if s.values[name] != v {
			s.values[name] = v
			changed[name] = v
		}
	}

	return changed, nil
}

// snapshot returns a read-only copy of the full parameter set.
func (s *paramStore) snapshot() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.values.Clone()
}

// get returns one current value.
func (s *paramStore) get(name string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.values[name]
}
