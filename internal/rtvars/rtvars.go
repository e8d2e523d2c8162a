// Package rtvars implements the SET/RESET/SHOW runtime-variable registry:
// a typed map name → variable, each carrying a default, current value,
// optional assignment hook, and reset action. In the spirit of
// internal/appconfig's typed config struct, but as a live registry
// instead of a load-once struct, since SET/RESET operate during a
// session rather than at start-up.
package rtvars

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
)

// Kind identifies a variable's value type.
type Kind int

const (
	KindBool Kind = iota
	KindString
	KindInteger
	KindEnum
)

// Variable is one entry in the registry.
type Variable struct {
	Name    string
	Kind    Kind
	Default string

	// Integer bounds; when both are zero the value is unbounded,
	// otherwise both are enforced.
	Min, Max int

	// EnumValues is the closed set of accepted values for KindEnum.
	EnumValues []string

	// OnSet is invoked after a successful assignment, with the new
	// value already validated and stored.
	OnSet func(value string)

	current string
}

// Registry is the typed name → Variable map SET/RESET/SHOW operate
// through exclusively.
type Registry struct {
	mu   sync.RWMutex
	vars map[string]*Variable
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{vars: make(map[string]*Variable)}
}

// Register adds v to the registry, initialized to its default. Register
// is not safe to call concurrently with Set/Reset/Show on the same name.
func (r *Registry) Register(v Variable) error {
	if err := validate(v, v.Default); err != nil {
		return apperrors.Parser("register variable", fmt.Errorf("%s: invalid default %q: %w", v.Name, v.Default, err))
	}
	v.current = v.Default
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vars[v.Name] = &v
	return nil
}

// Set assigns value to name after validating it against the variable's
// kind/bounds/enum set, then invokes OnSet if present.
func (r *Registry) Set(name, value string) error {
	r.mu.Lock()
	v, ok := r.vars[name]
	if !ok {
		r.mu.Unlock()
		return apperrors.Parser("set variable", fmt.Errorf("unknown variable %q", name))
	}
	if err := validate(*v, value); err != nil {
		r.mu.Unlock()
		return apperrors.Parser("set variable", fmt.Errorf("%s: %w", name, err))
	}
	v.current = value
	hook := v.OnSet
	r.mu.Unlock()

	if hook != nil {
		hook(value)
	}
	return nil
}

// Reset restores name to its default and invokes OnSet.
func (r *Registry) Reset(name string) error {
	r.mu.Lock()
	v, ok := r.vars[name]
	if !ok {
		r.mu.Unlock()
		return apperrors.Parser("reset variable", fmt.Errorf("unknown variable %q", name))
	}
	v.current = v.Default
	hook := v.OnSet
	value := v.current
	r.mu.Unlock()

	if hook != nil {
		hook(value)
	}
	return nil
}

// Show returns name's current value.
func (r *Registry) Show(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vars[name]
	if !ok {
		return "", apperrors.Parser("show variable", fmt.Errorf("unknown variable %q", name))
	}
	return v.current, nil
}

// ShowAll returns every variable's current value keyed by name. The map
// is unordered; Names returns the sorted name list.
func (r *Registry) ShowAll() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.vars))
	for name, v := range r.vars {
		out[name] = v.current
	}
	return out
}

// Names returns every registered variable name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.vars))
	for name := range r.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validate(v Variable, value string) error {
	switch v.Kind {
	case KindBool:
		if value != "true" && value != "false" {
			return fmt.Errorf("expected true or false, got %q", value)
		}
	case KindString:
		// no constraint
	case KindInteger:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("expected an integer, got %q", value)
		}
		if v.Min != 0 || v.Max != 0 {
			if n < v.Min || n > v.Max {
				return fmt.Errorf("value %d out of range [%d,%d]", n, v.Min, v.Max)
			}
		}
	case KindEnum:
		for _, allowed := range v.EnumValues {
			if value == allowed {
				return nil
			}
		}
		return fmt.Errorf("value %q is not one of %v", value, v.EnumValues)
	default:
		return fmt.Errorf("unknown variable kind %d", v.Kind)
	}
	return nil
}
