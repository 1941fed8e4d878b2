package fsm

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Registry maps stable names to Go types for entities and events. The
// names are persisted in entity and signal rows; a registered name must
// never change without a data migration.
//
// Registration takes a prototype value; Deserialize targets are built
// with reflect.New on the prototype's type, so pointer and value
// prototypes register the same underlying type.
//
// Thread-safety: Register is expected at startup, lookups at runtime;
// all methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	names  map[reflect.Type]string
}

// NewRegistry creates a registry with the distinguished events
// (Create, CancelTimedSignal) pre-registered.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]reflect.Type),
		names:  make(map[reflect.Type]string),
	}
	r.Register(CreateEventName, Create{})
	r.Register(CancelEventName, CancelTimedSignal{})
	return r
}

// Register binds name to the type of prototype. Registering the same
// name twice with a different type panics: that is a wiring bug, not a
// runtime condition.
func (r *Registry) Register(name string, prototype any) {
	t := reflect.TypeOf(prototype)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[name]; ok && existing != t {
		panic(fmt.Sprintf("fsm: name %q already registered for %v", name, existing))
	}
	r.byName[name] = t
	r.names[t] = name
}

// NameOf returns the registered name for v's type.
func (r *Registry) NameOf(v any) (string, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[t]
	if !ok {
		return "", fmt.Errorf("fsm: type %T is not registered", v)
	}
	return name, nil
}

// New returns a pointer to a zero value of the type registered under
// name, suitable as an unmarshal target.
func (r *Registry) New(name string) (any, error) {
	r.mu.RLock()
	t, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("fsm: name %q is not registered", name)
	}
	return reflect.New(t).Interface(), nil
}

// Names returns the registered names in sorted order. Used for
// diagnostics and tests.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
