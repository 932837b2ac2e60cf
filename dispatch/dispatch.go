// Package dispatch maps member names to method and property functors
// and gates access by security zone.
//
// A Registry holds the callable surface a plugin instance exposes.
// Method invocation and property reads return deferred handles, so a
// member backed by a pending scripting call reports its outcome the
// same way as one that answers immediately. Lookup failures travel as
// rejections at this boundary rather than as Go errors; only Set,
// which has no value to defer, returns an error directly.
package dispatch

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/scripthost-io/scripthost/deferred"
	"github.com/scripthost-io/scripthost/errors"
	"github.com/scripthost-io/scripthost/variant"
)

// MethodFunc answers a method call with a handle that settles when
// the result is known.
type MethodFunc func(ctx context.Context, args variant.List) deferred.Handle[variant.Variant]

// GetterFunc answers a property read.
type GetterFunc func(ctx context.Context) deferred.Handle[variant.Variant]

// SetterFunc applies a property write.
type SetterFunc func(ctx context.Context, v variant.Variant) error

// Zone is a security level. A member is visible when its zone does
// not exceed the registry's active zone, so Local sees everything and
// Public only the public surface.
type Zone int

const (
	ZonePublic    Zone = 0
	ZoneProtected Zone = 2
	ZonePrivate   Zone = 4
	ZoneLocal     Zone = 6
)

func (z Zone) String() string {
	switch z {
	case ZonePublic:
		return "public"
	case ZoneProtected:
		return "protected"
	case ZonePrivate:
		return "private"
	case ZoneLocal:
		return "local"
	default:
		return "zone(" + strconv.Itoa(int(z)) + ")"
	}
}

type method struct {
	fn   MethodFunc
	zone Zone
}

type property struct {
	get  GetterFunc
	set  SetterFunc
	zone Zone
}

// Registry is a named collection of methods and properties with an
// active security zone.
type Registry struct {
	methods map[string]method
	props   map[string]property
	active  Zone
	mu      sync.RWMutex
}

// NewRegistry returns an empty registry whose active zone is Public.
func NewRegistry() *Registry {
	return &Registry{
		methods: make(map[string]method),
		props:   make(map[string]property),
		active:  ZonePublic,
	}
}

// SetActiveZone widens or narrows the visible surface.
func (r *Registry) SetActiveZone(z Zone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = z
}

func (r *Registry) ActiveZone() Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// RegisterMethod registers a public method.
func (r *Registry) RegisterMethod(name string, fn MethodFunc) error {
	return r.RegisterMethodInZone(name, ZonePublic, fn)
}

// RegisterMethodInZone registers a method at the given zone.
func (r *Registry) RegisterMethodInZone(name string, zone Zone, fn MethodFunc) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseDispatch, "method name cannot be empty")
	}
	if fn == nil {
		return errors.InvalidInput(errors.PhaseDispatch, "method handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.methods[name]; dup {
		return errors.New(errors.PhaseDispatch, errors.KindRegistration).
			Detail("method %q already registered", name).
			Build()
	}
	r.methods[name] = method{fn: fn, zone: zone}
	return nil
}

// RegisterProperty registers a public property. A nil setter makes
// the property read-only.
func (r *Registry) RegisterProperty(name string, get GetterFunc, set SetterFunc) error {
	return r.RegisterPropertyInZone(name, ZonePublic, get, set)
}

// RegisterPropertyInZone registers a property at the given zone.
func (r *Registry) RegisterPropertyInZone(name string, zone Zone, get GetterFunc, set SetterFunc) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseDispatch, "property name cannot be empty")
	}
	if get == nil {
		return errors.InvalidInput(errors.PhaseDispatch, "property must have a getter")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.props[name]; dup {
		return errors.New(errors.PhaseDispatch, errors.KindRegistration).
			Detail("property %q already registered", name).
			Build()
	}
	r.props[name] = property{get: get, set: set, zone: zone}
	return nil
}

// Invoke calls a method. Unknown or zone-denied members yield a
// rejected handle; a panicking functor rejects instead of unwinding
// the caller.
func (r *Registry) Invoke(ctx context.Context, name string, args variant.List) deferred.Handle[variant.Variant] {
	r.mu.RLock()
	m, ok := r.methods[name]
	active := r.active
	r.mu.RUnlock()

	if !ok {
		return deferred.Err[variant.Variant](errors.NotFound(errors.PhaseDispatch, "method", name))
	}
	if m.zone > active {
		return deferred.Err[variant.Variant](errors.ZoneDenied(name, int(m.zone)))
	}
	return callGuarded(func() deferred.Handle[variant.Variant] {
		return m.fn(ctx, args)
	})
}

// Get reads a property. Unknown or zone-denied members yield a
// rejected handle.
func (r *Registry) Get(ctx context.Context, name string) deferred.Handle[variant.Variant] {
	r.mu.RLock()
	p, ok := r.props[name]
	active := r.active
	r.mu.RUnlock()

	if !ok {
		return deferred.Err[variant.Variant](errors.NotFound(errors.PhaseDispatch, "property", name))
	}
	if p.zone > active {
		return deferred.Err[variant.Variant](errors.ZoneDenied(name, int(p.zone)))
	}
	return callGuarded(func() deferred.Handle[variant.Variant] {
		return p.get(ctx)
	})
}

// Set writes a property. Unknown members, zone denials, and writes
// to read-only properties return errors.
func (r *Registry) Set(ctx context.Context, name string, v variant.Variant) error {
	r.mu.RLock()
	p, ok := r.props[name]
	active := r.active
	r.mu.RUnlock()

	if !ok {
		return errors.NotFound(errors.PhaseDispatch, "property", name)
	}
	if p.zone > active {
		return errors.ZoneDenied(name, int(p.zone))
	}
	if p.set == nil {
		return errors.Unsupported(errors.PhaseDispatch, "set on read-only property "+name)
	}
	return p.set(ctx, v)
}

// callGuarded turns a functor panic into a rejected handle. The
// returned handle may itself be invalid when the functor misbehaves,
// so that case rejects too.
func callGuarded(fn func() deferred.Handle[variant.Variant]) (h deferred.Handle[variant.Variant]) {
	defer func() {
		if rec := recover(); rec != nil {
			h = deferred.Err[variant.Variant](errors.HandlerPanic(rec))
		}
	}()
	h = fn()
	if !h.Valid() {
		return deferred.Err[variant.Variant](errors.InvalidHandle("dispatch"))
	}
	return h
}

// HasMethod reports whether a method exists and is visible in the
// active zone.
func (r *Registry) HasMethod(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[name]
	return ok && m.zone <= r.active
}

// HasProperty reports whether a property exists and is visible in the
// active zone.
func (r *Registry) HasProperty(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.props[name]
	return ok && p.zone <= r.active
}

// MemberNames returns the visible method and property names, sorted.
func (r *Registry) MemberNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.methods)+len(r.props))
	for name, m := range r.methods {
		if m.zone <= r.active {
			names = append(names, name)
		}
	}
	for name, p := range r.props {
		if p.zone <= r.active {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
