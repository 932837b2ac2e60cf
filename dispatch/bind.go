package dispatch

import (
	"context"
	"reflect"
	"strings"
	"unicode"

	"github.com/scripthost-io/scripthost/deferred"
	"github.com/scripthost-io/scripthost/errors"
	"github.com/scripthost-io/scripthost/variant"
)

// Registrar lets an API supply exact member names when the automatic
// PascalCase-to-kebab-case conversion does not apply. Bind registers
// the returned functors and skips the reflection walk.
type Registrar interface {
	Register() map[string]MethodFunc
}

// Zoner declares per-member zones, keyed by registered member name.
// Members not listed default to Public.
type Zoner interface {
	Zones() map[string]Zone
}

// bound method and property shapes, matched by type assertion on the
// bound method value.
type (
	methodShape = func(context.Context, variant.List) deferred.Handle[variant.Variant]
	getterShape = func(context.Context) deferred.Handle[variant.Variant]
	setterShape = func(context.Context, variant.Variant) error
)

// Bind auto-registers an API's exported methods. Methods with the
// MethodFunc shape become methods under their kebab-case names
// (GetPageURL becomes get-page-url). Get*/Set* pairs with getter and
// setter shapes become properties named after the stripped suffix; a
// getter alone makes the property read-only. Other exported methods
// are ignored. An API that binds nothing is reported as an error,
// which catches pointer-receiver methods on a value argument.
func (r *Registry) Bind(api any) error {
	if api == nil {
		return errors.InvalidInput(errors.PhaseDispatch, "api cannot be nil")
	}

	zones := map[string]Zone{}
	if z, ok := api.(Zoner); ok && z.Zones() != nil {
		zones = z.Zones()
	}

	if reg, ok := api.(Registrar); ok {
		funcs := reg.Register()
		if len(funcs) == 0 {
			return errors.InvalidInput(errors.PhaseDispatch, "registrar returned no members")
		}
		for name, fn := range funcs {
			if err := r.RegisterMethodInZone(name, zones[name], fn); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(api)
	rt := rv.Type()

	getters := map[string]GetterFunc{}
	setters := map[string]SetterFunc{}
	bound := 0

	for i := 0; i < rt.NumMethod(); i++ {
		m := rt.Method(i)
		if !m.IsExported() || m.Name == "Zones" {
			continue
		}

		handler := rv.Method(i).Interface()

		if fn, ok := handler.(methodShape); ok {
			name := toKebabCase(m.Name)
			if err := r.RegisterMethodInZone(name, zones[name], fn); err != nil {
				return err
			}
			bound++
			continue
		}

		if fn, ok := handler.(getterShape); ok {
			if suffix, ok := strings.CutPrefix(m.Name, "Get"); ok && suffix != "" {
				getters[toKebabCase(suffix)] = fn
				continue
			}
		}

		if fn, ok := handler.(setterShape); ok {
			if suffix, ok := strings.CutPrefix(m.Name, "Set"); ok && suffix != "" {
				setters[toKebabCase(suffix)] = fn
				continue
			}
		}
	}

	for name, get := range getters {
		if err := r.RegisterPropertyInZone(name, zones[name], get, setters[name]); err != nil {
			return err
		}
		delete(setters, name)
		bound++
	}
	for name := range setters {
		return errors.New(errors.PhaseDispatch, errors.KindRegistration).
			Detail("setter for %q has no matching getter", name).
			Build()
	}

	if bound == 0 {
		return errors.InvalidInput(errors.PhaseDispatch, "no bindable methods or properties")
	}
	return nil
}

// toKebabCase converts PascalCase to kebab-case.
// Handles acronyms: GetHTTPURL -> get-http-url
func toKebabCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word, not part of acronym
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			if i > 0 {
				result.WriteByte('-')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1 // -1 because loop will increment
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
