// Package manifest loads plugin interface manifests.
//
// A manifest is a YAML document describing the callable surface a
// plugin promises: its methods with parameter and result types, its
// properties, the security zone of each member, and resource limits
// for the instance. The host validates a loaded manifest before
// instantiating the plugin and can watch the file for changes.
package manifest

import (
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/scripthost-io/scripthost/errors"
)

// Environment variables overriding loaded manifests.
const (
	EnvNamespace   = "SCRIPTHOST_NAMESPACE"
	EnvMemoryPages = "SCRIPTHOST_MEMORY_PAGES"
)

// Manifest describes a plugin's callable surface.
type Manifest struct {
	Name       string     `yaml:"name"`
	Version    string     `yaml:"version"`
	Namespace  string     `yaml:"namespace"`
	Methods    []Method   `yaml:"methods"`
	Properties []Property `yaml:"properties"`
	Limits     Limits     `yaml:"limits"`
}

// Method describes a callable member.
type Method struct {
	Name   string  `yaml:"name"`
	Params []Param `yaml:"params"`
	Result string  `yaml:"result"`
	Zone   int     `yaml:"zone"`
	Doc    string  `yaml:"doc"`
}

// Param describes one method parameter.
type Param struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Property describes a readable and optionally writable member.
type Property struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	ReadOnly bool   `yaml:"read_only"`
	Zone     int    `yaml:"zone"`
}

// Limits bound the plugin instance.
type Limits struct {
	// MemoryPages caps guest memory in 64KiB pages. Zero uses the
	// runtime default.
	MemoryPages uint32 `yaml:"memory_pages"`
	// MaxPendingCalls caps simultaneously pending scripting calls.
	// Zero means unlimited.
	MaxPendingCalls int `yaml:"max_pending_calls"`
}

// Parse unmarshals a manifest and applies defaults. It does not
// validate; Load does, and hand-built manifests call Validate
// directly.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.New(errors.PhaseManifest, errors.KindInvalidInput).
			Cause(err).
			Detail("parse manifest").
			Build()
	}
	m.applyDefaults()
	return &m, nil
}

// Load reads a manifest file, applies environment overrides, and
// validates the result.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read manifest "+path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := m.applyEnv(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Namespace == "" {
		m.Namespace = m.Name
	}
}

func (m *Manifest) applyEnv() error {
	if ns := os.Getenv(EnvNamespace); ns != "" {
		m.Namespace = ns
	}
	if pages := os.Getenv(EnvMemoryPages); pages != "" {
		n, err := strconv.ParseUint(pages, 10, 32)
		if err != nil {
			return errors.New(errors.PhaseManifest, errors.KindInvalidInput).
				Cause(err).
				Detail("%s must be an unsigned integer, got %q", EnvMemoryPages, pages).
				Build()
		}
		m.Limits.MemoryPages = uint32(n)
	}
	return nil
}

// memberName matches kebab-case member names with optional dotted
// segments, the form the dispatch registry and the wire protocol use.
var memberName = regexp.MustCompile(`^[a-z][a-z0-9]*([.-][a-z0-9]+)*$`)

// validTypes are the wire value types members may declare.
var validTypes = map[string]bool{
	"bool": true, "int": true, "uint": true, "float": true,
	"string": true, "date": true, "list": true, "map": true,
	"variant": true,
}

var validZones = map[int]bool{0: true, 2: true, 4: true, 6: true}

// maxMemoryPages is the wasm32 limit of 4GiB in 64KiB pages.
const maxMemoryPages = 65536

// Validate checks names, types, zones, and limits.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return invalid("manifest name is required")
	}
	if !memberName.MatchString(m.Name) {
		return invalid("manifest name %q is not kebab-case", m.Name)
	}

	seen := make(map[string]bool, len(m.Methods)+len(m.Properties))

	for _, method := range m.Methods {
		if !memberName.MatchString(method.Name) {
			return invalid("method name %q is not kebab-case", method.Name)
		}
		if seen[method.Name] {
			return invalid("duplicate member %q", method.Name)
		}
		seen[method.Name] = true

		if !validZones[method.Zone] {
			return invalid("method %q has invalid zone %d", method.Name, method.Zone)
		}
		if method.Result != "" && !validTypes[method.Result] {
			return invalid("method %q has unknown result type %q", method.Name, method.Result)
		}
		for _, p := range method.Params {
			if p.Name == "" {
				return invalid("method %q has an unnamed parameter", method.Name)
			}
			if !validTypes[p.Type] {
				return invalid("method %q parameter %q has unknown type %q", method.Name, p.Name, p.Type)
			}
		}
	}

	for _, prop := range m.Properties {
		if !memberName.MatchString(prop.Name) {
			return invalid("property name %q is not kebab-case", prop.Name)
		}
		if seen[prop.Name] {
			return invalid("duplicate member %q", prop.Name)
		}
		seen[prop.Name] = true

		if !validZones[prop.Zone] {
			return invalid("property %q has invalid zone %d", prop.Name, prop.Zone)
		}
		if !validTypes[prop.Type] {
			return invalid("property %q has unknown type %q", prop.Name, prop.Type)
		}
	}

	if m.Limits.MemoryPages > maxMemoryPages {
		return invalid("memory_pages %d exceeds wasm32 maximum %d", m.Limits.MemoryPages, maxMemoryPages)
	}
	if m.Limits.MaxPendingCalls < 0 {
		return invalid("max_pending_calls must not be negative")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.New(errors.PhaseManifest, errors.KindInvalidInput).
		Detail(format, args...).
		Build()
}

// Method looks up a method by name.
func (m *Manifest) Method(name string) (Method, bool) {
	for _, method := range m.Methods {
		if method.Name == name {
			return method, true
		}
	}
	return Method{}, false
}

// Property looks up a property by name.
func (m *Manifest) Property(name string) (Property, bool) {
	for _, prop := range m.Properties {
		if prop.Name == name {
			return prop, true
		}
	}
	return Property{}, false
}

// MemberNames returns all declared method and property names in
// declaration order, methods first.
func (m *Manifest) MemberNames() []string {
	names := make([]string, 0, len(m.Methods)+len(m.Properties))
	for _, method := range m.Methods {
		names = append(names, method.Name)
	}
	for _, prop := range m.Properties {
		names = append(names, prop.Name)
	}
	return names
}
