package host

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/scripthost-io/scripthost/errors"
	"github.com/scripthost-io/scripthost/manifest"
)

// Options configures a Runtime.
type Options struct {
	// MemoryLimitPages sets the maximum memory per instance in pages
	// (64KiB each). 0 means the wazero default of 65536 pages (4GiB).
	// Embedders loading a manifest usually pass its
	// Limits.MemoryPages here.
	MemoryLimitPages uint32

	// Logger replaces the package logger for host and guest log
	// output.
	Logger *zap.Logger
}

// Runtime owns a wazero runtime with the scripting host module
// installed. Plugins compiled by one Runtime share its compilation
// cache and memory limits.
type Runtime struct {
	runtime wazero.Runtime
}

// New creates a runtime and instantiates the host import module.
// WASI preview1 is installed as well, so plugins built against a wasi
// toolchain can instantiate; plugins that never import it are
// unaffected.
func New(ctx context.Context, opts *Options) (*Runtime, error) {
	if opts != nil && opts.Logger != nil {
		SetLogger(opts.Logger)
	}

	cfg := wazero.NewRuntimeConfig()
	if opts != nil && opts.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(opts.MemoryLimitPages)
	}

	r := wazero.NewRuntimeWithConfig(ctx, cfg)
	if err := instantiateHostModule(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, err,
			"instantiate wasi_snapshot_preview1")
	}
	return &Runtime{runtime: r}, nil
}

// Load compiles a plugin binary against its manifest. The manifest is
// validated and the binary must export the invoke and alloc entry
// points.
func (r *Runtime) Load(ctx context.Context, wasmBytes []byte, m *manifest.Manifest) (*Plugin, error) {
	if m == nil {
		return nil, errors.InvalidInput(errors.PhaseLoad, "manifest cannot be nil")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	compiled, err := r.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile plugin "+m.Name, err)
	}

	exports := compiled.ExportedFunctions()
	for _, required := range []string{exportAlloc, exportInvoke} {
		if _, ok := exports[required]; !ok {
			_ = compiled.Close(ctx)
			return nil, errors.Load("plugin "+m.Name+" does not export "+required, nil)
		}
	}

	Logger().Debug("plugin compiled",
		zap.String("plugin", m.Name),
		zap.String("namespace", m.Namespace),
		zap.Int("methods", len(m.Methods)),
		zap.Int("properties", len(m.Properties)))

	return &Plugin{rt: r, compiled: compiled, manifest: m}, nil
}

// Close shuts the runtime down, closing every module it instantiated.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}
