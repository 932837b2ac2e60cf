package host

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/scripthost-io/scripthost/errors"
)

// hostModuleName is the import namespace guests link against.
const hostModuleName = "scripthost:host"

// instanceKey carries the calling Instance through the wazero call
// stack so that host imports invoked by the guest can route
// settlements back to the right call table.
type instanceKey struct{}

func withInstance(ctx context.Context, inst *Instance) context.Context {
	return context.WithValue(ctx, instanceKey{}, inst)
}

func instanceFrom(ctx context.Context) *Instance {
	inst, _ := ctx.Value(instanceKey{}).(*Instance)
	return inst
}

// instantiateHostModule installs the scripting imports into the
// runtime. Guests declare them as:
//
//	(import "scripthost:host" "settle" (func (param i32 i32)))
//	(import "scripthost:host" "log"    (func (param i32 i32 i32)))
func instantiateHostModule(ctx context.Context, r wazero.Runtime) error {
	builder := r.NewHostModuleBuilder(hostModuleName)

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostSettle),
			[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, nil).
		Export("settle")

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(hostLog),
			[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, nil).
		Export("log")

	if _, err := builder.Instantiate(ctx); err != nil {
		return errors.Wrap(errors.PhaseLoad, errors.KindInstantiation, err,
			"instantiate "+hostModuleName)
	}
	return nil
}

// hostSettle receives a settlement envelope from the guest and applies
// it to the pending call it names. Bad envelopes are logged and
// dropped rather than trapping the guest.
func hostSettle(ctx context.Context, mod api.Module, stack []uint64) {
	ptr, length := uint32(stack[0]), uint32(stack[1])

	inst := instanceFrom(ctx)
	if inst == nil {
		Logger().Warn("settle outside a host-driven call",
			zap.String("module", mod.Name()))
		return
	}

	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		Logger().Warn("settle envelope out of bounds",
			zap.Uint32("ptr", ptr),
			zap.Uint32("len", length))
		return
	}

	env, err := decodeSettlement(data)
	if err != nil {
		Logger().Warn("settle envelope rejected", zap.Error(err))
		return
	}
	inst.settleFromGuest(env)
}

// Guest log levels accepted by the log import.
const (
	logDebug = 0
	logInfo  = 1
	logWarn  = 2
	logError = 3
)

// hostLog forwards a guest log line to the host logger. It reads guest
// memory directly because start functions may log before any Instance
// is attached to the context.
func hostLog(ctx context.Context, mod api.Module, stack []uint64) {
	level, ptr, length := uint32(stack[0]), uint32(stack[1]), uint32(stack[2])

	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		Logger().Warn("log message out of bounds",
			zap.Uint32("ptr", ptr),
			zap.Uint32("len", length))
		return
	}

	msg := string(data)
	field := zap.String("module", mod.Name())

	switch level {
	case logDebug:
		Logger().Debug(msg, field)
	case logInfo:
		Logger().Info(msg, field)
	case logWarn:
		Logger().Warn(msg, field)
	default:
		Logger().Error(msg, field)
	}
}
