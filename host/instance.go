package host

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scripthost-io/scripthost/deferred"
	"github.com/scripthost-io/scripthost/dispatch"
	"github.com/scripthost-io/scripthost/errors"
	"github.com/scripthost-io/scripthost/manifest"
	"github.com/scripthost-io/scripthost/variant"
)

// guestCaller abstracts the live guest module so instance logic does
// not depend on a compiled binary.
type guestCaller interface {
	invoke(ctx context.Context, req []byte) ([]byte, error)
	poll(ctx context.Context) error
	canPoll() bool
	close(ctx context.Context) error
}

// Instance is one live plugin: its own guest memory, pending call
// table, and member surface from the manifest. Instances follow the
// deferred package's threading model, with a single goroutine driving
// all calls on an instance.
type Instance struct {
	manifest *manifest.Manifest
	caller   guestCaller
	calls    *callTable
	closed   bool
}

func newInstance(m *manifest.Manifest, caller guestCaller) *Instance {
	return &Instance{
		manifest: m,
		caller:   caller,
		calls:    newCallTable(m.Limits.MaxPendingCalls),
	}
}

// Manifest returns the manifest this instance was loaded with.
func (i *Instance) Manifest() *manifest.Manifest {
	return i.manifest
}

// PendingCalls reports how many guest calls are awaiting settlement.
func (i *Instance) PendingCalls() int {
	return i.calls.len()
}

func errClosed() *errors.Error {
	return errors.InvalidInput(errors.PhaseCall, "instance is closed")
}

// Invoke calls a guest method. The handle settles before Invoke
// returns when the guest answers immediately, or on a later settle or
// Pump when it answers pending. Unknown members and arity mismatches
// reject without reaching the guest.
func (i *Instance) Invoke(ctx context.Context, member string, args variant.List) deferred.Handle[variant.Variant] {
	if i.closed {
		return deferred.Err[variant.Variant](errClosed())
	}
	m, ok := i.manifest.Method(member)
	if !ok {
		return deferred.Err[variant.Variant](errors.NotFound(errors.PhaseCall, "method", member))
	}
	if len(args) != len(m.Params) {
		return deferred.Err[variant.Variant](errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Path(member).
			Detail("method takes %d argument(s), got %d", len(m.Params), len(args)).
			Build())
	}

	return i.roundTrip(ctx, request{
		Op:     opCall,
		Member: member,
		ID:     uuid.NewString(),
		Args:   encodeArgs(args),
	})
}

// Get reads a guest property.
func (i *Instance) Get(ctx context.Context, member string) deferred.Handle[variant.Variant] {
	if i.closed {
		return deferred.Err[variant.Variant](errClosed())
	}
	if _, ok := i.manifest.Property(member); !ok {
		return deferred.Err[variant.Variant](errors.NotFound(errors.PhaseCall, "property", member))
	}

	return i.roundTrip(ctx, request{
		Op:     opGet,
		Member: member,
		ID:     uuid.NewString(),
	})
}

// Set writes a guest property. Writes are synchronous; a guest cannot
// answer a set with pending.
func (i *Instance) Set(ctx context.Context, member string, v variant.Variant) error {
	if i.closed {
		return errClosed()
	}
	p, ok := i.manifest.Property(member)
	if !ok {
		return errors.NotFound(errors.PhaseCall, "property", member)
	}
	if p.ReadOnly {
		return errors.Unsupported(errors.PhaseCall, "set on read-only property "+member)
	}

	data, err := encodeRequest(request{
		Op:     opSet,
		Member: member,
		ID:     uuid.NewString(),
		Value:  v.JSON(),
	})
	if err != nil {
		return err
	}

	respData, err := i.caller.invoke(withInstance(ctx, i), data)
	if err != nil {
		return err
	}
	resp, err := decodeResponse(respData)
	if err != nil {
		return err
	}

	switch resp.Status {
	case statusResolved:
		return nil
	case statusRejected:
		return rejectionError(resp.Error)
	default:
		return errors.Protocol("set answered "+resp.Status, nil)
	}
}

// roundTrip drives one request through the guest and returns the
// handle for its outcome. The call registers before plugin_invoke
// runs, so a settlement arriving during the invoke itself finds its
// controller.
func (i *Instance) roundTrip(ctx context.Context, req request) deferred.Handle[variant.Variant] {
	data, err := encodeRequest(req)
	if err != nil {
		return deferred.Err[variant.Variant](err)
	}

	ctrl := deferred.New[variant.Variant]()
	h := ctrl.Promise()
	if err := i.calls.register(req.ID, req.Member, ctrl); err != nil {
		return deferred.Err[variant.Variant](err)
	}

	Logger().Debug("guest invoke",
		zap.String("op", req.Op),
		zap.String("member", req.Member),
		zap.String("call", req.ID))

	respData, err := i.caller.invoke(withInstance(ctx, i), data)
	if err != nil {
		if pc, ok := i.calls.take(req.ID); ok {
			_ = pc.ctrl.Reject(err)
		} else {
			// guest settled before trapping; keep that outcome
			Logger().Warn("invoke failed after settlement",
				zap.String("call", req.ID),
				zap.Error(err))
		}
		return h
	}

	resp, err := decodeResponse(respData)
	if err != nil {
		if pc, ok := i.calls.take(req.ID); ok {
			_ = pc.ctrl.Reject(err)
		}
		return h
	}

	i.applyResponse(req.ID, resp)
	return h
}

// applyResponse settles the call from the guest's immediate answer. A
// pending status leaves the controller registered for a later settle.
func (i *Instance) applyResponse(id string, resp *response) {
	if resp.Status == statusPending {
		return
	}

	pc, ok := i.calls.take(id)
	if !ok {
		// settled through the settle import during the invoke
		debugf("call %s already settled", id)
		return
	}

	switch resp.Status {
	case statusResolved:
		_ = pc.ctrl.Resolve(variant.FromJSON(resp.Value))
	case statusRejected:
		_ = pc.ctrl.Reject(rejectionError(resp.Error))
	default:
		_ = pc.ctrl.Reject(errors.Protocol("unknown response status "+resp.Status, nil))
	}
}

// settleFromGuest applies a settlement envelope delivered through the
// settle import. Unknown ids are logged and dropped, which also makes
// settling the same call twice harmless.
func (i *Instance) settleFromGuest(env *settlement) {
	pc, ok := i.calls.take(env.Call)
	if !ok {
		Logger().Warn("settlement for unknown call",
			zap.String("call", env.Call),
			zap.String("status", env.Status))
		return
	}

	Logger().Debug("guest settle",
		zap.String("call", env.Call),
		zap.String("member", pc.member),
		zap.String("status", env.Status))

	switch env.Status {
	case statusResolved:
		_ = pc.ctrl.Resolve(variant.FromJSON(env.Value))
	case statusRejected:
		_ = pc.ctrl.Reject(rejectionError(env.Error))
	default:
		_ = pc.ctrl.Reject(errors.Protocol("settlement status "+env.Status, nil))
	}
}

// Pump gives the guest a chance to settle pending calls. It returns
// nil immediately when nothing is pending. A plugin that answers
// everything synchronously need not export plugin_poll; pumping one
// that owes settlements reports unsupported.
func (i *Instance) Pump(ctx context.Context) error {
	if i.closed {
		return errClosed()
	}
	if i.calls.len() == 0 {
		return nil
	}
	if !i.caller.canPoll() {
		return errors.Unsupported(errors.PhaseCall, "plugin does not export "+exportPoll)
	}
	return i.caller.poll(withInstance(ctx, i))
}

// Registry builds a dispatch surface over this instance: every
// manifest method and property becomes a registered member backed by
// a guest call, placed in its manifest zone. Read-only properties get
// no setter.
func (i *Instance) Registry() (*dispatch.Registry, error) {
	reg := dispatch.NewRegistry()

	for _, m := range i.manifest.Methods {
		name := m.Name
		fn := func(ctx context.Context, args variant.List) deferred.Handle[variant.Variant] {
			return i.Invoke(ctx, name, args)
		}
		if err := reg.RegisterMethodInZone(name, dispatch.Zone(m.Zone), fn); err != nil {
			return nil, err
		}
	}

	for _, p := range i.manifest.Properties {
		name := p.Name
		get := func(ctx context.Context) deferred.Handle[variant.Variant] {
			return i.Get(ctx, name)
		}
		var set dispatch.SetterFunc
		if !p.ReadOnly {
			set = func(ctx context.Context, v variant.Variant) error {
				return i.Set(ctx, name, v)
			}
		}
		if err := reg.RegisterPropertyInZone(name, dispatch.Zone(p.Zone), get, set); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Close shuts the instance down. Pending calls are invalidated first
// so their failure continuations run while the instance still exists,
// then the guest module closes. Closing with calls still pending
// returns an UnsettledCallsError naming them. Close is idempotent.
func (i *Instance) Close(ctx context.Context) error {
	if i.closed {
		return nil
	}
	i.closed = true

	abandoned := i.calls.invalidateAll()
	if err := i.caller.close(ctx); err != nil {
		return err
	}
	if len(abandoned) > 0 {
		Logger().Warn("instance closed with unsettled calls",
			zap.Int("count", len(abandoned)))
		return errors.NewUnsettledCallsError(abandoned)
	}
	return nil
}
