package host

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/scripthost-io/scripthost/deferred"
	"github.com/scripthost-io/scripthost/dispatch"
	"github.com/scripthost-io/scripthost/errors"
	"github.com/scripthost-io/scripthost/manifest"
	"github.com/scripthost-io/scripthost/variant"
)

// fakeCaller scripts the guest side of the wire contract so instance
// behavior is testable without a compiled module.
type fakeCaller struct {
	respond  func(ctx context.Context, req request) (*response, error)
	pollFn   func(ctx context.Context) error
	pollable bool
	closed   bool
	closeErr error
	invokes  []string
	polls    int
	lastID   string
}

func (c *fakeCaller) invoke(ctx context.Context, data []byte) ([]byte, error) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	c.invokes = append(c.invokes, req.Op+":"+req.Member)
	c.lastID = req.ID

	resp, err := c.respond(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

func (c *fakeCaller) canPoll() bool { return c.pollable }

func (c *fakeCaller) poll(ctx context.Context) error {
	c.polls++
	if c.pollFn == nil {
		return nil
	}
	return c.pollFn(ctx)
}

func (c *fakeCaller) close(ctx context.Context) error {
	c.closed = true
	return c.closeErr
}

type guestFailure string

func (e guestFailure) Error() string { return string(e) }

func resolved(v any) *response {
	return &response{Status: statusResolved, Value: v}
}

func rejectedWith(kind, detail string) *response {
	return &response{Status: statusRejected, Error: &wireError{Kind: kind, Detail: detail}}
}

func answerPending(context.Context, request) (*response, error) {
	return &response{Status: statusPending}, nil
}

func hostManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Name:      "image-tools",
		Version:   "1.0.0",
		Namespace: "image-tools",
		Methods: []manifest.Method{
			{
				Name: "resize",
				Params: []manifest.Param{
					{Name: "path", Type: "string"},
					{Name: "width", Type: "int"},
				},
				Result: "string",
			},
			{
				Name:   "purge-cache",
				Result: "bool",
				Zone:   int(dispatch.ZonePrivate),
			},
		},
		Properties: []manifest.Property{
			{Name: "quality", Type: "int"},
			{Name: "format", Type: "string", ReadOnly: true},
		},
	}
}

// handleOutcome drains a settled handle for assertions.
func handleOutcome(t *testing.T, h deferred.Handle[variant.Variant]) (variant.Variant, error) {
	t.Helper()

	var (
		value   variant.Variant
		failure error
		settled bool
	)
	h.Done(func(v variant.Variant) {
		value = v
		settled = true
	}).Fail(func(err error) {
		failure = err
		settled = true
	})

	if !settled {
		t.Fatalf("handle did not settle synchronously")
	}
	return value, failure
}

func TestInstance_InvokeResolves(t *testing.T) {
	caller := &fakeCaller{
		respond: func(_ context.Context, req request) (*response, error) {
			if req.Op != opCall || req.Member != "resize" || req.ID == "" {
				t.Errorf("request = %+v", req)
			}
			if len(req.Args) != 2 {
				t.Errorf("args = %v", req.Args)
			}
			return resolved("out.png"), nil
		},
	}
	inst := newInstance(hostManifest(), caller)

	v, err := handleOutcome(t, inst.Invoke(context.Background(), "resize", variant.MakeList("in.png", 800)))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got := v.Raw(); got != "out.png" {
		t.Errorf("result = %v, want out.png", got)
	}
	if inst.PendingCalls() != 0 {
		t.Errorf("pending = %d after a synchronous answer", inst.PendingCalls())
	}
}

func TestInstance_InvokeUnknownMethod(t *testing.T) {
	caller := &fakeCaller{}
	inst := newInstance(hostManifest(), caller)

	_, err := handleOutcome(t, inst.Invoke(context.Background(), "missing", nil))
	if !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("unexpected error: %v", err)
	}
	if len(caller.invokes) != 0 {
		t.Errorf("unknown method reached the guest: %v", caller.invokes)
	}
}

func TestInstance_InvokeArityMismatch(t *testing.T) {
	caller := &fakeCaller{}
	inst := newInstance(hostManifest(), caller)

	_, err := handleOutcome(t, inst.Invoke(context.Background(), "resize", variant.MakeList("in.png")))
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("unexpected error: %v", err)
	}
	if len(caller.invokes) != 0 {
		t.Errorf("bad arity reached the guest: %v", caller.invokes)
	}
}

func TestInstance_InvokeGuestRejects(t *testing.T) {
	caller := &fakeCaller{
		respond: func(context.Context, request) (*response, error) {
			return rejectedWith("conversion", "bad pixel data"), nil
		},
	}
	inst := newInstance(hostManifest(), caller)

	_, err := handleOutcome(t, inst.Invoke(context.Background(), "resize", variant.MakeList("in.png", 800)))
	if !errors.IsKind(err, errors.KindConversion) {
		t.Errorf("guest kind lost: %v", err)
	}
	if !strings.Contains(err.Error(), "bad pixel data") {
		t.Errorf("guest detail lost: %v", err)
	}
}

func TestInstance_InvokeTrapRejects(t *testing.T) {
	caller := &fakeCaller{
		respond: func(context.Context, request) (*response, error) {
			return nil, guestFailure("guest trapped")
		},
	}
	inst := newInstance(hostManifest(), caller)

	_, err := handleOutcome(t, inst.Invoke(context.Background(), "resize", variant.MakeList("in.png", 800)))
	if err == nil || !strings.Contains(err.Error(), "guest trapped") {
		t.Errorf("unexpected error: %v", err)
	}
	if inst.PendingCalls() != 0 {
		t.Errorf("pending = %d after trap", inst.PendingCalls())
	}
}

func TestInstance_InvokePendingSettlesLater(t *testing.T) {
	caller := &fakeCaller{respond: answerPending}
	inst := newInstance(hostManifest(), caller)

	var got variant.Variant
	settled := false
	inst.Invoke(context.Background(), "resize", variant.MakeList("in.png", 800)).
		Done(func(v variant.Variant) {
			got = v
			settled = true
		})

	if settled {
		t.Fatal("handle settled before the guest did")
	}
	if inst.PendingCalls() != 1 {
		t.Fatalf("pending = %d, want 1", inst.PendingCalls())
	}

	inst.settleFromGuest(&settlement{Call: caller.lastID, Status: statusResolved, Value: "late.png"})

	if !settled {
		t.Fatal("settlement did not fire the handle")
	}
	if got.Raw() != "late.png" {
		t.Errorf("result = %v, want late.png", got.Raw())
	}
	if inst.PendingCalls() != 0 {
		t.Errorf("pending = %d after settlement", inst.PendingCalls())
	}
}

func TestInstance_RejectedSettlement(t *testing.T) {
	caller := &fakeCaller{respond: answerPending}
	inst := newInstance(hostManifest(), caller)

	var failure error
	inst.Invoke(context.Background(), "resize", variant.MakeList("in.png", 800)).
		Fail(func(err error) { failure = err })

	inst.settleFromGuest(&settlement{
		Call:   caller.lastID,
		Status: statusRejected,
		Error:  &wireError{Kind: "overflow", Detail: "width"},
	})

	if !errors.IsKind(failure, errors.KindOverflow) {
		t.Errorf("unexpected rejection: %v", failure)
	}
}

func TestInstance_SettleDuringInvoke(t *testing.T) {
	caller := &fakeCaller{
		respond: func(ctx context.Context, req request) (*response, error) {
			in := instanceFrom(ctx)
			if in == nil {
				t.Fatal("no instance on the invoke context")
			}
			in.settleFromGuest(&settlement{Call: req.ID, Status: statusResolved, Value: "early"})
			return &response{Status: statusPending}, nil
		},
	}
	inst := newInstance(hostManifest(), caller)

	v, err := handleOutcome(t, inst.Invoke(context.Background(), "resize", variant.MakeList("in.png", 800)))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if v.Raw() != "early" {
		t.Errorf("result = %v, want early", v.Raw())
	}
	if inst.PendingCalls() != 0 {
		t.Errorf("pending = %d", inst.PendingCalls())
	}
}

func TestInstance_SettleWinsOverResponse(t *testing.T) {
	caller := &fakeCaller{
		respond: func(ctx context.Context, req request) (*response, error) {
			instanceFrom(ctx).settleFromGuest(&settlement{Call: req.ID, Status: statusResolved, Value: "first"})
			return resolved("second"), nil
		},
	}
	inst := newInstance(hostManifest(), caller)

	v, err := handleOutcome(t, inst.Invoke(context.Background(), "resize", variant.MakeList("in.png", 800)))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if v.Raw() != "first" {
		t.Errorf("result = %v, settlement should win over the late response", v.Raw())
	}
}

func TestInstance_SettleUnknownCallIgnored(t *testing.T) {
	caller := &fakeCaller{respond: answerPending}
	inst := newInstance(hostManifest(), caller)

	inst.settleFromGuest(&settlement{Call: "no-such-call", Status: statusResolved})

	count := 0
	inst.Invoke(context.Background(), "resize", variant.MakeList("in.png", 800)).
		Done(func(variant.Variant) { count++ })

	id := caller.lastID
	inst.settleFromGuest(&settlement{Call: id, Status: statusResolved, Value: 1})
	inst.settleFromGuest(&settlement{Call: id, Status: statusResolved, Value: 2})

	if count != 1 {
		t.Errorf("continuation ran %d times, want exactly once", count)
	}
}

func TestInstance_GetProperty(t *testing.T) {
	caller := &fakeCaller{
		respond: func(_ context.Context, req request) (*response, error) {
			if req.Op != opGet || req.Member != "quality" {
				t.Errorf("request = %+v", req)
			}
			if len(req.Args) != 0 {
				t.Errorf("get carried args: %v", req.Args)
			}
			return resolved(85), nil
		},
	}
	inst := newInstance(hostManifest(), caller)

	v, err := handleOutcome(t, inst.Get(context.Background(), "quality"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	n, err := variant.Cast[int64](v)
	if err != nil || n != 85 {
		t.Errorf("quality = %v (%v), want 85", n, err)
	}
}

func TestInstance_GetUnknownProperty(t *testing.T) {
	inst := newInstance(hostManifest(), &fakeCaller{})

	_, err := handleOutcome(t, inst.Get(context.Background(), "missing"))
	if !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInstance_SetProperty(t *testing.T) {
	var wrote any
	caller := &fakeCaller{
		respond: func(_ context.Context, req request) (*response, error) {
			if req.Op != opSet || req.Member != "quality" {
				t.Errorf("request = %+v", req)
			}
			wrote = req.Value
			return resolved(nil), nil
		},
	}
	inst := newInstance(hostManifest(), caller)

	if err := inst.Set(context.Background(), "quality", variant.New(90)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if wrote != float64(90) {
		t.Errorf("guest saw value %v (%T)", wrote, wrote)
	}
}

func TestInstance_SetErrors(t *testing.T) {
	t.Run("ReadOnly", func(t *testing.T) {
		caller := &fakeCaller{}
		inst := newInstance(hostManifest(), caller)

		err := inst.Set(context.Background(), "format", variant.New("webp"))
		if !errors.IsKind(err, errors.KindUnsupported) {
			t.Errorf("unexpected error: %v", err)
		}
		if len(caller.invokes) != 0 {
			t.Errorf("read-only write reached the guest: %v", caller.invokes)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		inst := newInstance(hostManifest(), &fakeCaller{})
		err := inst.Set(context.Background(), "missing", variant.New(1))
		if !errors.IsKind(err, errors.KindNotFound) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("GuestRejects", func(t *testing.T) {
		caller := &fakeCaller{
			respond: func(context.Context, request) (*response, error) {
				return rejectedWith("invalid_input", "quality out of range"), nil
			},
		}
		inst := newInstance(hostManifest(), caller)
		err := inst.Set(context.Background(), "quality", variant.New(500))
		if !errors.IsKind(err, errors.KindInvalidInput) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("PendingAnswer", func(t *testing.T) {
		caller := &fakeCaller{respond: answerPending}
		inst := newInstance(hostManifest(), caller)
		err := inst.Set(context.Background(), "quality", variant.New(70))
		if !errors.IsKind(err, errors.KindProtocol) {
			t.Errorf("a set must not go pending: %v", err)
		}
	})
}

func TestInstance_PumpNothingPending(t *testing.T) {
	caller := &fakeCaller{pollable: true}
	inst := newInstance(hostManifest(), caller)

	if err := inst.Pump(context.Background()); err != nil {
		t.Fatalf("pump: %v", err)
	}
	if caller.polls != 0 {
		t.Errorf("pump polled an idle guest %d times", caller.polls)
	}
}

func TestInstance_PumpSettlesPending(t *testing.T) {
	caller := &fakeCaller{respond: answerPending, pollable: true}
	caller.pollFn = func(ctx context.Context) error {
		instanceFrom(ctx).settleFromGuest(&settlement{Call: caller.lastID, Status: statusResolved, Value: 3})
		return nil
	}
	inst := newInstance(hostManifest(), caller)

	var got variant.Variant
	inst.Invoke(context.Background(), "resize", variant.MakeList("in.png", 800)).
		Done(func(v variant.Variant) { got = v })

	if err := inst.Pump(context.Background()); err != nil {
		t.Fatalf("pump: %v", err)
	}
	if caller.polls != 1 {
		t.Errorf("polls = %d, want 1", caller.polls)
	}
	n, err := variant.Cast[int64](got)
	if err != nil || n != 3 {
		t.Errorf("result = %v (%v), want 3", n, err)
	}
}

func TestInstance_PumpWithoutPollExport(t *testing.T) {
	caller := &fakeCaller{respond: answerPending}
	inst := newInstance(hostManifest(), caller)

	inst.Invoke(context.Background(), "resize", variant.MakeList("in.png", 800))

	err := inst.Pump(context.Background())
	if !errors.IsKind(err, errors.KindUnsupported) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInstance_PendingCallLimit(t *testing.T) {
	m := hostManifest()
	m.Limits.MaxPendingCalls = 1

	caller := &fakeCaller{respond: answerPending}
	inst := newInstance(m, caller)

	inst.Invoke(context.Background(), "resize", variant.MakeList("a.png", 1))

	_, err := handleOutcome(t, inst.Invoke(context.Background(), "resize", variant.MakeList("b.png", 2)))
	if !errors.IsKind(err, errors.KindExhausted) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInstance_CloseRejectsPending(t *testing.T) {
	caller := &fakeCaller{respond: answerPending}
	inst := newInstance(hostManifest(), caller)

	var failure error
	inst.Invoke(context.Background(), "resize", variant.MakeList("in.png", 800)).
		Fail(func(err error) { failure = err })

	err := inst.Close(context.Background())
	unsettled, ok := err.(*errors.UnsettledCallsError)
	if !ok {
		t.Fatalf("close = %v, want UnsettledCallsError", err)
	}
	if len(unsettled.Calls) != 1 || unsettled.Calls[0].Member != "resize" {
		t.Errorf("unsettled = %+v", unsettled.Calls)
	}
	if !errors.IsKind(failure, errors.KindInvalidated) {
		t.Errorf("pending call rejected with %v", failure)
	}
	if !caller.closed {
		t.Error("guest module was not closed")
	}

	if err := inst.Close(context.Background()); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestInstance_CloseCleanly(t *testing.T) {
	caller := &fakeCaller{
		respond: func(context.Context, request) (*response, error) {
			return resolved(true), nil
		},
	}
	inst := newInstance(hostManifest(), caller)

	if _, err := handleOutcome(t, inst.Invoke(context.Background(), "resize", variant.MakeList("in.png", 800))); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if err := inst.Close(context.Background()); err != nil {
		t.Errorf("close: %v", err)
	}

	_, err := handleOutcome(t, inst.Invoke(context.Background(), "resize", variant.MakeList("in.png", 800)))
	if !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("invoke after close: %v", err)
	}
	if err := inst.Pump(context.Background()); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Errorf("pump after close: %v", err)
	}
}

func TestInstance_CloseReportsGuestError(t *testing.T) {
	caller := &fakeCaller{closeErr: guestFailure("close failed")}
	inst := newInstance(hostManifest(), caller)

	err := inst.Close(context.Background())
	if err == nil || !strings.Contains(err.Error(), "close failed") {
		t.Errorf("close = %v", err)
	}
}

func TestInstance_Registry(t *testing.T) {
	caller := &fakeCaller{
		respond: func(_ context.Context, req request) (*response, error) {
			switch {
			case req.Op == opCall && req.Member == "resize":
				return resolved("out.png"), nil
			case req.Op == opCall && req.Member == "purge-cache":
				return resolved(true), nil
			case req.Op == opGet && req.Member == "quality":
				return resolved(85), nil
			case req.Op == opGet && req.Member == "format":
				return resolved("png"), nil
			case req.Op == opSet && req.Member == "quality":
				return resolved(nil), nil
			}
			return rejectedWith("not_found", req.Member), nil
		},
	}
	inst := newInstance(hostManifest(), caller)

	reg, err := inst.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	ctx := context.Background()

	v, err := handleOutcome(t, reg.Invoke(ctx, "resize", variant.MakeList("in.png", 800)))
	if err != nil {
		t.Fatalf("invoke through registry: %v", err)
	}
	if v.Raw() != "out.png" {
		t.Errorf("result = %v", v.Raw())
	}

	// zone from the manifest gates the private method
	if _, err := handleOutcome(t, reg.Invoke(ctx, "purge-cache", nil)); !errors.IsKind(err, errors.KindZoneDenied) {
		t.Errorf("private method in public zone: %v", err)
	}
	reg.SetActiveZone(dispatch.ZonePrivate)
	if _, err := handleOutcome(t, reg.Invoke(ctx, "purge-cache", nil)); err != nil {
		t.Errorf("private method in private zone: %v", err)
	}

	if _, err := handleOutcome(t, reg.Get(ctx, "quality")); err != nil {
		t.Errorf("get through registry: %v", err)
	}
	if err := reg.Set(ctx, "quality", variant.New(70)); err != nil {
		t.Errorf("set through registry: %v", err)
	}

	// read-only manifest property registers without a setter
	if err := reg.Set(ctx, "format", variant.New("webp")); !errors.IsKind(err, errors.KindUnsupported) {
		t.Errorf("set on read-only property: %v", err)
	}
}

func TestInstance_RegistryDuplicateMember(t *testing.T) {
	m := hostManifest()
	m.Methods = append(m.Methods, manifest.Method{Name: "resize"})

	inst := newInstance(m, &fakeCaller{})
	if _, err := inst.Registry(); !errors.IsKind(err, errors.KindRegistration) {
		t.Errorf("unexpected error: %v", err)
	}
}
