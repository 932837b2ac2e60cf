package host

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/scripthost-io/scripthost/errors"
	"github.com/scripthost-io/scripthost/variant"
)

func TestCodec_EncodeRequest(t *testing.T) {
	data, err := encodeRequest(request{
		Op:     opCall,
		Member: "resize",
		ID:     "c-1",
		Args:   encodeArgs(variant.MakeList("in.png", 800)),
	})
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal wire form: %v", err)
	}
	if wire["op"] != "call" || wire["member"] != "resize" || wire["id"] != "c-1" {
		t.Errorf("wire form = %v", wire)
	}
	args, ok := wire["args"].([]any)
	if !ok || len(args) != 2 {
		t.Fatalf("args = %v", wire["args"])
	}
	if args[0] != "in.png" {
		t.Errorf("args[0] = %v", args[0])
	}
}

func TestCodec_EncodeRequestOmitsEmptyArgs(t *testing.T) {
	data, err := encodeRequest(request{Op: opGet, Member: "title", ID: "c-2"})
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	if strings.Contains(string(data), "args") {
		t.Errorf("get request should carry no args: %s", data)
	}
	if strings.Contains(string(data), "value") {
		t.Errorf("get request should carry no value: %s", data)
	}
}

func TestCodec_DecodeResponse(t *testing.T) {
	resp, err := decodeResponse([]byte(`{"status":"resolved","value":42}`))
	if err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != statusResolved {
		t.Errorf("status = %q", resp.Status)
	}

	v := variant.FromJSON(resp.Value)
	if v.Kind() != "int" {
		t.Errorf("value kind = %q, want int to survive decoding", v.Kind())
	}
	n, err := variant.Cast[int64](v)
	if err != nil || n != 42 {
		t.Errorf("value = %v (%v), want 42", n, err)
	}
}

func TestCodec_DecodeResponseRejectsMissingStatus(t *testing.T) {
	_, err := decodeResponse([]byte(`{"value":1}`))
	if !errors.IsKind(err, errors.KindProtocol) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCodec_DecodeResponseRejectsBadJSON(t *testing.T) {
	_, err := decodeResponse([]byte(`{"status":`))
	if !errors.IsKind(err, errors.KindProtocol) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCodec_DecodeSettlement(t *testing.T) {
	env, err := decodeSettlement([]byte(`{"call":"c-9","status":"rejected","error":{"kind":"conversion","detail":"bad pixel"}}`))
	if err != nil {
		t.Fatalf("decode settlement: %v", err)
	}
	if env.Call != "c-9" || env.Status != statusRejected {
		t.Errorf("settlement = %+v", env)
	}
	if env.Error == nil || env.Error.Kind != "conversion" {
		t.Errorf("settlement error = %+v", env.Error)
	}
}

func TestCodec_DecodeSettlementRejectsMissingCall(t *testing.T) {
	_, err := decodeSettlement([]byte(`{"status":"resolved"}`))
	if !errors.IsKind(err, errors.KindProtocol) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCodec_RejectionErrorKeepsGuestKind(t *testing.T) {
	err := rejectionError(&wireError{Kind: "not_found", Detail: "no such row"})
	if !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("unexpected kind: %v", err)
	}
	if !strings.Contains(err.Error(), "no such row") {
		t.Errorf("detail lost: %v", err)
	}
}

func TestCodec_RejectionErrorDefaults(t *testing.T) {
	if err := rejectionError(&wireError{Detail: "unnamed"}); !errors.IsKind(err, errors.KindProtocol) {
		t.Errorf("empty kind should default to protocol: %v", err)
	}
	if err := rejectionError(nil); !errors.IsKind(err, errors.KindProtocol) {
		t.Errorf("missing payload should be a protocol error: %v", err)
	}
}

func TestCodec_EncodeArgs(t *testing.T) {
	if got := encodeArgs(nil); got != nil {
		t.Errorf("no args should encode to nil, got %v", got)
	}

	args := encodeArgs(variant.MakeList(true, 7, "x"))
	if len(args) != 3 {
		t.Fatalf("args = %v", args)
	}
	if args[0] != true || args[2] != "x" {
		t.Errorf("args = %v", args)
	}
}
