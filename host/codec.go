package host

import (
	"bytes"
	"encoding/json"

	"github.com/scripthost-io/scripthost/errors"
	"github.com/scripthost-io/scripthost/variant"
)

// Envelope operations the host sends to the guest.
const (
	opCall = "call"
	opGet  = "get"
	opSet  = "set"
)

// Settlement statuses on the wire.
const (
	statusResolved = "resolved"
	statusRejected = "rejected"
	statusPending  = "pending"
)

// request is the envelope written into guest memory for
// plugin_invoke. The host mints the correlation id; a guest that
// answers pending settles it later through the settle import.
type request struct {
	Op     string `json:"op"`
	Member string `json:"member"`
	ID     string `json:"id"`
	Args   []any  `json:"args,omitempty"`
	Value  any    `json:"value,omitempty"`
}

// response is the guest's immediate answer to plugin_invoke.
type response struct {
	Status string     `json:"status"`
	Value  any        `json:"value,omitempty"`
	Error  *wireError `json:"error,omitempty"`
	Call   string     `json:"call,omitempty"`
}

// settlement arrives through the settle host import for a call the
// guest previously answered pending.
type settlement struct {
	Call   string     `json:"call"`
	Status string     `json:"status"`
	Value  any        `json:"value,omitempty"`
	Error  *wireError `json:"error,omitempty"`
}

// wireError is the rejection payload a guest reports.
type wireError struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func encodeRequest(req request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Protocol("encode request", err)
	}
	return data, nil
}

func decodeResponse(data []byte) (*response, error) {
	var resp response
	if err := decodeNumeric(data, &resp); err != nil {
		return nil, errors.Protocol("decode response", err)
	}
	if resp.Status == "" {
		return nil, errors.Protocol("response has no status", nil)
	}
	return &resp, nil
}

func decodeSettlement(data []byte) (*settlement, error) {
	var env settlement
	if err := decodeNumeric(data, &env); err != nil {
		return nil, errors.Protocol("decode settlement", err)
	}
	if env.Call == "" {
		return nil, errors.Protocol("settlement has no call id", nil)
	}
	return &env, nil
}

// decodeNumeric unmarshals with UseNumber so integer values survive
// as json.Number for variant.FromJSON to narrow, instead of
// collapsing to float64.
func decodeNumeric(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// encodeArgs converts call arguments to their JSON forms.
func encodeArgs(args variant.List) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.JSON()
	}
	return out
}

// rejectionError converts a wire rejection into an errors value. The
// guest's kind is kept when it names one, so rejections survive the
// boundary inspectable.
func rejectionError(we *wireError) error {
	if we == nil {
		return errors.Protocol("rejection without error payload", nil)
	}
	kind := errors.Kind(we.Kind)
	if kind == "" {
		debugf("guest rejection without a kind: %s", we.Detail)
		kind = errors.KindProtocol
	}
	return errors.New(errors.PhaseCall, kind).
		Detail("%s", we.Detail).
		Build()
}
