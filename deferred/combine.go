package deferred

import (
	"github.com/scripthost-io/scripthost/errors"
)

// All derives a Handle that resolves with every input's value, in
// argument order, once all inputs have resolved. The first input
// rejection rejects the derived Handle with that error; later
// settlements of other inputs deliver nothing. An invalid input Handle
// rejects immediately. No inputs resolves immediately with an empty
// slice.
func All[T any](hs ...Handle[T]) Handle[[]T] {
	out := New[[]T]()
	if len(hs) == 0 {
		_ = out.Resolve([]T{})
		return out.Promise()
	}

	results := make([]T, len(hs))
	remaining := len(hs)
	for i, h := range hs {
		i := i
		if !h.Valid() {
			_ = out.Reject(errors.InvalidHandle("all"))
			return out.Promise()
		}
		h.Done(func(v T) {
			results[i] = v
			remaining--
			if remaining == 0 {
				_ = out.Resolve(results)
			}
		}).Fail(func(err error) {
			_ = out.Reject(err)
		})
	}
	return out.Promise()
}
