package host

import (
	"sort"
	"strconv"
	"sync"

	"github.com/scripthost-io/scripthost/deferred"
	"github.com/scripthost-io/scripthost/errors"
	"github.com/scripthost-io/scripthost/variant"
)

// pendingCall is a guest call whose outcome has not arrived yet.
type pendingCall struct {
	member string
	ctrl   deferred.Controller[variant.Variant]
}

// callTable tracks pending calls by correlation id. The lock is never
// held while guest code runs, so the settle import can take it
// reentrantly on the same goroutine's call stack.
type callTable struct {
	mu    sync.Mutex
	calls map[string]pendingCall
	limit int
}

func newCallTable(limit int) *callTable {
	return &callTable{
		calls: make(map[string]pendingCall),
		limit: limit,
	}
}

// register adds a call before the guest runs, so a settlement arriving
// during the invoke itself finds its controller.
func (t *callTable) register(id, member string, ctrl deferred.Controller[variant.Variant]) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, dup := t.calls[id]; dup {
		return errors.Protocol("duplicate call id "+id, nil)
	}
	if t.limit > 0 && len(t.calls) >= t.limit {
		return errors.Exhausted(errors.PhaseCall, "pending call limit reached ("+strconv.Itoa(t.limit)+")")
	}
	t.calls[id] = pendingCall{member: member, ctrl: ctrl}
	return nil
}

// take removes and returns the call for id.
func (t *callTable) take(id string) (pendingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pc, ok := t.calls[id]
	if ok {
		delete(t.calls, id)
	}
	return pc, ok
}

func (t *callTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// invalidateAll rejects every pending call and empties the table.
// Returned keys are "id#member" pairs, sorted. Controllers settle
// outside the lock since their continuations run synchronously.
func (t *callTable) invalidateAll() []string {
	t.mu.Lock()
	abandoned := t.calls
	t.calls = make(map[string]pendingCall)
	t.mu.Unlock()

	keys := make([]string, 0, len(abandoned))
	for id, pc := range abandoned {
		keys = append(keys, id+"#"+pc.member)
	}
	sort.Strings(keys)

	for _, pc := range abandoned {
		pc.ctrl.Invalidate()
	}
	return keys
}
