package deferred

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// callLog records continuation invocations so tests can assert exact
// delivery order. Settlement is synchronous, so no synchronization or
// waiting is needed: by the time Resolve/Reject returns, every
// continuation that should have run has run.
type callLog struct {
	calls []string
}

func newCallLog() *callLog {
	return &callLog{}
}

func (l *callLog) Record(place string) {
	l.calls = append(l.calls, place)
}

func (l *callLog) Summarize() string {
	return strings.Join(l.calls, "|")
}

func (l *callLog) AssertCalls(t *testing.T, expected string) {
	t.Helper()
	require.Equal(t, expected, l.Summarize())
}

func (l *callLog) AssertEmpty(t *testing.T) {
	t.Helper()
	require.Empty(t, l.calls)
}
