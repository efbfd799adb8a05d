package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_Defaults(t *testing.T) {
	b := New("document-analysis")
	assert.Equal(t, "document-analysis", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
}

// step is one recorded call. ok selects RecordSuccess over RecordFailure.
type step struct {
	ok       bool
	wantOpen bool
	opened   bool
	closed   bool
}

func TestBreaker_Transitions(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		successes int
		steps     []step
	}{
		{
			name:     "opens on the threshold failure",
			failures: 3, successes: 1,
			steps: []step{
				{wantOpen: false},
				{wantOpen: false},
				{wantOpen: true, opened: true},
				{wantOpen: true},
			},
		},
		{
			name:     "success while closed clears the failure count",
			failures: 2, successes: 1,
			steps: []step{
				{wantOpen: false},
				{ok: true, wantOpen: false},
				{wantOpen: false},
				{wantOpen: true, opened: true},
			},
		},
		{
			name:     "closes after consecutive successes",
			failures: 1, successes: 2,
			steps: []step{
				{wantOpen: true, opened: true},
				{ok: true, wantOpen: true},
				{ok: true, wantOpen: false, closed: true},
			},
		},
		{
			name:     "failure while open restarts the success count",
			failures: 1, successes: 2,
			steps: []step{
				{wantOpen: true, opened: true},
				{ok: true, wantOpen: true},
				{wantOpen: true},
				{ok: true, wantOpen: true},
				{ok: true, wantOpen: false, closed: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("test", WithFailureThreshold(tt.failures), WithSuccessThreshold(tt.successes))
			for i, st := range tt.steps {
				var change StateChange
				if st.ok {
					_, change = b.RecordSuccess()
				} else {
					_, change = b.RecordFailure()
				}
				require.Equal(t, st.wantOpen, b.IsOpen(), "step %d", i)
				assert.Equal(t, st.opened, change.Opened, "step %d opened", i)
				assert.Equal(t, st.closed, change.Closed, "step %d closed", i)
			}
		})
	}
}

func TestBreaker_ResetCloses(t *testing.T) {
	b := New("test", WithFailureThreshold(1))
	useFallback, _ := b.RecordFailure()
	require.True(t, useFallback)

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	usePrimary, _ := b.RecordSuccess()
	assert.True(t, usePrimary)
}

func TestBreaker_ProbeAfterCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := New("analysis",
		WithFailureThreshold(1),
		WithCooldown(10*time.Second),
		WithClock(func() time.Time { return now }),
	)

	b.RecordFailure()
	assert.False(t, b.Allow())

	now = now.Add(10 * time.Second)
	assert.True(t, b.Allow())

	// a failed probe restarts the cooldown
	b.RecordFailure()
	assert.False(t, b.Allow())
}
