package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signalRecorder collects emitted typing transitions in order.
type signalRecorder struct {
	mu      sync.Mutex
	signals []bool
}

func (r *signalRecorder) record(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, on)
}

func (r *signalRecorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.signals))
	copy(out, r.signals)
	return out
}

func newTestNotifier(idle time.Duration) (*TypingNotifier, *signalRecorder) {
	rec := &signalRecorder{}
	n := NewTypingNotifier(rec.record)
	n.idle = idle
	return n, rec
}

func TestKeystrokeBurstEmitsSingleOnThenOff(t *testing.T) {
	n, rec := newTestNotifier(50 * time.Millisecond)

	for i := 0; i < 5; i++ {
		n.Keystroke()
		time.Sleep(10 * time.Millisecond)
	}

	// Still inside the burst: one typing-on, no off yet.
	assert.Equal(t, []bool{true}, rec.snapshot())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []bool{true, false}, rec.snapshot(), "exactly one off after the idle period")
}

func TestContinuousTypingDefersOff(t *testing.T) {
	n, rec := newTestNotifier(60 * time.Millisecond)

	// Keystrokes arrive faster than the idle window for well past one
	// window's length; no off may fire in that time.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		n.Keystroke()
		time.Sleep(15 * time.Millisecond)
	}
	assert.Equal(t, []bool{true}, rec.snapshot())

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []bool{true, false}, rec.snapshot())
}

func TestStopEmitsOwedOff(t *testing.T) {
	n, rec := newTestNotifier(time.Minute)

	n.Keystroke()
	n.Stop()

	assert.Equal(t, []bool{true, false}, rec.snapshot())

	// The cancelled timer must not fire a second off later.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []bool{true, false}, rec.snapshot())
}

func TestStopWithoutBurstIsSilent(t *testing.T) {
	n, rec := newTestNotifier(time.Minute)

	n.Stop()
	assert.Empty(t, rec.snapshot())

	// A new burst after Stop starts cleanly.
	n.Keystroke()
	require.Equal(t, []bool{true}, rec.snapshot())
}

func TestSecondBurstAfterIdle(t *testing.T) {
	n, rec := newTestNotifier(30 * time.Millisecond)

	n.Keystroke()
	time.Sleep(100 * time.Millisecond)
	n.Keystroke()
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, []bool{true, false, true, false}, rec.snapshot())
}
