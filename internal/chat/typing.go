package chat

import (
	"sync"
	"time"
)

// TypingIdleTimeout is how long after the last keystroke the notifier
// waits before signaling typing-off.
const TypingIdleTimeout = 1000 * time.Millisecond

// TypingNotifier owns the client-side typing debounce for one
// conversation. The first keystroke of a burst emits typing-on; the
// timer is replaced on every further keystroke, and only when it fires
// after a full idle period does exactly one typing-off go out. The relay
// holds no timers of its own.
type TypingNotifier struct {
	emit func(on bool)
	idle time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	active bool
}

func NewTypingNotifier(emit func(on bool)) *TypingNotifier {
	return &TypingNotifier{emit: emit, idle: TypingIdleTimeout}
}

// Keystroke records input activity: emits typing-on at the start of a
// burst and pushes the typing-off deadline out.
func (t *TypingNotifier) Keystroke() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		t.active = true
		t.emit(true)
	}

	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.idle, t.expire)
}

func (t *TypingNotifier) expire() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	t.active = false
	t.timer = nil
	t.emit(false)
}

// Stop ends the burst immediately, emitting typing-off if one is owed.
// Called when the message is actually sent.
func (t *TypingNotifier) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.active {
		t.active = false
		t.emit(false)
	}
}
