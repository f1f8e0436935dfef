package socketio

import (
	"sync"
	"time"

	"github.com/mercury-player/merplayer/internal/domain/player"
)

type dirty uint8

const (
	dirtyState dirty = 1 << iota
	dirtyQueue
)

// BroadcastDebouncer coalesces store changes into at most one state and one
// queue broadcast per quiet window. A steady stream of changes (a dragged
// volume slider, clock updates) still flushes once maxWait has passed since
// the first pending change.
type BroadcastDebouncer struct {
	window  time.Duration
	maxWait time.Duration
	onState func()
	onQueue func()

	mu      sync.Mutex
	pending dirty
	first   time.Time // when pending became non-zero
	timer   *time.Timer
	stopped bool
}

// NewBroadcastDebouncer creates a debouncer. maxWait defaults to four windows.
func NewBroadcastDebouncer(window time.Duration, onState, onQueue func()) *BroadcastDebouncer {
	return &BroadcastDebouncer{
		window:  window,
		maxWait: 4 * window,
		onState: onState,
		onQueue: onQueue,
	}
}

// Trigger records a change of the given kind. Every change refreshes state;
// playlist and cover changes also refresh the queue.
func (d *BroadcastDebouncer) Trigger(kind player.ChangeKind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	now := time.Now()
	if d.pending == 0 {
		d.first = now
	}
	d.pending |= dirtyState
	if kind == player.ChangePlaylist || kind == player.ChangeCover {
		d.pending |= dirtyQueue
	}

	delay := d.window
	if remaining := d.maxWait - now.Sub(d.first); remaining < delay {
		delay = max(remaining, 0)
	}
	if d.timer == nil {
		d.timer = time.AfterFunc(delay, d.flush)
	} else {
		d.timer.Reset(delay)
	}
}

func (d *BroadcastDebouncer) flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	pending := d.pending
	d.pending = 0
	d.mu.Unlock()

	// Queue first so clients can resolve the current song against it.
	if pending&dirtyQueue != 0 && d.onQueue != nil {
		d.onQueue()
	}
	if pending&dirtyState != 0 && d.onState != nil {
		d.onState()
	}
}

// Stop drops pending broadcasts and ignores later triggers.
func (d *BroadcastDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.pending = 0
	if d.timer != nil {
		d.timer.Stop()
	}
}
