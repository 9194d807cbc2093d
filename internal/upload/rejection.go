package upload

import (
	"sync"
	"time"
)

const DefaultDismissDelay = 5 * time.Second

// Notice is an aggregated rejection message shown for a fixed time.
type Notice struct {
	Message   string    `json:"message"`
	Files     []string  `json:"files"`
	ShownAt   time.Time `json:"shownAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RejectionBoard holds at most one notice and dismisses it after a delay so it never blocks
// later submissions.
type RejectionBoard struct {
	mu         sync.Mutex
	delay      time.Duration
	current    *Notice
	generation uint64
	timer      *time.Timer
	onDismiss  func()
}

func NewRejectionBoard(delay time.Duration, onDismiss func()) *RejectionBoard {
	if delay <= 0 {
		delay = DefaultDismissDelay
	}
	if onDismiss == nil {
		onDismiss = func() {}
	}
	return &RejectionBoard{delay: delay, onDismiss: onDismiss}
}

// Show replaces any current notice and schedules its dismissal.
func (r *RejectionBoard) Show(message string, files []string) Notice {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
	}

	now := time.Now()
	notice := Notice{
		Message:   message,
		Files:     files,
		ShownAt:   now,
		ExpiresAt: now.Add(r.delay),
	}
	r.current = &notice
	r.generation++

	generation := r.generation
	r.timer = time.AfterFunc(r.delay, func() {
		r.dismiss(generation)
	})

	return notice
}

func (r *RejectionBoard) dismiss(generation uint64) {
	r.mu.Lock()
	if r.generation != generation || r.current == nil {
		r.mu.Unlock()
		return
	}
	r.current = nil
	r.timer = nil
	r.mu.Unlock()

	r.onDismiss()
}

// Current returns the visible notice, if any.
func (r *RejectionBoard) Current() *Notice {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return nil
	}
	notice := *r.current
	return &notice
}

// Close stops the pending dismissal timer and drops the notice.
func (r *RejectionBoard) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.current = nil
	r.generation++
}
