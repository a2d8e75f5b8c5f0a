package backend

import "sync"

// UsageTracker accumulates token usage across completion calls.
type UsageTracker struct {
	mu        sync.Mutex
	tokensIn  int64
	tokensOut int64
	calls     int
}

func NewUsageTracker() *UsageTracker {
	return &UsageTracker{}
}

func (t *UsageTracker) Add(in, out int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokensIn += in
	t.tokensOut += out
	t.calls++
}

func (t *UsageTracker) Total() (in, out int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tokensIn, t.tokensOut
}

func (t *UsageTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
