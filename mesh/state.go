package mesh

import (
	"sync"
	"time"
)

// RunState tracks the latest alignment result for the HTTP viewer. Watch
// mode replaces the result while the viewer reads it.
type RunState struct {
	mu        sync.RWMutex
	result    *Result
	summary   Summary
	lastError error
	updatedAt time.Time
	runs      int
}

// NewRunState creates an empty state.
func NewRunState() *RunState {
	return &RunState{}
}

// Update stores a successful run.
func (st *RunState) Update(res *Result, cfg *Config) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.result = res
	st.summary = Summarize(res, cfg)
	st.lastError = nil
	st.updatedAt = time.Now()
	st.runs++
}

// Fail records a failed run. The previous result stays available.
func (st *RunState) Fail(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastError = err
	st.updatedAt = time.Now()
	st.runs++
}

// Result returns the latest successful run and its summary.
func (st *RunState) Result() (*Result, Summary, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.result == nil {
		return nil, Summary{}, false
	}
	return st.result, st.summary, true
}

// Status reports run bookkeeping for health checks.
func (st *RunState) Status() (runs int, updatedAt time.Time, lastErr error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.runs, st.updatedAt, st.lastError
}
