package mesh

import (
	"errors"
	"sync"
	"testing"
)

func TestRunState_Empty(t *testing.T) {
	st := NewRunState()
	if _, _, ok := st.Result(); ok {
		t.Error("new state should have no result")
	}
	runs, updated, lastErr := st.Status()
	if runs != 0 || !updated.IsZero() || lastErr != nil {
		t.Errorf("Status() = %d, %v, %v", runs, updated, lastErr)
	}
}

func TestRunState_UpdateAndFail(t *testing.T) {
	st := NewRunState()
	res := testResult()
	st.Update(res, testConfig("ref", "cur"))

	got, summary, ok := st.Result()
	if !ok || got != res {
		t.Fatal("Result() should return the stored run")
	}
	if summary.RunID != res.RunID.String() || summary.ReferenceDir != "ref" {
		t.Errorf("summary = %+v", summary)
	}

	boom := errors.New("corrupt mesh")
	st.Fail(boom)

	// A failure keeps the last good result.
	if got, _, ok := st.Result(); !ok || got != res {
		t.Error("Fail() dropped the previous result")
	}
	runs, _, lastErr := st.Status()
	if runs != 2 {
		t.Errorf("runs = %d, want 2", runs)
	}
	if !errors.Is(lastErr, boom) {
		t.Errorf("lastErr = %v, want %v", lastErr, boom)
	}

	st.Update(res, nil)
	if _, _, lastErr := st.Status(); lastErr != nil {
		t.Errorf("a successful run should clear lastErr, got %v", lastErr)
	}
}

func TestRunState_ConcurrentAccess(t *testing.T) {
	st := NewRunState()
	res := testResult()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			st.Update(res, nil)
		}()
		go func() {
			defer wg.Done()
			st.Result()
			st.Status()
		}()
	}
	wg.Wait()

	if runs, _, _ := st.Status(); runs != 10 {
		t.Errorf("runs = %d, want 10", runs)
	}
}
