package draft

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lestrrat-go/backoff/v2"

	"github.com/mailmeimmu/echeck-sub000/model"
)

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("timed out waiting for", what)
}

type payloadHolder struct {
	mu sync.Mutex
	p  model.DraftPayload
}

func (h *payloadHolder) set(p model.DraftPayload) {
	h.mu.Lock()
	h.p = p
	h.mu.Unlock()
}

func (h *payloadHolder) snapshot() model.DraftPayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.p.Clone()
}

func textPayload(n int) model.DraftPayload {
	return model.DraftPayload{
		Answers: map[string]map[string]model.Answer{
			"s1": {"q1": model.TextAnswer(fmt.Sprintf("edit %d", n))},
		},
	}
}

type flushRecorder struct {
	mu        sync.Mutex
	payloads  []model.DraftPayload
	results   []error
	err       error
	failFirst int
	block     chan struct{}
}

func (f *flushRecorder) flush(_ context.Context, p model.DraftPayload) error {
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	block := f.block
	err := f.err
	if f.failFirst > 0 {
		f.failFirst--
		err = errors.New("network error")
	}
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

func (f *flushRecorder) onResult(err error) {
	f.mu.Lock()
	f.results = append(f.results, err)
	f.mu.Unlock()
}

func (f *flushRecorder) flushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *flushRecorder) resultCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

func (f *flushRecorder) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func newTestPump(h *payloadHolder, rec *flushRecorder, quiet time.Duration, policy backoff.Policy) *Pump {
	if policy == nil {
		policy = backoff.Null()
	}
	return NewPump(PumpConfig{
		Snapshot: h.snapshot,
		Flush:    rec.flush,
		OnResult: rec.onResult,
		Quiet:    quiet,
		Policy:   policy,
	})
}

func TestPumpDebounceCoalescing(t *testing.T) {
	h := &payloadHolder{}
	rec := &flushRecorder{}
	p := newTestPump(h, rec, 60*time.Millisecond, nil)
	defer p.Stop()

	for i := 1; i <= 5; i++ {
		h.set(textPayload(i))
		p.Notify()
		time.Sleep(5 * time.Millisecond)
	}

	waitFor(t, time.Second, "flush", func() bool { return rec.flushCount() == 1 })
	time.Sleep(100 * time.Millisecond)
	if n := rec.flushCount(); n != 1 {
		t.Fatalf("flushes = %d, want 1", n)
	}

	got := rec.payloads[0].Answers["s1"]["q1"]
	if want := model.TextAnswer("edit 5"); !got.Equal(want) {
		t.Errorf("flushed answer = %+v, want the last edit", got)
	}
}

func TestPumpSupersedesInFlightFlush(t *testing.T) {
	h := &payloadHolder{}
	rec := &flushRecorder{block: make(chan struct{})}
	p := newTestPump(h, rec, 10*time.Millisecond, nil)
	defer p.Stop()

	h.set(textPayload(1))
	p.Notify()
	waitFor(t, time.Second, "first flush to start", func() bool { return rec.flushCount() == 1 })

	// edits arriving mid-flight must win, not race
	h.set(textPayload(2))
	p.Notify()

	rec.mu.Lock()
	block := rec.block
	rec.block = nil
	rec.mu.Unlock()
	close(block)

	waitFor(t, time.Second, "superseding flush", func() bool { return rec.flushCount() == 2 })

	got := rec.payloads[1].Answers["s1"]["q1"]
	if want := model.TextAnswer("edit 2"); !got.Equal(want) {
		t.Errorf("second flush sent %+v, want the newer edit", got)
	}
	if n := rec.resultCount(); n != 1 {
		t.Errorf("results = %d, want 1 per cycle", n)
	}
}

func TestPumpEditDuringSnapshotIsNotLost(t *testing.T) {
	h := &payloadHolder{}
	rec := &flushRecorder{}

	// an edit landing between the snapshot clone and the flush must
	// still mark the cycle dirty, not be wiped by it
	var p *Pump
	var once sync.Once
	snapshot := func() model.DraftPayload {
		snap := h.snapshot()
		once.Do(func() {
			h.set(textPayload(2))
			p.Notify()
		})
		return snap
	}

	p = NewPump(PumpConfig{
		Snapshot: snapshot,
		Flush:    rec.flush,
		OnResult: rec.onResult,
		Quiet:    10 * time.Millisecond,
		Policy:   backoff.Null(),
	})
	defer p.Stop()

	h.set(textPayload(1))
	p.Notify()

	waitFor(t, time.Second, "follow-up flush", func() bool { return rec.flushCount() == 2 })
	got := rec.payloads[1].Answers["s1"]["q1"]
	if want := model.TextAnswer("edit 2"); !got.Equal(want) {
		t.Errorf("durable state = %+v, want the edit made mid-snapshot", got)
	}
}

func TestPumpSkipsEmptyPayload(t *testing.T) {
	h := &payloadHolder{}
	rec := &flushRecorder{}
	p := newTestPump(h, rec, 10*time.Millisecond, nil)
	defer p.Stop()

	p.Notify()
	time.Sleep(80 * time.Millisecond)

	if n := rec.flushCount(); n != 0 {
		t.Errorf("flushes = %d, want 0 for empty payload", n)
	}
	if n := rec.resultCount(); n != 0 {
		t.Errorf("results = %d, want 0 for skipped flush", n)
	}
}

func TestPumpOfflinePausesAndResumeFlushes(t *testing.T) {
	h := &payloadHolder{}
	rec := &flushRecorder{}
	p := newTestPump(h, rec, 10*time.Millisecond, nil)
	defer p.Stop()

	p.SetOnline(false)
	h.set(textPayload(1))
	p.Notify()
	time.Sleep(60 * time.Millisecond)
	if n := rec.flushCount(); n != 0 {
		t.Fatalf("flushes while offline = %d, want 0", n)
	}

	p.SetOnline(true)
	waitFor(t, time.Second, "flush after resume", func() bool { return rec.flushCount() == 1 })
}

func TestPumpSaveRetryOnTransientFailure(t *testing.T) {
	h := &payloadHolder{}
	rec := &flushRecorder{failFirst: 2}
	policy := backoff.Constant(
		backoff.WithInterval(time.Millisecond),
		backoff.WithMaxRetries(5),
	)
	p := newTestPump(h, rec, 10*time.Millisecond, policy)
	defer p.Stop()

	h.set(textPayload(1))
	p.Notify()
	waitFor(t, time.Second, "eventual success", func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.results) == 1 && rec.results[0] == nil
	})
	if n := rec.flushCount(); n != 3 {
		t.Errorf("flush attempts = %d, want 3", n)
	}
}

func TestPumpSurfacesFailureAndRecoversOnNextEdit(t *testing.T) {
	h := &payloadHolder{}
	rec := &flushRecorder{err: errors.New("permission denied")}
	p := newTestPump(h, rec, 10*time.Millisecond, nil)
	defer p.Stop()

	h.set(textPayload(1))
	p.Notify()
	waitFor(t, time.Second, "failure surfaced", func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.results) == 1 && rec.results[0] != nil
	})

	// nothing happens until the next mutation
	time.Sleep(50 * time.Millisecond)
	if n := rec.flushCount(); n != 1 {
		t.Fatalf("flushes = %d, want 1 until the next edit", n)
	}

	rec.setErr(nil)
	h.set(textPayload(2))
	p.Notify()
	waitFor(t, time.Second, "recovery", func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.results) == 2 && rec.results[1] == nil
	})
}
