package draft

import (
	"context"
	"sync"
	"time"

	"github.com/lestrrat-go/backoff/v2"
	"go.uber.org/atomic"

	"github.com/mailmeimmu/echeck-sub000/model"
	"github.com/mailmeimmu/echeck-sub000/retry"
)

const defaultQuietPeriod = time.Second

// PumpConfig wires a Pump to its owner.
type PumpConfig struct {
	// Snapshot returns the current payload. It is read at flush time,
	// never captured at schedule time, so the latest edits always win.
	Snapshot func() model.DraftPayload

	// Flush persists one snapshot. The controller supplies the inner
	// per-call retry here; the pump adds its own save-level retry on
	// top.
	Flush func(ctx context.Context, payload model.DraftPayload) error

	// OnResult observes the outcome of every attempted flush cycle.
	OnResult func(err error)

	// Quiet is the debounce window, 1s unless overridden.
	Quiet time.Duration

	// Policy drives the save-level retry loop around Flush.
	Policy backoff.Policy
}

// Pump coalesces bursts of edits into single store writes. It is an
// explicit state machine: idle, pending (quiet timer armed), flushing.
// A notification during a flush marks the cycle dirty, and a clean
// flush that finds the dirty flag set immediately re-flushes the newer
// snapshot, so an in-flight write is superseded instead of raced.
type Pump struct {
	cfg PumpConfig

	mu       sync.Mutex
	timer    *time.Timer
	flushing bool

	dirty  atomic.Bool
	online atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewPump(cfg PumpConfig) *Pump {
	if cfg.Quiet <= 0 {
		cfg.Quiet = defaultQuietPeriod
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultSavePolicy()
	}
	if cfg.OnResult == nil {
		cfg.OnResult = func(error) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pump{cfg: cfg, ctx: ctx, cancel: cancel}
	p.online.Store(true)
	return p
}

// DefaultSavePolicy is the save-level retry: up to 5 retries with
// jittered exponential backoff between 1s and 10s.
func DefaultSavePolicy() backoff.Policy {
	return backoff.Exponential(
		backoff.WithMinInterval(time.Second),
		backoff.WithMaxInterval(10*time.Second),
		backoff.WithJitterFactor(0.1),
		backoff.WithMaxRetries(retry.UpsertAttempts),
	)
}

// Notify (re)starts the quiet timer. Called after every mutation.
func (p *Pump) Notify() {
	if p.ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.flushing || !p.online.Load() {
		// picked up by the flush loop, or by SetOnline(true)
		p.dirty.Store(true)
		return
	}
	if p.timer == nil {
		p.timer = time.AfterFunc(p.cfg.Quiet, p.fire)
	} else {
		p.timer.Reset(p.cfg.Quiet)
	}
}

// SetOnline feeds the connectivity signal. Offline, edits keep
// accumulating locally; going back online schedules a flush if
// anything is waiting.
func (p *Pump) SetOnline(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.online.Store(online)
	if !online {
		if p.timer != nil && p.timer.Stop() {
			p.dirty.Store(true)
		}
		return
	}
	if p.dirty.Load() && !p.flushing {
		if p.timer == nil {
			p.timer = time.AfterFunc(p.cfg.Quiet, p.fire)
		} else {
			p.timer.Reset(p.cfg.Quiet)
		}
	}
}

// Stop cancels the pump. In-flight retries stop at the next backoff
// wait; no further flushes are scheduled.
func (p *Pump) Stop() {
	p.cancel()
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()
}

func (p *Pump) fire() {
	p.mu.Lock()
	if p.ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	if p.flushing || !p.online.Load() {
		p.dirty.Store(true)
		p.mu.Unlock()
		return
	}
	p.flushing = true
	p.mu.Unlock()

	for {
		// clear dirty before reading the snapshot: a notification
		// landing in between re-flushes the same data at worst,
		// whereas the reverse order would wipe the marker of an edit
		// the snapshot missed
		p.dirty.Store(false)
		snap := p.cfg.Snapshot()

		var err error
		attempted := false
		if !snap.Empty() {
			// empty payload: never create a spurious draft
			attempted = true
			err = p.flushRetry(snap)
		}

		p.mu.Lock()
		if err == nil && p.dirty.Load() && p.online.Load() && p.ctx.Err() == nil {
			// superseded mid-flight: send the newer snapshot now
			p.mu.Unlock()
			continue
		}
		p.flushing = false
		stopped := p.ctx.Err() != nil
		p.mu.Unlock()

		if attempted && !stopped {
			p.cfg.OnResult(err)
		}
		return
	}
}

func (p *Pump) flushRetry(snap model.DraftPayload) error {
	b := p.cfg.Policy.Start(p.ctx)
	var last error
	for backoff.Continue(b) {
		last = p.cfg.Flush(p.ctx, snap)
		if last == nil || !retry.Transient(last) {
			return last
		}
	}
	if last == nil {
		last = p.ctx.Err()
	}
	return last
}
