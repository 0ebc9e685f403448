package draft

import (
	"context"
	"sync"
	"time"

	"github.com/lestrrat-go/backoff/v2"
	"go.uber.org/atomic"

	"github.com/mailmeimmu/echeck-sub000/log"
	"github.com/mailmeimmu/echeck-sub000/model"
	"github.com/mailmeimmu/echeck-sub000/retry"
)

// Status is the saving indicator exposed to the form.
type Status int32

const (
	StatusIdle Status = iota
	StatusSaving
	StatusSaved
	StatusFailed
)

// ControllerConfig tunes retry ceilings and debounce timing. The zero
// value gives production defaults; tests shrink the windows.
type ControllerConfig struct {
	Quiet          time.Duration
	FetchAttempts  int
	UpsertAttempts int
	DeleteAttempts int
	SavePolicy     backoff.Policy
}

func (cfg *ControllerConfig) defaults() {
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = retry.FetchAttempts
	}
	if cfg.UpsertAttempts <= 0 {
		cfg.UpsertAttempts = retry.UpsertAttempts
	}
	if cfg.DeleteAttempts <= 0 {
		cfg.DeleteAttempts = retry.DeleteAttempts
	}
}

// Controller owns the in-memory draft of one (session, author) pair:
// it hydrates from the store through the cache, applies mutations
// synchronously, and hands persistence to the debounced pump. Sync
// failures land in an error state the form can show and dismiss;
// they never roll back local edits.
type Controller struct {
	key   model.DraftKey
	store Store
	cache *Cache
	pump  *Pump
	cfg   ControllerConfig

	mu      sync.Mutex
	payload model.DraftPayload

	status  atomic.Int32
	lastErr atomic.Error
}

func NewController(store Store, cache *Cache, key model.DraftKey, cfg ControllerConfig) *Controller {
	cfg.defaults()

	c := &Controller{
		key:   key,
		store: store,
		cache: cache,
		cfg:   cfg,
	}
	c.pump = NewPump(PumpConfig{
		Snapshot: c.Payload,
		Flush:    c.flush,
		OnResult: c.onFlushResult,
		Quiet:    cfg.Quiet,
		Policy:   cfg.SavePolicy,
	})
	return c
}

// Hydrate loads the persisted draft, serving the cache within its
// freshness window. A missing draft is a normal outcome: the form
// starts fresh on (nil, nil). When a re-fetch fails transiently a
// retained stale entry is served rather than an error.
func (c *Controller) Hydrate(ctx context.Context) (*model.Draft, error) {
	if d, ok := c.cache.Get(c.key); ok {
		c.adopt(d)
		return d, nil
	}

	d, err := retry.Do(ctx, c.cfg.FetchAttempts, func(ctx context.Context) (*model.Draft, error) {
		return c.store.Fetch(ctx, c.key)
	})
	if err != nil {
		if stale, ok := c.cache.GetStale(c.key); ok {
			log.Warnf("draft.hydrate.stale: %s", err)
			c.adopt(stale)
			return stale, nil
		}
		c.setError(err)
		return nil, err
	}

	c.cache.Put(c.key, d)
	c.adopt(d)
	return d, nil
}

func (c *Controller) adopt(d *model.Draft) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d != nil {
		c.payload = d.Payload.Clone()
	} else {
		c.payload = model.DraftPayload{}
	}
}

// Payload returns a snapshot of the in-memory draft.
func (c *Controller) Payload() model.DraftPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payload.Clone()
}

// mutate applies fn under the lock, then pokes the pump. Mutations are
// synchronous and ordered; persistence is not.
func (c *Controller) mutate(fn func(p *model.DraftPayload)) {
	c.mu.Lock()
	fn(&c.payload)
	c.mu.Unlock()
	c.pump.Notify()
}

func (c *Controller) SetAnswer(sectionID, questionID string, a model.Answer) {
	c.mutate(func(p *model.DraftPayload) {
		if p.Answers == nil {
			p.Answers = map[string]map[string]model.Answer{}
		}
		if p.Answers[sectionID] == nil {
			p.Answers[sectionID] = map[string]model.Answer{}
		}
		p.Answers[sectionID][questionID] = a
	})
}

func (c *Controller) AddPhoto(sectionID, questionID, ref string) {
	key := model.FieldKey(sectionID, questionID)
	c.mutate(func(p *model.DraftPayload) {
		if p.PhotoRefs == nil {
			p.PhotoRefs = map[string][]string{}
		}
		p.PhotoRefs[key] = append(p.PhotoRefs[key], ref)
	})
}

func (c *Controller) RemovePhoto(sectionID, questionID, ref string) {
	key := model.FieldKey(sectionID, questionID)
	c.mutate(func(p *model.DraftPayload) {
		refs := p.PhotoRefs[key]
		for i, r := range refs {
			if r == ref {
				p.PhotoRefs[key] = append(refs[:i], refs[i+1:]...)
				break
			}
		}
		if len(p.PhotoRefs[key]) == 0 {
			delete(p.PhotoRefs, key)
		}
	})
}

func (c *Controller) SetNote(sectionID, questionID, note string) {
	key := model.FieldKey(sectionID, questionID)
	c.mutate(func(p *model.DraftPayload) {
		if note == "" {
			delete(p.Notes, key)
			return
		}
		if p.Notes == nil {
			p.Notes = map[string]string{}
		}
		p.Notes[key] = note
	})
}

func (c *Controller) SetPosition(i int) {
	c.mutate(func(p *model.DraftPayload) {
		p.WizardPosition = i
	})
}

// SetOnline feeds the connectivity signal through to the pump.
func (c *Controller) SetOnline(online bool) {
	c.pump.SetOnline(online)
}

// flush is one save-level attempt: a store upsert behind the inner
// per-call retry. On success the cache is refreshed so a re-mount sees
// the persisted state.
func (c *Controller) flush(ctx context.Context, payload model.DraftPayload) error {
	c.status.Store(int32(StatusSaving))

	d, err := retry.Do(ctx, c.cfg.UpsertAttempts, func(ctx context.Context) (*model.Draft, error) {
		return c.store.Upsert(ctx, c.key, payload)
	})
	if err != nil {
		return err
	}
	c.cache.Put(c.key, d)
	return nil
}

func (c *Controller) onFlushResult(err error) {
	if err != nil {
		log.Warnf("draft.save: %s", err)
		c.setError(err)
		return
	}
	c.lastErr.Store(nil)
	c.status.Store(int32(StatusSaved))
}

// Delete removes the remote draft immediately (no debounce) and
// invalidates the cache so the next Hydrate confirms absence.
func (c *Controller) Delete(ctx context.Context) error {
	err := retry.Run(ctx, c.cfg.DeleteAttempts, func(ctx context.Context) error {
		return c.store.Delete(ctx, c.key)
	})
	if err != nil {
		c.setError(err)
		return err
	}
	c.cache.Invalidate(c.key)
	return nil
}

// Finalize runs the submission call and, on success, cleans up the
// draft best-effort: a failed delete is logged and left to the server
// retention policy.
func (c *Controller) Finalize(ctx context.Context, submit func(ctx context.Context) error) error {
	if err := submit(ctx); err != nil {
		return err
	}

	c.pump.Stop()
	err := retry.Run(ctx, c.cfg.DeleteAttempts, func(ctx context.Context) error {
		return c.store.Delete(ctx, c.key)
	})
	if err != nil {
		log.Warnf("draft.finalize.delete: %s", err)
	}
	c.cache.Invalidate(c.key)
	return nil
}

func (c *Controller) setError(err error) {
	c.lastErr.Store(err)
	c.status.Store(int32(StatusFailed))
}

func (c *Controller) Status() Status {
	return Status(c.status.Load())
}

// Err returns the last sync failure, or nil.
func (c *Controller) Err() error {
	return c.lastErr.Load()
}

// ClearError dismisses the failure notice.
func (c *Controller) ClearError() {
	c.lastErr.Store(nil)
	if c.Status() == StatusFailed {
		c.status.Store(int32(StatusIdle))
	}
}

// Close stops background flushing. Unsynced edits stay in memory.
func (c *Controller) Close() {
	c.pump.Stop()
}
