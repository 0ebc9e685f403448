// Package draft implements the offline-resilient draft synchronization
// subsystem used by the inspection form: a remote store accessor, a
// read cache with a freshness window, a debounced persistence pump and
// the cache controller that ties them to the form.
package draft

import (
	"context"

	"github.com/mailmeimmu/echeck-sub000/model"
)

// Store is the remote draft store, keyed by (session, author). Fetch
// returns (nil, nil) when no draft exists: absence is a normal outcome,
// not a failure, and must never enter the retry path.
type Store interface {
	Fetch(ctx context.Context, key model.DraftKey) (*model.Draft, error)
	Upsert(ctx context.Context, key model.DraftKey, payload model.DraftPayload) (*model.Draft, error)
	Delete(ctx context.Context, key model.DraftKey) error
}
