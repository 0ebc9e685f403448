package draft

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/mailmeimmu/echeck-sub000/model"
)

func testKey() model.DraftKey {
	return model.DraftKey{
		SessionID: uuid.Must(uuid.NewV4()),
		AuthorID:  uuid.Must(uuid.NewV4()),
	}
}

// stubStore is an in-memory Store with switchable failures.
type stubStore struct {
	mu     sync.Mutex
	drafts map[model.DraftKey]*model.Draft

	fetchErr  error
	upsertErr error
	deleteErr error

	fetches  int
	upserts  int
	deletes  int
	upserted []model.DraftPayload
}

func newStubStore() *stubStore {
	return &stubStore{drafts: map[model.DraftKey]*model.Draft{}}
}

func (s *stubStore) Fetch(_ context.Context, key model.DraftKey) (*model.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.drafts[key], nil
}

func (s *stubStore) Upsert(_ context.Context, key model.DraftKey, payload model.DraftPayload) (*model.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	s.upserted = append(s.upserted, payload)
	d := &model.Draft{DraftKey: key, Payload: payload.Clone(), UpdatedAt: time.Now()}
	s.drafts[key] = d
	return d, nil
}

func (s *stubStore) Delete(_ context.Context, key model.DraftKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.drafts, key)
	return nil
}

func (s *stubStore) setErrs(fetch, upsert, del error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchErr, s.upsertErr, s.deleteErr = fetch, upsert, del
}

func (s *stubStore) counts() (fetches, upserts, deletes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches, s.upserts, s.deletes
}

func (s *stubStore) lastUpserted() (model.DraftPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.upserted) == 0 {
		return model.DraftPayload{}, false
	}
	return s.upserted[len(s.upserted)-1], true
}
