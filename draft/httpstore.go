package draft

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/mailmeimmu/echeck-sub000/model"
)

// HTTPStore talks to the draft service API. It only classifies
// responses; retrying is the caller's business.
type HTTPStore struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPStore(baseURL, token string) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		token:   token,
		client:  http.DefaultClient,
	}
}

func (s *HTTPStore) WithClient(client *http.Client) *HTTPStore {
	s.client = client
	return s
}

func (s *HTTPStore) draftURL(key model.DraftKey) string {
	return fmt.Sprintf("%s/api/inspections/%s/drafts/%s",
		s.baseURL, key.SessionID, key.AuthorID)
}

func (s *HTTPStore) do(ctx context.Context, method string, key model.DraftKey, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.draftURL(key), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("authorization", "Bearer "+s.token)
	}
	return s.client.Do(req)
}

func (s *HTTPStore) Fetch(ctx context.Context, key model.DraftKey) (*model.Draft, error) {
	resp, err := s.do(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch draft")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		// no draft yet: start fresh
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, statusError("fetch draft", resp.StatusCode)
	}

	d := model.Draft{}
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, errors.Wrap(err, "fetch draft: decode")
	}
	return &d, nil
}

func (s *HTTPStore) Upsert(ctx context.Context, key model.DraftKey, payload model.DraftPayload) (*model.Draft, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "upsert draft: encode")
	}

	resp, err := s.do(ctx, http.MethodPut, key, body)
	if err != nil {
		return nil, errors.Wrap(err, "upsert draft")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("upsert draft", resp.StatusCode)
	}

	d := model.Draft{}
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, errors.Wrap(err, "upsert draft: decode")
	}
	return &d, nil
}

func (s *HTTPStore) Delete(ctx context.Context, key model.DraftKey) error {
	resp, err := s.do(ctx, http.MethodDelete, key, nil)
	if err != nil {
		return errors.Wrap(err, "delete draft")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusNotFound:
		// delete is idempotent
		return nil
	}
	return statusError("delete draft", resp.StatusCode)
}

// statusError maps gateway-ish statuses to errors the retry classifier
// recognizes as transient; everything else is permanent.
func statusError(op string, status int) error {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return errors.Errorf("%s: draft service network error: status %d", op, status)
	}
	return errors.Errorf("%s: draft service rejected request: status %d", op, status)
}
