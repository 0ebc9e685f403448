package routes

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/goccy/go-json"
	"github.com/gofrs/uuid"

	"github.com/mailmeimmu/echeck-sub000/app"
	"github.com/mailmeimmu/echeck-sub000/httpx"
	"github.com/mailmeimmu/echeck-sub000/log"
	"github.com/mailmeimmu/echeck-sub000/model"
)

func draftKey(r *http.Request) (key model.DraftKey, err error) {
	key.SessionID, err = uuid.FromString(chi.URLParam(r, "session"))
	if err != nil {
		return
	}
	key.AuthorID, err = uuid.FromString(chi.URLParam(r, "author"))
	return
}

func GetDraft(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := draftKey(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.key")
			return
		}

		var payloadJson string
		var updatedAt time.Time
		err = app.QueryRowContext(r.Context(), `
			SELECT payload, updated_at FROM draft
			WHERE session_id = ? AND author_id = ?`,
			key.SessionID.String(),
			key.AuthorID.String(),
		).Scan(&payloadJson, &updatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_draft", key)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_draft", err)
			return
		}

		draft := model.Draft{DraftKey: key, UpdatedAt: updatedAt}
		err = json.Unmarshal([]byte(payloadJson), &draft.Payload)
		if err != nil {
			httpx.LogInternalError(w, "db.get_draft.parse_payload", err)
			return
		}

		render.JSON(w, r, draft)
	}
}

func UpsertDraft(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := draftKey(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.key")
			return
		}

		payload := model.DraftPayload{}
		err = render.DecodeJSON(r.Body, &payload)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		for _, qs := range payload.Answers {
			for qId, a := range qs {
				if err := a.Validate(); err != nil {
					httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel,
						"request.validate_answer", "invalid answer for %q: %s", qId, err)
					return
				}
			}
		}

		payloadJson, err := json.Marshal(payload)
		if err != nil {
			httpx.LogInternalError(w, "db.upsert_draft.encode_payload", err)
			return
		}

		// last successful upsert wins, one row per (session, author)
		var updatedAt time.Time
		err = app.QueryRowContext(r.Context(), `
			INSERT INTO draft (session_id, author_id, payload, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (session_id, author_id) DO UPDATE
				SET payload = excluded.payload, updated_at = excluded.updated_at
			RETURNING updated_at`,
			key.SessionID.String(),
			key.AuthorID.String(),
			string(payloadJson),
			time.Now().UTC(),
		).Scan(&updatedAt)
		if err != nil {
			httpx.LogInternalError(w, "db.upsert_draft", err)
			return
		}

		render.JSON(w, r, model.Draft{
			DraftKey:  key,
			Payload:   payload,
			UpdatedAt: updatedAt,
		})
	}
}

func DeleteDraft(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := draftKey(r)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.key")
			return
		}

		_, err = app.ExecContext(r.Context(), `
			DELETE FROM draft
			WHERE session_id = ? AND author_id = ?`,
			key.SessionID.String(),
			key.AuthorID.String(),
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_draft", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
