package boards

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"tactics-board/core"
)

func HandleListAccess(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID := chi.URLParam(r, "id")
		if _, ok := requireOwner(w, r, store, boardID); !ok {
			return
		}

		entries, err := store.ListAccess(r.Context(), boardID)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			logrus.WithError(err).WithField("board_id", boardID).Error("Failed to list access")
			RespondError(w, r, http.StatusInternalServerError, "Failed to list access")
			return
		}
		if entries == nil {
			entries = []core.AccessEntry{}
		}
		render.JSON(w, r, entries)
	}
}

// HandleGrantAccess creates or replaces the entry of {userId}.
func HandleGrantAccess(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID := chi.URLParam(r, "id")
		userID := chi.URLParam(r, "userId")
		board, ok := requireOwner(w, r, store, boardID)
		if !ok {
			return
		}

		var req GrantAccessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		level, valid := core.ParseAccessLevel(req.Level)
		if !valid {
			RespondError(w, r, http.StatusBadRequest, "level must be view or edit")
			return
		}
		if userID == board.OwnerID {
			RespondError(w, r, http.StatusBadRequest, "The owner always keeps edit access")
			return
		}

		entry := core.AccessEntry{UserID: userID, BoardID: boardID, Level: level}
		if err := store.Grant(r.Context(), entry); err != nil {
			logrus.WithError(err).WithField("board_id", boardID).Error("Failed to grant access")
			RespondError(w, r, http.StatusInternalServerError, "Failed to grant access")
			return
		}
		render.JSON(w, r, entry)
	}
}

func HandleRevokeAccess(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID := chi.URLParam(r, "id")
		userID := chi.URLParam(r, "userId")
		board, ok := requireOwner(w, r, store, boardID)
		if !ok {
			return
		}
		if userID == board.OwnerID {
			RespondError(w, r, http.StatusBadRequest, "The owner always keeps edit access")
			return
		}

		if err := store.Revoke(r.Context(), userID, boardID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				RespondError(w, r, http.StatusNotFound, "Access entry not found")
				return
			}
			logrus.WithError(err).WithField("board_id", boardID).Error("Failed to revoke access")
			RespondError(w, r, http.StatusInternalServerError, "Failed to revoke access")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
