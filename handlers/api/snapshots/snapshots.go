package snapshots

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"tactics-board/canvas"
	"tactics-board/core"
	"tactics-board/handlers/api/boards"
	"tactics-board/middleware"
)

type (
	CreateSnapshotRequest struct {
		Name string `json:"name"`
	}

	CreateSnapshotResponse struct {
		ID string `json:"id"`
	}
)

// snapshotBoard loads a snapshot and authorizes the caller on its board.
func snapshotBoard(w http.ResponseWriter, r *http.Request, store boards.Store, snapshots core.SnapshotStore, need core.AccessLevel) (*core.Snapshot, *core.Board, bool) {
	snapshotID := chi.URLParam(r, "snapshotId")

	snapshot, err := snapshots.GetSnapshot(r.Context(), snapshotID)
	if errors.Is(err, core.ErrNotFound) {
		boards.RespondError(w, r, http.StatusNotFound, "Snapshot not found")
		return nil, nil, false
	}
	if err != nil {
		logrus.WithError(err).WithField("snapshot_id", snapshotID).Error("Failed to get snapshot")
		boards.RespondError(w, r, http.StatusInternalServerError, "Failed to get snapshot")
		return nil, nil, false
	}

	board, _, ok := boards.Authorize(w, r, store, snapshot.BoardID, need)
	if !ok {
		return nil, nil, false
	}
	return snapshot, board, true
}

// HandleCreateSnapshot stores the current document of a board under a name.
// The oldest snapshot is evicted past core.MaxSnapshotsPerBoard.
func HandleCreateSnapshot(store boards.Store, snapshots core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID := chi.URLParam(r, "id")
		board, _, ok := boards.Authorize(w, r, store, boardID, core.AccessEdit)
		if !ok {
			return
		}

		var req CreateSnapshotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logrus.WithError(err).Warn("Failed to decode request")
			boards.RespondError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Name == "" {
			req.Name = time.Now().UTC().Format(time.RFC3339)
		}
		userID, _ := middleware.UserID(r.Context())

		id, err := snapshots.CreateSnapshot(r.Context(), boardID, req.Name, userID, board.Document)
		if err != nil {
			logrus.WithError(err).WithField("board_id", boardID).Error("Failed to create snapshot")
			boards.RespondError(w, r, http.StatusInternalServerError, "Failed to create snapshot")
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, CreateSnapshotResponse{ID: id})
	}
}

// HandleListSnapshots lists snapshot metadata of a board, newest first.
func HandleListSnapshots(store boards.Store, snapshots core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID := chi.URLParam(r, "id")
		if _, _, ok := boards.Authorize(w, r, store, boardID, core.AccessView); !ok {
			return
		}

		list, err := snapshots.ListSnapshots(r.Context(), boardID)
		if err != nil {
			logrus.WithError(err).WithField("board_id", boardID).Error("Failed to list snapshots")
			boards.RespondError(w, r, http.StatusInternalServerError, "Failed to list snapshots")
			return
		}
		if list == nil {
			list = []core.Snapshot{}
		}
		render.JSON(w, r, list)
	}
}

func HandleGetSnapshot(store boards.Store, snapshots core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, _, ok := snapshotBoard(w, r, store, snapshots, core.AccessView)
		if !ok {
			return
		}
		render.JSON(w, r, snapshot)
	}
}

func HandleDeleteSnapshot(store boards.Store, snapshots core.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, _, ok := snapshotBoard(w, r, store, snapshots, core.AccessEdit)
		if !ok {
			return
		}

		if err := snapshots.DeleteSnapshot(r.Context(), snapshot.ID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				boards.RespondError(w, r, http.StatusNotFound, "Snapshot not found")
				return
			}
			logrus.WithError(err).WithField("snapshot_id", snapshot.ID).Error("Failed to delete snapshot")
			boards.RespondError(w, r, http.StatusInternalServerError, "Failed to delete snapshot")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleRestoreSnapshot writes the snapshot back as the board document. The
// snapshot goes through the same validation as a PUT.
func HandleRestoreSnapshot(store boards.Store, snapshots core.SnapshotStore, notifier boards.Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, board, ok := snapshotBoard(w, r, store, snapshots, core.AccessEdit)
		if !ok {
			return
		}
		log := logrus.WithFields(logrus.Fields{"snapshot_id": snapshot.ID, "board_id": board.ID})

		doc, err := boards.ParseDocument(board, snapshot.Data)
		if err != nil {
			log.WithError(err).Warn("Snapshot no longer fits its board")
			boards.RespondError(w, r, http.StatusConflict, err.Error())
			return
		}
		document, err := canvas.EncodeDocument(doc)
		if err != nil {
			boards.RespondError(w, r, http.StatusInternalServerError, "Failed to restore snapshot")
			return
		}
		if err := store.SaveDocument(r.Context(), board.ID, document, doc.BackgroundURL); err != nil {
			log.WithError(err).Error("Failed to restore snapshot")
			boards.RespondError(w, r, http.StatusInternalServerError, "Failed to restore snapshot")
			return
		}
		if notifier != nil {
			notifier.BoardUpdated(board.ID, time.Now().UTC())
		}
		log.Info("Snapshot restored")
		w.WriteHeader(http.StatusNoContent)
	}
}
