package boards

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"tactics-board/canvas"
	"tactics-board/core"
	"tactics-board/middleware"
	"tactics-board/preview"
)

// MaxDocumentSize bounds request bodies carrying a board document.
const MaxDocumentSize = 8 << 20

type (
	CreateBoardRequest struct {
		Name          string  `json:"name"`
		DesignWidth   float64 `json:"designWidth"`
		DesignHeight  float64 `json:"designHeight"`
		BackgroundURL string  `json:"backgroundUrl"`
	}

	CreateBoardResponse struct {
		ID string `json:"id"`
	}

	GrantAccessRequest struct {
		Level string `json:"level"`
	}

	// Store is the persistence the board API needs.
	Store interface {
		core.BoardStore
		core.AccessStore
	}

	// Notifier is told about every successful document write.
	Notifier interface {
		BoardUpdated(boardID string, updatedAt time.Time)
	}
)

// RespondError writes a JSON error body. Messages never carry store internals.
func RespondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "User claims not found")
	}
	return userID, ok
}

// Authorize loads the board and checks that the caller holds at least need on
// it. On failure the response has been written and ok is false.
func Authorize(w http.ResponseWriter, r *http.Request, store Store, boardID string, need core.AccessLevel) (board *core.Board, level core.AccessLevel, ok bool) {
	userID, ok := caller(w, r)
	if !ok {
		return nil, core.AccessNone, false
	}
	log := logrus.WithFields(logrus.Fields{"board_id": boardID, "user_id": userID})

	board, err := store.Get(r.Context(), boardID)
	if errors.Is(err, core.ErrNotFound) {
		RespondError(w, r, http.StatusNotFound, "Board not found")
		return nil, core.AccessNone, false
	}
	if err != nil {
		log.WithError(err).Error("Failed to load board")
		RespondError(w, r, http.StatusInternalServerError, "Failed to load board")
		return nil, core.AccessNone, false
	}

	level, err = store.Lookup(r.Context(), userID, boardID)
	if err != nil {
		log.WithError(err).Error("Failed to resolve access")
		RespondError(w, r, http.StatusInternalServerError, "Failed to resolve access")
		return nil, core.AccessNone, false
	}

	allowed := level.CanView()
	if need == core.AccessEdit {
		allowed = level.CanEdit()
	}
	if !allowed {
		log.WithField("level", level).Warn("Board access refused")
		RespondError(w, r, http.StatusForbidden, "Insufficient access to board")
		return nil, level, false
	}
	return board, level, true
}

func requireOwner(w http.ResponseWriter, r *http.Request, store Store, boardID string) (*core.Board, bool) {
	board, _, ok := Authorize(w, r, store, boardID, core.AccessView)
	if !ok {
		return nil, false
	}
	userID, _ := middleware.UserID(r.Context())
	if board.OwnerID != userID {
		logrus.WithFields(logrus.Fields{"board_id": boardID, "user_id": userID}).Warn("Owner-only operation refused")
		RespondError(w, r, http.StatusForbidden, "Only the board owner may do this")
		return nil, false
	}
	return board, true
}

// documentOf returns the stored document, or an empty one for a board that
// has never been saved.
func documentOf(board *core.Board) ([]byte, error) {
	if len(board.Document) > 0 {
		return board.Document, nil
	}
	return canvas.EncodeDocument(core.BoardDocument{
		DesignWidth:   board.DesignWidth,
		DesignHeight:  board.DesignHeight,
		BackgroundURL: board.BackgroundURL,
	})
}

// ParseDocument reads and validates a document body for board and returns it
// in canonical form. The design resolution is fixed at creation and may not
// change.
func ParseDocument(board *core.Board, data []byte) (core.BoardDocument, error) {
	decoded, err := canvas.DecodeDocument(data)
	if err != nil {
		return core.BoardDocument{}, err
	}
	doc, err := canvas.CanonicalDocument(decoded)
	if err != nil {
		return core.BoardDocument{}, err
	}
	if doc.DesignWidth != board.DesignWidth || doc.DesignHeight != board.DesignHeight {
		return core.BoardDocument{}, &canvas.ValidationError{Field: "designWidth/designHeight", Reason: "design resolution cannot change"}
	}
	return doc, nil
}

func HandleCreate(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := caller(w, r)
		if !ok {
			return
		}

		var req CreateBoardRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logrus.WithError(err).Warn("Failed to decode create board request")
			RespondError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.DesignWidth <= 0 || req.DesignHeight <= 0 {
			RespondError(w, r, http.StatusBadRequest, "designWidth and designHeight must be positive")
			return
		}
		if req.Name == "" {
			req.Name = "Untitled board"
		}

		document, err := canvas.EncodeDocument(core.BoardDocument{
			DesignWidth:   req.DesignWidth,
			DesignHeight:  req.DesignHeight,
			BackgroundURL: req.BackgroundURL,
		})
		if err != nil {
			RespondError(w, r, http.StatusInternalServerError, "Failed to create board")
			return
		}

		id, err := store.Create(r.Context(), &core.Board{
			Name:          req.Name,
			OwnerID:       userID,
			DesignWidth:   req.DesignWidth,
			DesignHeight:  req.DesignHeight,
			BackgroundURL: req.BackgroundURL,
			Document:      document,
		})
		if err != nil {
			logrus.WithError(err).WithField("user_id", userID).Error("Failed to create board")
			RespondError(w, r, http.StatusInternalServerError, "Failed to create board")
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, CreateBoardResponse{ID: id})
	}
}

func HandleList(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := caller(w, r)
		if !ok {
			return
		}

		boards, err := store.List(r.Context(), userID)
		if err != nil {
			logrus.WithError(err).WithField("user_id", userID).Error("Failed to list boards")
			RespondError(w, r, http.StatusInternalServerError, "Failed to list boards")
			return
		}
		if boards == nil {
			boards = []*core.Board{}
		}
		render.JSON(w, r, boards)
	}
}

// HandleGet returns the board document. X-Board-Access tells the page which
// mode to mount the editor in.
func HandleGet(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID := chi.URLParam(r, "id")
		board, level, ok := Authorize(w, r, store, boardID, core.AccessView)
		if !ok {
			return
		}

		document, err := documentOf(board)
		if err != nil {
			RespondError(w, r, http.StatusInternalServerError, "Failed to encode board")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Board-Access", string(level))
		w.Write(document)
	}
}

func HandlePut(store Store, notifier Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID := chi.URLParam(r, "id")
		board, _, ok := Authorize(w, r, store, boardID, core.AccessEdit)
		if !ok {
			return
		}
		log := logrus.WithField("board_id", boardID)

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxDocumentSize))
		if err != nil {
			log.WithError(err).Warn("Failed to read board document")
			RespondError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}

		doc, err := ParseDocument(board, body)
		if err != nil {
			log.WithError(err).Warn("Rejected board document")
			RespondError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		document, err := canvas.EncodeDocument(doc)
		if err != nil {
			RespondError(w, r, http.StatusInternalServerError, "Failed to encode board")
			return
		}

		if err := store.SaveDocument(r.Context(), boardID, document, doc.BackgroundURL); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				RespondError(w, r, http.StatusNotFound, "Board not found")
				return
			}
			log.WithError(err).Error("Failed to save board")
			RespondError(w, r, http.StatusInternalServerError, "Failed to save board")
			return
		}
		if notifier != nil {
			notifier.BoardUpdated(boardID, time.Now().UTC())
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func HandleDelete(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID := chi.URLParam(r, "id")
		if _, ok := requireOwner(w, r, store, boardID); !ok {
			return
		}

		if err := store.Delete(r.Context(), boardID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				RespondError(w, r, http.StatusNotFound, "Board not found")
				return
			}
			logrus.WithError(err).WithField("board_id", boardID).Error("Failed to delete board")
			RespondError(w, r, http.StatusInternalServerError, "Failed to delete board")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandlePreview renders the board to SVG at ?width=N viewport pixels,
// defaulting to the design width.
func HandlePreview(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID := chi.URLParam(r, "id")
		board, _, ok := Authorize(w, r, store, boardID, core.AccessView)
		if !ok {
			return
		}

		width := board.DesignWidth
		if raw := r.URL.Query().Get("width"); raw != "" {
			parsed, err := strconv.ParseFloat(raw, 64)
			if err != nil || parsed <= 0 {
				RespondError(w, r, http.StatusBadRequest, "width must be a positive number")
				return
			}
			width = parsed
		}

		data, err := documentOf(board)
		if err != nil {
			RespondError(w, r, http.StatusInternalServerError, "Failed to encode board")
			return
		}
		doc, err := canvas.DecodeDocument(data)
		if err != nil {
			logrus.WithError(err).WithField("board_id", boardID).Error("Stored board document is invalid")
			RespondError(w, r, http.StatusInternalServerError, "Stored board is invalid")
			return
		}

		var buf bytes.Buffer
		if err := preview.Render(r.Context(), &buf, doc, width); err != nil {
			logrus.WithError(err).WithField("board_id", boardID).Error("Failed to render preview")
			RespondError(w, r, http.StatusInternalServerError, "Failed to render preview")
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write(buf.Bytes())
	}
}
