package websocket

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"tactics-board/core"
	"tactics-board/middleware"
)

// Hub tells clients viewing a board that its document changed. Clients join a
// board room with "join-board" [boardId, token] and receive "board-updated"
// {boardId, updatedAt} after every saved write. Nothing is merged; viewers reload.
// Access is checked again before every announcement; sockets whose user lost
// access leave the room and get "board-access-revoked" {boardId}.
type Hub struct {
	srv    *socketio.Server
	gate   core.AccessGate
	secret []byte

	mu       sync.RWMutex
	watchers map[string]map[socketio.SocketId]watcher
}

type watcher struct {
	userID string
	socket *socketio.Socket
}

func NewHub(gate core.AccessGate, secret []byte, origins []string) *Hub {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(1 << 20)
	opts.SetPath("/socket.io")

	allowed := make([]any, 0, len(origins)+1)
	for _, o := range origins {
		allowed = append(allowed, o)
	}
	if len(allowed) == 0 {
		allowed = append(allowed, regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`))
	}
	opts.SetCors(&types.Cors{Origin: allowed, Credentials: true})

	h := &Hub{
		srv:      socketio.NewServer(nil, opts),
		gate:     gate,
		secret:   secret,
		watchers: make(map[string]map[socketio.SocketId]watcher),
	}

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	h.srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		h.handle(socket)
	})
	return h
}

// Server is mounted on /socket.io/ by the HTTP router.
func (h *Hub) Server() *socketio.Server {
	return h.srv
}

func (h *Hub) handle(socket *socketio.Socket) {
	me := socket.Id()
	log := logrus.WithField("socket_id", me)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("join-board", func(datas ...any) {
		args, ack := splitAck(datas)
		boardID, userID, level, err := h.authorizeJoin(context.Background(), args)
		if err != nil {
			log.WithError(err).Warn("Refused board subscription")
			reply(socket, ack, "join-board-ack", map[string]any{"status": "error", "error": err.Error()}, err)
			return
		}

		socket.Join(socketio.Room(boardID))
		count := h.watch(boardID, me, watcher{userID: userID, socket: socket})
		log.WithFields(logrus.Fields{"board_id": boardID, "watchers": count}).Info("Socket joined board")

		reply(socket, ack, "join-board-ack", map[string]any{
			"status":   "ok",
			"boardId":  boardID,
			"level":    string(level),
			"watchers": count,
		}, nil)
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("leave-board", func(datas ...any) {
		args, _ := splitAck(datas)
		if len(args) == 0 {
			return
		}
		if boardID, ok := args[0].(string); ok {
			socket.Leave(socketio.Room(boardID))
			h.unwatch(boardID, me)
		}
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("disconnecting", func(...any) {
		for _, room := range socket.Rooms().Keys() {
			h.unwatch(string(room), me)
		}
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("disconnect", func(...any) {
		socket.RemoveAllListeners("")
	})
}

// authorizeJoin checks [boardId, token] against the access gate and returns
// the board and user. Viewers and editors may subscribe.
func (h *Hub) authorizeJoin(ctx context.Context, args []any) (string, string, core.AccessLevel, error) {
	if len(args) < 2 {
		return "", "", core.AccessNone, fmt.Errorf("board id and token are required")
	}
	boardID, ok := args[0].(string)
	if !ok || boardID == "" {
		return "", "", core.AccessNone, fmt.Errorf("invalid board id")
	}
	token, ok := args[1].(string)
	if !ok {
		return "", "", core.AccessNone, fmt.Errorf("invalid token")
	}

	claims, err := middleware.ParseJWT(h.secret, token)
	if err != nil {
		return "", "", core.AccessNone, fmt.Errorf("invalid token")
	}
	level, err := h.gate.Lookup(ctx, claims.Subject, boardID)
	if err != nil {
		logrus.WithError(err).WithField("board_id", boardID).Error("Failed to resolve access")
		return "", "", core.AccessNone, fmt.Errorf("access check failed")
	}
	if !level.CanView() {
		return "", "", level, fmt.Errorf("no access to board %s", boardID)
	}
	return boardID, claims.Subject, level, nil
}

func (h *Hub) watch(boardID string, id socketio.SocketId, w watcher) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.watchers[boardID]
	if !ok {
		set = make(map[socketio.SocketId]watcher)
		h.watchers[boardID] = set
	}
	set[id] = w
	return len(set)
}

func (h *Hub) unwatch(boardID string, id socketio.SocketId) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.watchers[boardID]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(h.watchers, boardID)
	}
}

// Watchers returns the number of subscribed sockets per board.
func (h *Hub) Watchers() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	counts := make(map[string]int, len(h.watchers))
	for boardID, set := range h.watchers {
		counts[boardID] = len(set)
	}
	return counts
}

// evictRevoked re-checks every watcher of boardID and drops those that can no
// longer view it. A failed lookup keeps the watcher.
func (h *Hub) evictRevoked(ctx context.Context, boardID string) map[socketio.SocketId]watcher {
	h.mu.RLock()
	current := make(map[socketio.SocketId]watcher, len(h.watchers[boardID]))
	for id, w := range h.watchers[boardID] {
		current[id] = w
	}
	h.mu.RUnlock()

	evicted := make(map[socketio.SocketId]watcher)
	for id, w := range current {
		level, err := h.gate.Lookup(ctx, w.userID, boardID)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{"board_id": boardID, "user_id": w.userID}).Warn("Failed to re-check board access")
			continue
		}
		if !level.CanView() {
			h.unwatch(boardID, id)
			evicted[id] = w
		}
	}
	return evicted
}

// BoardUpdated implements the board API's notifier.
func (h *Hub) BoardUpdated(boardID string, updatedAt time.Time) {
	room := socketio.Room(boardID)
	for id, w := range h.evictRevoked(context.Background(), boardID) {
		logrus.WithFields(logrus.Fields{"board_id": boardID, "user_id": w.userID, "socket_id": id}).Info("Socket lost access to board")
		if w.socket == nil {
			continue
		}
		w.socket.Leave(room)
		_ = w.socket.Emit("board-access-revoked", map[string]any{"boardId": boardID})
	}

	err := h.srv.To(room).Emit("board-updated", map[string]any{
		"boardId":   boardID,
		"updatedAt": updatedAt.UnixMilli(),
	})
	log := logrus.WithFields(logrus.Fields{"board_id": boardID, "watchers": h.Watchers()[boardID]})
	if err != nil {
		log.WithError(err).Warn("Failed to announce board update")
		return
	}
	log.Debug("Announced board update")
}
