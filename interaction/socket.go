package interaction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"garden/logging"
	"garden/metrics"
	"garden/realtime"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 8192
	sendBuffer     = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Client messages.
const (
	msgToggleLike    = "toggle_like"
	msgComment       = "comment"
	msgDeleteComment = "delete_comment"
	msgBlockUser     = "block_user"
	msgUnblockUser   = "unblock_user"
)

type clientMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	CommentID uint   `json:"comment_id,omitempty"`
	UserID    uint   `json:"user_id,omitempty"`
}

type serverMessage struct {
	Type     string `json:"type"`
	State    *State `json:"state,omitempty"`
	Error    string `json:"error,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// mountedView ties a View to one socket for the socket's lifetime.
type mountedView struct {
	view *View
	conn *websocket.Conn
	send chan serverMessage
}

// socket is the live post view: one push-channel subscription per connection,
// a full state snapshot after every refetch, torn down when the socket closes.
func (a *InteractionModule) socket(c *gin.Context) {
	postID, ok := parseID(c)
	if !ok {
		return
	}
	view, ok := a.loadView(c, postID)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.L.Warn().Err(err).Uint("post_id", postID).Msg("websocket upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	m := &mountedView{view: view, conn: conn, send: make(chan serverMessage, sendBuffer)}
	defer view.Close()
	view.OnOptimisticUpdate(func(st State) {
		m.push(serverMessage{Type: "state", State: &st})
	})

	if a.broker != nil {
		sub, err := a.broker.Subscribe(ctx, realtime.Filter{
			Tables: []string{realtime.TableLikes, realtime.TableComments},
			Event:  realtime.EventAll,
			PostID: postID,
		})
		if err != nil {
			logging.L.Error().Err(err).Uint("post_id", postID).Msg("subscribe failed")
			_ = conn.Close()
			return
		}
		defer sub.Close()
		go m.watch(ctx, sub)
	}

	metrics.RealtimeSubscribers.Inc()
	defer metrics.RealtimeSubscribers.Dec()

	go m.writePump(ctx)
	m.pushState()
	m.readPump(ctx)
}

// push never blocks; a slow peer misses snapshots and catches up on the next one.
func (m *mountedView) push(msg serverMessage) {
	select {
	case m.send <- msg:
	default:
		logging.L.Debug().Uint("post_id", m.view.PostID()).Msg("websocket buffer full, dropped message")
	}
}

func (m *mountedView) pushState() {
	st := m.view.State()
	m.push(serverMessage{Type: "state", State: &st})
}

func (m *mountedView) pushError(err error) {
	_, body := errorResponse(err)
	msg := serverMessage{Type: "error"}
	msg.Error, _ = body["error"].(string)
	msg.Redirect, _ = body["redirect"].(string)
	m.push(msg)
	m.pushState()
}

func (m *mountedView) watch(ctx context.Context, sub *realtime.Subscription) {
	for ch := range sub.C() {
		if err := m.view.Refresh(ctx, ch); err != nil {
			logging.L.Warn().Err(err).Str("table", ch.Table).Uint("post_id", m.view.PostID()).Msg("refetch failed")
			continue
		}
		m.pushState()
	}
}

func (m *mountedView) readPump(ctx context.Context) {
	defer func() { _ = m.conn.Close() }()

	m.conn.SetReadLimit(maxMessageSize)
	_ = m.conn.SetReadDeadline(time.Now().Add(pongWait))
	m.conn.SetPongHandler(func(string) error { return m.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, raw, err := m.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.L.Debug().Err(err).Uint("post_id", m.view.PostID()).Msg("websocket closed")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			m.push(serverMessage{Type: "error", Error: "Invalid message"})
			continue
		}
		m.handle(ctx, msg)
	}
}

func (m *mountedView) handle(ctx context.Context, msg clientMessage) {
	var err error
	switch msg.Type {
	case msgToggleLike:
		err = m.view.ToggleLike(ctx)
	case msgComment:
		err = m.view.PostComment(ctx, msg.Content)
	case msgDeleteComment:
		err = m.view.DeleteComment(ctx, msg.CommentID)
	case msgBlockUser:
		err = m.view.BlockUser(ctx, msg.UserID)
	case msgUnblockUser:
		err = m.view.UnblockUser(ctx, msg.UserID)
	default:
		m.push(serverMessage{Type: "error", Error: "Unknown message type"})
		return
	}

	if err != nil {
		m.pushError(err)
		return
	}
	m.pushState()
}

func (m *mountedView) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = m.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = m.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case msg := <-m.send:
			_ = m.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := m.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = m.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := m.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
