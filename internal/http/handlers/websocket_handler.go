// Websocket chat handler.
//
// GET /ws?identifier=<id> upgrades to a websocket session for one
// participant. Every text frame is one inbound message; every reply is a
// JSON ChatFrame. Frames of a session are processed one at a time, and the
// conversation service keeps order across sessions of the same identifier.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-feedback-bot/internal/http/middleware"
	"github.com/tbourn/go-feedback-bot/internal/services"
)

const (
	// Time allowed to write a frame to the peer.
	wsWriteWait = 10 * time.Second
	// Time allowed between pongs.
	wsPongWait = 90 * time.Second
	// Must be less than wsPongWait.
	wsPingPeriod = (wsPongWait * 9) / 10
	// Largest accepted inbound frame.
	wsMaxFrameBytes = 64 << 10
)

// ChatFrame is the JSON frame sent for every processed message. Error holds
// a code from errors.go when processing failed; Text is then the generic
// apology shown to the participant.
type ChatFrame struct {
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func newUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if len(allowed) == 0 || origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// Chat godoc
// @ID          chatWebsocket
// @Summary     Websocket chat session
// @Description Upgrades to a websocket. Each text frame is one message from the participant; each reply is a JSON ChatFrame.
// @Tags        Transport
//
// @Param       identifier  query  string  true  "Participant identifier"  example(42)
//
// @Success     101  {object}  handlers.ChatFrame  "Switching Protocols"
// @Failure     400  {object}  handlers.ErrorResponse "Missing identifier or bad upgrade"
// @Failure     403  {object}  handlers.ErrorResponse "Origin not allowed"
// @Router      /ws [get]
func (h *Handlers) Chat(c *gin.Context) {
	identifier := strings.TrimSpace(c.Query("identifier"))
	if identifier == "" || len(identifier) > 64 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "identifier query parameter is required")
		return
	}

	up := h.upgrader
	up.Error = func(_ http.ResponseWriter, _ *http.Request, status int, reason error) {
		fail(c, status, ErrCodeUpgradeFailed, reason.Error())
	}
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	done := middleware.TrackSession()
	defer done()

	lg := middleware.LoggerFrom(c)
	lg.Debug().Msg("websocket session opened")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go keepAlive(ctx, conn)

	conn.SetReadLimit(wsMaxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				lg.Warn().Err(err).Msg("websocket read")
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		frame := h.chatFrame(ctx, identifier, string(data))
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(frame); err != nil {
			lg.Warn().Err(err).Msg("websocket write")
			return
		}
		// Pongs are only read between messages; restart the window after a long run.
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	}
}

func (h *Handlers) chatFrame(ctx context.Context, identifier, text string) ChatFrame {
	reply, err := h.conv.HandleInboundText(ctx, identifier, text)
	if err == nil {
		return ChatFrame{Text: reply.Text, Options: reply.Options}
	}
	return ChatFrame{Text: services.ErrorReplyText, Error: conversationError(err).Code}
}

// keepAlive pings the peer until ctx ends. WriteControl may run concurrently
// with the session's other writes.
func keepAlive(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(wsPingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
