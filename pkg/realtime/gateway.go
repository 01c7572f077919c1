package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp"

	"groupchat/pkg/chat"
	"groupchat/pkg/logger"
	"groupchat/pkg/membership"
	"groupchat/pkg/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// VerifyFunc checks a user's connection signature.
type VerifyFunc func(userID, signature string) bool

// Gateway terminates websocket connections on a dedicated listener and
// dispatches inbound frames. Joins are gated on membership; message sends
// route through the same ingestion pipeline as the HTTP edge.
type Gateway struct {
	reg     *Registry
	relay   *Relay
	svc     *chat.Service
	members membership.Authority
	verify  VerifyFunc

	sendBuffer int
	upgrader   websocket.FastHTTPUpgrader
	srv        *fasthttp.Server
}

func NewGateway(reg *Registry, relay *Relay, svc *chat.Service, members membership.Authority, verify VerifyFunc, sendBuffer int) *Gateway {
	g := &Gateway{
		reg:        reg,
		relay:      relay,
		svc:        svc,
		members:    members,
		verify:     verify,
		sendBuffer: sendBuffer,
	}
	g.upgrader = websocket.FastHTTPUpgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(_ *fasthttp.RequestCtx) bool { return true },
	}
	return g
}

// Serve runs the gateway on the provided listener until Shutdown.
func (g *Gateway) Serve(ln net.Listener) error {
	g.srv = &fasthttp.Server{
		Handler:          g.handle,
		Name:             "groupchat-ws",
		DisableKeepalive: false,
	}
	err := g.srv.Serve(ln)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.srv == nil {
		return nil
	}
	return g.srv.ShutdownWithContext(ctx)
}

func (g *Gateway) handle(ctx *fasthttp.RequestCtx) {
	if string(ctx.Path()) != "/ws" {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}
	user := string(ctx.QueryArgs().Peek("user"))
	sig := string(ctx.QueryArgs().Peek("sig"))
	if user == "" || g.verify == nil || !g.verify(user, sig) {
		ctx.SetStatusCode(fasthttp.StatusUnauthorized)
		ctx.SetBodyString(`{"success":false,"message":"invalid credentials"}`)
		return
	}
	err := g.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		g.runSession(user, conn)
	})
	if err != nil {
		logger.Warn("ws_upgrade_failed", "user", user, "error", err)
	}
}

func (g *Gateway) runSession(user string, conn *websocket.Conn) {
	s := newSession(user, g.sendBuffer)
	g.reg.Add(s)
	logger.Info("ws_connected", "user", user, "session", s.ID)

	done := make(chan struct{})
	go g.writeLoop(s, conn, done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		g.dispatch(s, raw)
	}

	g.reg.Remove(s.ID)
	close(done)
	conn.Close()
	logger.Info("ws_disconnected", "user", user, "session", s.ID)
}

func (g *Gateway) writeLoop(s *Session, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-s.Outbound():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type roomRef struct {
	Group string `json:"groupId"`
}

type sendPayload struct {
	Group       string              `json:"groupId"`
	Content     string              `json:"content"`
	Type        models.MessageType  `json:"message_type"`
	ReplyTo     string              `json:"replyTo"`
	Mentions    []string            `json:"mentions"`
	Attachments []models.Attachment `json:"attachments"`
}

type typingIn struct {
	Group    string `json:"groupId"`
	Username string `json:"username"`
}

func (g *Gateway) dispatch(s *Session, raw []byte) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		g.sendError(s, "malformed frame")
		return
	}
	switch f.Event {
	case "join-group":
		g.handleJoin(s, f.Data)
	case "leave-group":
		g.handleLeave(s, f.Data)
	case "send-message":
		g.handleSend(s, f.Data)
	case "typing":
		g.handleTyping(s, f.Data, models.EventUserTyping)
	case "stop-typing":
		g.handleTyping(s, f.Data, models.EventUserStopTyping)
	default:
		g.sendError(s, "unknown event: "+f.Event)
	}
}

func (g *Gateway) handleJoin(s *Session, data json.RawMessage) {
	var ref roomRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.Group == "" {
		g.sendError(s, "groupId is required")
		return
	}
	if !g.members.IsMember(ref.Group, s.User) {
		g.sendError(s, "not a member of this group")
		return
	}
	g.reg.Join(s.ID, ref.Group)
	logger.Debug("room_joined", "user", s.User, "group", ref.Group)
}

func (g *Gateway) handleLeave(s *Session, data json.RawMessage) {
	var ref roomRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.Group == "" {
		g.sendError(s, "groupId is required")
		return
	}
	g.reg.Leave(s.ID, ref.Group)
}

func (g *Gateway) handleSend(s *Session, data json.RawMessage) {
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.sendError(s, "malformed payload")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := g.svc.Submit(ctx, chat.SubmitInput{
		Group:       p.Group,
		Sender:      s.User,
		Content:     p.Content,
		Type:        p.Type,
		ReplyTo:     p.ReplyTo,
		Mentions:    p.Mentions,
		Attachments: p.Attachments,
	})
	if err != nil {
		g.sendError(s, userFacing(err))
	}
}

func (g *Gateway) handleTyping(s *Session, data json.RawMessage, event string) {
	var t typingIn
	if err := json.Unmarshal(data, &t); err != nil || t.Group == "" {
		return
	}
	// Typing is ephemeral: only signal rooms the session actually joined,
	// and never echo back to the typist.
	if !g.reg.InRoom(s.ID, t.Group) {
		return
	}
	g.relay.PublishExcept(t.Group, event, models.TypingPayload{UserID: s.User, Username: t.Username}, s.User)
}

func (g *Gateway) sendError(s *Session, msg string) {
	data, _ := json.Marshal(map[string]string{"message": msg})
	frame, err := json.Marshal(Frame{Event: models.EventError, Data: data})
	if err != nil {
		return
	}
	s.trySend(frame)
}

// userFacing strips internal detail from pipeline errors before they go
// back over the socket.
func userFacing(err error) string {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return "not found"
	case errors.Is(err, chat.ErrForbidden):
		return "not allowed"
	case errors.Is(err, chat.ErrInvalidArgument):
		return err.Error()
	case errors.Is(err, chat.ErrConflict):
		return "conflict"
	default:
		return "internal error"
	}
}
