package chat

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Ezmad-Ze/chat-app/logger"
	"github.com/Ezmad-Ze/chat-app/service/auth"
	errs "github.com/Ezmad-Ze/chat-app/tools/errs"
	"github.com/Ezmad-Ze/chat-app/tools/ids"
	"github.com/Ezmad-Ze/chat-app/tools/safe"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServerConfig tunes per-connection behavior.
type ServerConfig struct {
	GatewayID     string
	SendQueueSize int
	WriteTimeout  time.Duration
}

// Server owns the connection lifecycle: handshake authentication, routing
// of inbound frames to the service, and unconditional cleanup when the
// transport closes. One read loop per connection; one writer goroutine per
// connection; handlers never block other connections.
type Server struct {
	cfg      ServerConfig
	resolver *auth.Resolver
	svc      *Service
	disp     *Dispatcher
}

func NewServer(cfg ServerConfig, resolver *auth.Resolver, svc *Service) *Server {
	s := &Server{cfg: cfg, resolver: resolver, svc: svc, disp: NewDispatcher()}
	s.disp.Register(EventJoinRoom, s.handleJoinRoom)
	s.disp.Register(EventCreateRoom, s.handleCreateRoom)
	s.disp.Register(EventSendMessage, s.handleSendMessage)
	s.disp.Register(EventLeaveRoom, s.handleLeaveRoom)
	return s
}

// HandleWS upgrades the HTTP request and runs the connection state
// machine: Connecting -> Authenticated -> member-of-N-rooms -> Closed.
// A failed handshake closes the transport; no retries on one attempt.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade failed: %v", err)
		return
	}

	identity, err := s.resolver.Authenticate(c.Request.Context(), credentialFrom(c.Request))
	if err != nil {
		reason := "unauthorized"
		if ce, ok := errs.Code(err); ok {
			reason = ce.Msg
		}
		logger.Infof("[ws] handshake rejected: %v", err)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
			time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}

	client := NewClient(ids.GenerateString(), identity, ws, s.cfg.SendQueueSize, s.cfg.WriteTimeout)
	s.svc.Register(client)
	safe.Go(client.writePump)

	logger.Infof("[ws] connected conn=%s user=%s gw=%s", client.ConnID, identity.UserID, s.cfg.GatewayID)
	s.readLoop(client)

	// transport closed, normally or not: leave every room, drop the
	// connection, let the writer drain and close the socket
	s.svc.DisconnectCleanup(context.Background(), client)
	client.closeSend()
	logger.Infof("[ws] closed conn=%s user=%s", client.ConnID, identity.UserID)
}

// credentialFrom pulls the bearer credential from the handshake: the
// Authorization header, or a token query parameter for browser clients
// that cannot set websocket headers.
func credentialFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return h
	}
	return r.URL.Query().Get("token")
}

func (s *Server) readLoop(client *Client) {
	for {
		mt, data, err := client.WS.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn=%s", client.ConnID)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout conn=%s err=%v", client.ConnID, err)
			} else {
				logger.Infof("[ws] read error conn=%s err=%v", client.ConnID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := ParseFrame(data)
		if perr != nil {
			logger.Infof("[ws] bad frame conn=%s err=%v len=%d", client.ConnID, perr, len(data))
			client.enqueue(EncodeEvent(EventError, ErrorData{Error: "malformed frame"}))
			continue
		}
		s.dispatch(client, frame)
	}
}

// dispatch runs the handler for one request and resolves its correlation
// handle exactly once. Handler failures never tear down the connection.
func (s *Server) dispatch(client *Client, frame *Frame) {
	h, ok := s.disp.Get(frame.Event)
	if !ok {
		s.respondError(client, frame, "unknown event: "+frame.Event)
		return
	}

	data, err := h(context.Background(), client, frame.Data)
	if err != nil {
		msg := errs.ErrInternal.Msg
		if ce, ok := errs.Code(err); ok {
			msg = ce.Message()
		} else {
			logger.Errorf("[ws] %s failed conn=%s: %v", frame.Event, client.ConnID, err)
		}
		s.respondError(client, frame, msg)
		return
	}
	if frame.ID != "" {
		client.enqueue(EncodeAck(frame.ID, data))
	}
}

func (s *Server) respondError(client *Client, frame *Frame, msg string) {
	if frame.ID != "" {
		client.enqueue(EncodeAckError(frame.ID, msg))
		return
	}
	client.enqueue(EncodeEvent(EventError, ErrorData{Error: msg}))
}

// ---- request handlers ----

func (s *Server) handleJoinRoom(ctx context.Context, c *Client, data map[string]any) (any, error) {
	p, err := decodePayload[JoinRoomPayload](data)
	if err != nil {
		return nil, err
	}
	history, err := s.svc.JoinRoom(ctx, c, p.RoomID)
	if err != nil {
		return nil, err
	}
	// snapshot goes out as its own event; the ack only confirms the join
	c.enqueue(EncodeEvent(EventMessages, HistoryData{RoomID: p.RoomID, Messages: history}))
	return nil, nil
}

func (s *Server) handleCreateRoom(ctx context.Context, c *Client, data map[string]any) (any, error) {
	p, err := decodePayload[CreateRoomPayload](data)
	if err != nil {
		return nil, err
	}
	return s.svc.CreateRoom(ctx, c, p.Name)
}

func (s *Server) handleSendMessage(ctx context.Context, c *Client, data map[string]any) (any, error) {
	p, err := decodePayload[SendMessagePayload](data)
	if err != nil {
		return nil, err
	}
	return s.svc.SendMessage(ctx, c, p.RoomID, p.Content)
}

func (s *Server) handleLeaveRoom(ctx context.Context, c *Client, data map[string]any) (any, error) {
	p, err := decodePayload[LeaveRoomPayload](data)
	if err != nil {
		return nil, err
	}
	return nil, s.svc.LeaveRoom(ctx, c, p.RoomID)
}
